package diary

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// RowKind classifies the outcome of parsing one diary row
type RowKind int

const (
	RowRecord  RowKind = iota // A complete MovieRecord was produced
	RowSkip                   // Header-only, incomplete or invalid row; no record
	RowFailure                // Extraction panicked or errored; row dropped
)

func (k RowKind) String() string {
	switch k {
	case RowRecord:
		return "record"
	case RowSkip:
		return "skip"
	case RowFailure:
		return "failure"
	default:
		return fmt.Sprintf("RowKind(%d)", int(k))
	}
}

// Skip reasons reported in RowResult.Reason
const (
	ReasonNoDay       = "no day"
	ReasonNoState     = "month/year not yet known"
	ReasonInvalidDate = "invalid calendar date"
	ReasonNoTitle     = "no title"
	ReasonPanic       = "panic during extraction"
)

// RowResult is the explicit outcome of ParseRow
type RowResult struct {
	Kind   RowKind
	Record models.MovieRecord // Valid only when Kind == RowRecord
	Reason string             // Why the row was skipped or failed
	Err    error              // Set for RowFailure and invalid dates
}

// dateLayouts accepts short ("Mar") and long ("March") month labels; matching is case-insensitive
var dateLayouts = []string{"2 Jan 2006", "2 January 2006"}

// RowParser turns diary rows into MovieRecords using one Markup strategy.
// It holds no state of its own; the carried ParseState is passed in and returned.
type RowParser struct {
	markup Markup
	log    *logrus.Entry
}

// NewRowParser creates a RowParser for the given markup
func NewRowParser(markup Markup, log *logrus.Entry) *RowParser {
	return &RowParser{markup: markup, log: log}
}

// Markup returns the strategy the parser extracts with
func (p *RowParser) Markup() Markup { return p.markup }

// ParseRow applies any header update carried by row to state, then tries to build a record.
// The returned state is always the post-header state, even for skipped or failed rows.
func (p *RowParser) ParseRow(row *goquery.Selection, state models.ParseState) (next models.ParseState, result RowResult) {
	next = state
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Errorf("Recovered panic while parsing diary row\n%s", debug.Stack())
			result = RowResult{Kind: RowFailure, Reason: ReasonPanic, Err: fmt.Errorf("%w: %s: %v", utils.ErrParsing, ReasonPanic, r)}
		}
	}()

	// 1. Header update, independent per field
	month, year := p.markup.ExtractHeader(row)
	if month != "" {
		next.Month = month
	}
	if year != "" {
		next.Year = year
	}

	// 2. Day plus known month/year
	day := p.markup.ExtractDay(row)
	if day == "" {
		return next, RowResult{Kind: RowSkip, Reason: ReasonNoDay}
	}
	if !next.Ready() {
		return next, RowResult{Kind: RowSkip, Reason: ReasonNoState}
	}

	// 3. Compose the ISO date
	watchDate, err := ComposeDate(day, next.Month, next.Year)
	if err != nil {
		return next, RowResult{Kind: RowSkip, Reason: ReasonInvalidDate, Err: err}
	}

	// 4. Title and release year
	title, releaseYear := p.markup.ExtractTitleYear(row)
	if title == "" {
		return next, RowResult{Kind: RowSkip, Reason: ReasonNoTitle}
	}

	// 5-6. Rating and record
	return next, RowResult{
		Kind: RowRecord,
		Record: models.MovieRecord{
			Title:       title,
			ReleaseYear: releaseYear,
			WatchDate:   watchDate,
			Rating:      p.markup.ExtractRating(row),
		},
	}
}

// ComposeDate combines day, month label and year into YYYY-MM-DD.
// Impossible dates such as 31 Feb are rejected.
func ComposeDate(day, month, year string) (string, error) {
	raw := fmt.Sprintf("%s %s %s", strings.TrimSpace(day), strings.TrimSpace(month), strings.TrimSpace(year))
	var errs []error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.Format(time.DateOnly), nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf("%w: date %q: %w", utils.ErrParsing, raw, errors.Join(errs...))
}
