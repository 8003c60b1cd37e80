package diary

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// Markup isolates the field accessors for one version of the diary page markup.
// All accessors return trimmed text and never fail: a missing element is an empty value.
type Markup interface {
	Name() string
	RowSelector() string
	// ExtractHeader returns the month and year labels printed on the row, each possibly empty
	ExtractHeader(row *goquery.Selection) (month, year string)
	ExtractDay(row *goquery.Selection) string
	ExtractTitleYear(row *goquery.Selection) (title, year string)
	ExtractRating(row *goquery.Selection) models.Rating
}

// Markup version tags accepted by MarkupFor
const (
	MarkupClassic = "classic"
	MarkupModern  = "modern"
)

// MarkupFor returns the strategy registered under tag. An empty tag selects classic.
func MarkupFor(tag string) (Markup, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", MarkupClassic:
		return ClassicMarkup{}, nil
	case MarkupModern:
		return ModernMarkup{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected %q or %q)", utils.ErrUnknownMarkup, tag, MarkupClassic, MarkupModern)
	}
}

// ClassicMarkup reads the td-* diary table (td-calendar, td-day, td-film-details, td-rating)
type ClassicMarkup struct{}

func (ClassicMarkup) Name() string        { return MarkupClassic }
func (ClassicMarkup) RowSelector() string { return "tr.diary-entry-row" }

func (ClassicMarkup) ExtractHeader(row *goquery.Selection) (month, year string) {
	cal := row.Find("td.td-calendar").First()
	return text(cal.Find("strong")), text(cal.Find("small"))
}

func (ClassicMarkup) ExtractDay(row *goquery.Selection) string {
	return text(row.Find("td.td-day a"))
}

func (ClassicMarkup) ExtractTitleYear(row *goquery.Selection) (title, year string) {
	details := row.Find("td.td-film-details").First()
	return text(details.Find("h2.name")), text(details.Find("span.releasedate a"))
}

func (ClassicMarkup) ExtractRating(row *goquery.Selection) models.Rating {
	return ratingFromClass(row.Find("td.td-rating span.rating").First())
}

// ModernMarkup reads the col-* diary table used by the redesigned site
type ModernMarkup struct{}

func (ModernMarkup) Name() string        { return MarkupModern }
func (ModernMarkup) RowSelector() string { return "tr.diary-entry-row" }

func (ModernMarkup) ExtractHeader(row *goquery.Selection) (month, year string) {
	cell := row.Find("td.col-monthdate").First()
	return text(cell.Find("a.month")), text(cell.Find("a.year"))
}

func (ModernMarkup) ExtractDay(row *goquery.Selection) string {
	return text(row.Find("td.col-daydate a"))
}

func (ModernMarkup) ExtractTitleYear(row *goquery.Selection) (title, year string) {
	return text(row.Find("td.col-production h2.name")), text(row.Find("td.col-releaseyear span"))
}

func (ModernMarkup) ExtractRating(row *goquery.Selection) models.Rating {
	cell := row.Find("td.col-rating").First()
	if r := ratingFromClass(cell.Find("span.rating").First()); r.IsRated() {
		return r
	}
	// Editable diaries carry the step in a hidden rateit input instead
	if v, ok := cell.Find("input.rateit-field").First().Attr("value"); ok {
		if step, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && models.Rating(step).IsRated() {
			return models.Rating(step)
		}
	}
	return 0
}

// ratingFromClass reads the "rated-N" class of a rating span; 0 when absent or out of range
func ratingFromClass(span *goquery.Selection) models.Rating {
	classes, _ := span.Attr("class")
	for _, cls := range strings.Fields(classes) {
		digits, found := strings.CutPrefix(cls, "rated-")
		if !found {
			continue
		}
		step, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if r := models.Rating(step); r.IsRated() {
			return r
		}
		return 0
	}
	return 0
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.First().Text())
}
