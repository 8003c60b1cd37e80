package diary

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// PageSource fetches a page body; *fetch.Fetcher satisfies it
type PageSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PageObserver is notified after each diary page has been parsed.
// records is the full collection so far and must not be retained past the call.
type PageObserver interface {
	PageDone(page int, state models.ParseState, records []models.MovieRecord)
}

// StopReason explains why pagination ended
type StopReason string

const (
	StopEmptyPage   StopReason = "empty_page"   // Page had zero diary rows
	StopFetchFailed StopReason = "fetch_failed" // Fetch failed after retries, or page not found
	StopBadDocument StopReason = "bad_document" // Body could not be parsed as HTML
	StopPageCap     StopReason = "page_cap"     // max_pages reached
	StopCancelled   StopReason = "cancelled"    // Context done
)

// PageReport summarizes one diary walk
type PageReport struct {
	Records      []models.MovieRecord
	State        models.ParseState // Carried state after the last parsed row
	PagesFetched int               // Pages whose rows were parsed
	RowsSeen     int
	RowsSkipped  int
	RowsFailed   int
	StopReason   StopReason
	StopPage     int   // Page index that ended the walk
	LastErr      error // Fetch or document error behind StopFetchFailed/StopBadDocument
}

// Driver walks diary pages in order, threading ParseState across rows and pages
type Driver struct {
	source   PageSource
	parser   *RowParser
	baseURL  string
	username string
	observer PageObserver
	log      *logrus.Entry
}

// NewDriver creates a Driver for username's diary on baseURL
func NewDriver(source PageSource, parser *RowParser, baseURL, username string, log *logrus.Entry) *Driver {
	return &Driver{
		source:   source,
		parser:   parser,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		log:      log.WithField("username", username),
	}
}

// SetObserver registers an observer called after every parsed page
func (d *Driver) SetObserver(o PageObserver) { d.observer = o }

// PageURL returns the diary URL for page n (1-based)
func (d *Driver) PageURL(n int) string {
	return fmt.Sprintf("%s/%s/films/diary/page/%d/", d.baseURL, url.PathEscape(d.username), n)
}

// Run fetches pages 1..maxPages until a page fails or has no rows.
// A fetch failure ends the walk normally; the only error returned is the context's,
// and the report then still holds every record collected before cancellation.
func (d *Driver) Run(ctx context.Context, maxPages int) (PageReport, error) {
	var report PageReport
	state := models.ParseState{}
	selector := d.parser.Markup().RowSelector()

	for page := 1; ; page++ {
		if maxPages > 0 && page > maxPages {
			report.StopReason, report.StopPage = StopPageCap, page-1
			d.log.WithField("max_pages", maxPages).Info("Reached page cap, stopping diary walk")
			break
		}
		if err := ctx.Err(); err != nil {
			report.StopReason, report.StopPage = StopCancelled, page
			report.State = state
			return report, err
		}

		pageURL := d.PageURL(page)
		pageLog := d.log.WithFields(logrus.Fields{"page": page, "url": pageURL})

		body, err := d.source.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				report.StopReason, report.StopPage = StopCancelled, page
				report.State = state
				return report, ctx.Err()
			}
			pageLog.WithField("category", utils.CategorizeError(err)).Warnf("Diary page fetch failed, treating as end of diary: %v", err)
			report.StopReason, report.StopPage, report.LastErr = StopFetchFailed, page, err
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			err = fmt.Errorf("%w: HTML for %s: %w", utils.ErrParsing, pageURL, err)
			pageLog.WithField("category", utils.CategorizeError(err)).Warnf("Cannot parse diary page: %v", err)
			report.StopReason, report.StopPage, report.LastErr = StopBadDocument, page, err
			break
		}

		rows := doc.Find(selector)
		if rows.Length() == 0 {
			pageLog.Info("No diary entries on page, stopping")
			report.StopReason, report.StopPage = StopEmptyPage, page
			break
		}

		parsed := 0
		rows.Each(func(i int, row *goquery.Selection) {
			report.RowsSeen++
			var result RowResult
			state, result = d.parser.ParseRow(row, state)
			switch result.Kind {
			case RowRecord:
				report.Records = append(report.Records, result.Record)
				parsed++
			case RowSkip:
				report.RowsSkipped++
				if result.Err != nil {
					pageLog.WithFields(logrus.Fields{"row": i, "reason": result.Reason}).Debugf("Skipped row: %v", result.Err)
				}
			case RowFailure:
				report.RowsFailed++
				pageLog.WithFields(logrus.Fields{"row": i, "category": utils.CategorizeError(result.Err)}).Warnf("Dropped row: %v", result.Err)
			}
		})
		report.PagesFetched++
		report.State = state
		pageLog.WithFields(logrus.Fields{"rows": rows.Length(), "records": parsed, "total": len(report.Records)}).Info("Parsed diary page")

		if d.observer != nil {
			d.observer.PageDone(page, state, report.Records)
		}
	}

	report.State = state
	return report, nil
}
