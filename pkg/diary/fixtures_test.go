package diary

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// entry describes one synthetic diary row; empty fields are omitted from the markup
type entry struct {
	month, year string
	day         string
	title       string
	released    string
	step        int // rated-N class; 0 omits the rating span
}

func classicRow(e entry) string {
	var b strings.Builder
	b.WriteString(`<tr class="diary-entry-row">`)
	b.WriteString(`<td class="td-calendar">`)
	if e.month != "" {
		fmt.Fprintf(&b, `<div class="date"><strong>%s</strong>`, e.month)
	}
	if e.year != "" {
		fmt.Fprintf(&b, `<small>%s</small>`, e.year)
	}
	if e.month != "" {
		b.WriteString(`</div>`)
	}
	b.WriteString(`</td>`)
	if e.day != "" {
		fmt.Fprintf(&b, `<td class="td-day diary-day center"><a href="/u/films/diary/for/x/">%s</a></td>`, e.day)
	} else {
		b.WriteString(`<td class="td-day"></td>`)
	}
	b.WriteString(`<td class="td-film-details">`)
	if e.title != "" {
		fmt.Fprintf(&b, `<h2 class="name prettify"><a href="/film/x/">%s</a></h2>`, e.title)
	}
	if e.released != "" {
		fmt.Fprintf(&b, `<span class="releasedate"><a href="/films/year/%s/">%s</a></span>`, e.released, e.released)
	}
	b.WriteString(`</td>`)
	b.WriteString(`<td class="td-rating rating-green">`)
	if e.step != 0 {
		fmt.Fprintf(&b, `<span class="rating rated-%d">★★★★½</span>`, e.step)
	}
	b.WriteString(`</td></tr>`)
	return b.String()
}

func modernRow(e entry) string {
	var b strings.Builder
	b.WriteString(`<tr class="diary-entry-row viewing-poster-container">`)
	b.WriteString(`<td class="col-monthdate"><div class="monthdate">`)
	if e.month != "" {
		fmt.Fprintf(&b, `<a class="month" href="/u/films/diary/for/x/">%s</a>`, e.month)
	}
	if e.year != "" {
		fmt.Fprintf(&b, `<a class="year" href="/u/films/diary/for/x/">%s</a>`, e.year)
	}
	b.WriteString(`</div></td>`)
	fmt.Fprintf(&b, `<td class="col-daydate"><a class="daydate" href="/u/day/">%s</a></td>`, e.day)
	b.WriteString(`<td class="col-production">`)
	if e.title != "" {
		fmt.Fprintf(&b, `<h2 class="name -primary prettify"><a href="/film/x/">%s</a></h2>`, e.title)
	}
	b.WriteString(`</td>`)
	fmt.Fprintf(&b, `<td class="col-releaseyear"><span>%s</span></td>`, e.released)
	b.WriteString(`<td class="col-rating">`)
	if e.step != 0 {
		fmt.Fprintf(&b, `<span class="rating -green rated-%d">★★★</span>`, e.step)
	}
	b.WriteString(`</td></tr>`)
	return b.String()
}

func diaryPage(rows ...string) string {
	return `<html><body><table id="diary-table"><tbody>` + strings.Join(rows, "") + `</tbody></table></body></html>`
}

// parseRows returns the diary rows of an HTML fragment
func parseRows(t *testing.T, m Markup, rows ...string) []*goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(diaryPage(rows...)))
	require.NoError(t, err)
	var out []*goquery.Selection
	doc.Find(m.RowSelector()).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	require.Len(t, out, len(rows))
	return out
}
