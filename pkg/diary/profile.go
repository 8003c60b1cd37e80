package diary

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

var digitsRe = regexp.MustCompile(`\d+`)

// ProfileScraper reads the lifetime film count shown on a user's profile page
type ProfileScraper struct {
	source   PageSource
	baseURL  string
	username string
	log      *logrus.Entry
}

// NewProfileScraper creates a ProfileScraper for username on baseURL
func NewProfileScraper(source PageSource, baseURL, username string, log *logrus.Entry) *ProfileScraper {
	return &ProfileScraper{
		source:   source,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		log:      log.WithField("username", username),
	}
}

// ProfileURL returns the profile page URL
func (p *ProfileScraper) ProfileURL() string {
	return fmt.Sprintf("%s/%s/", p.baseURL, p.username)
}

// FilmCount returns the number in the profile's "films" statistic link.
// A page without the statistic yields 0 and a parsing error.
func (p *ProfileScraper) FilmCount(ctx context.Context) (int, error) {
	body, err := p.source.Fetch(ctx, p.ProfileURL())
	if err != nil {
		return 0, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: profile HTML: %w", utils.ErrParsing, err)
	}

	filmsHref := fmt.Sprintf("/%s/films/", p.username)
	var count int
	var found bool
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if href != filmsHref {
			return true
		}
		// "1,234 Films" or <span class="value">1,234</span>
		match := digitsRe.FindString(strings.ReplaceAll(a.Text(), ",", ""))
		if match == "" {
			return true
		}
		n, convErr := strconv.Atoi(match)
		if convErr != nil {
			return true
		}
		count, found = n, true
		return false
	})
	if !found {
		return 0, fmt.Errorf("%w: profile film statistic not found at %s", utils.ErrParsing, p.ProfileURL())
	}
	p.log.WithField("films", count).Debug("Read profile film count")
	return count, nil
}
