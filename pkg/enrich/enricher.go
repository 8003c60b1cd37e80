package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/fetch"
	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/tmdb"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// WeakMatchThreshold is the title similarity below which a first search result is flagged as doubtful
const WeakMatchThreshold = 0.85

// Catalog is the subset of the TMDB client used for enrichment; *tmdb.Client satisfies it
type Catalog interface {
	Search(ctx context.Context, title, year string) ([]tmdb.SearchResult, error)
	Details(ctx context.Context, id int) (*tmdb.MovieDetails, error)
	Credits(ctx context.Context, id int) (*tmdb.Credits, error)
}

// Cache stores enrichment results between runs; storage.BadgerStore satisfies it
type Cache interface {
	GetCatalog(key string, out any) (bool, error)
	PutCatalog(key string, v any, ttl time.Duration) error
}

// Status is the outcome class of one Enrich call
type Status int

const (
	StatusEnriched Status = iota // At least details or credits were applied
	StatusNoMatch                // Search returned no candidates; record unchanged
	StatusSkipped                // Enrichment disabled (no API key)
	StatusFailed                 // A call failed; fields filled before the failure are kept
)

func (s Status) String() string {
	switch s {
	case StatusEnriched:
		return "enriched"
	case StatusNoMatch:
		return "no_match"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome reports what Enrich did to a record
type Outcome struct {
	Status     Status
	Cached     bool    // Served from the cache without calling the API
	MatchScore float64 // Jaro-Winkler similarity of the diary title and the matched title, 0 when unknown
	Err        error   // Set for StatusFailed
}

// WeakMatch reports whether the catalog match was taken despite a dissimilar title
func (o Outcome) WeakMatch() bool {
	return o.MatchScore > 0 && o.MatchScore < WeakMatchThreshold
}

// Metadata is the cached form of one movie's enrichment
type Metadata struct {
	Matched        bool     `json:"matched"`
	CatalogID      int      `json:"catalog_id,omitempty"`
	MatchScore     float64  `json:"match_score,omitempty"`
	Director       string   `json:"director,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	RuntimeMinutes int      `json:"runtime,omitempty"`
	Country        string   `json:"country,omitempty"`
	Cast           []string `json:"cast,omitempty"`
}

// Options configure an Enricher
type Options struct {
	Delay    time.Duration // Fixed pause after every API-backed enrichment
	Cache    Cache         // Optional
	CacheTTL time.Duration
}

// Enricher fills director, genres, runtime, country and cast from the catalog.
// A nil catalog disables enrichment.
type Enricher struct {
	catalog Catalog
	opts    Options
	delay   fetch.Waiter
	log     *logrus.Entry
}

// NewEnricher creates an Enricher. Pass a nil catalog when no API key is configured.
func NewEnricher(catalog Catalog, opts Options, log *logrus.Entry) *Enricher {
	return &Enricher{
		catalog: catalog,
		opts:    opts,
		delay:   fetch.RandomDelay{Min: opts.Delay, Max: opts.Delay},
		log:     log,
	}
}

// Enabled reports whether a catalog is configured
func (e *Enricher) Enabled() bool { return e.catalog != nil }

// Enrich looks up rec in the catalog and fills its enrichment fields in place.
// It never removes data from rec and never returns an error; failures are reported in Outcome.
func (e *Enricher) Enrich(ctx context.Context, rec *models.MovieRecord) Outcome {
	if !e.Enabled() {
		return Outcome{Status: StatusSkipped}
	}

	recLog := e.log.WithFields(logrus.Fields{"title": rec.Title, "year": rec.ReleaseYear})
	key := utils.CacheKey("movie", rec.Title, rec.ReleaseYear)

	if e.opts.Cache != nil {
		var meta Metadata
		found, err := e.opts.Cache.GetCatalog(key, &meta)
		if err != nil {
			recLog.Warnf("Catalog cache read failed, querying API: %v", err)
		} else if found {
			if !meta.Matched {
				recLog.Debug("Cached no-match")
				return Outcome{Status: StatusNoMatch, Cached: true}
			}
			meta.apply(rec)
			recLog.Debug("Enriched from cache")
			return Outcome{Status: StatusEnriched, Cached: true, MatchScore: meta.MatchScore}
		}
	}

	meta, outcome := e.lookup(ctx, rec, recLog)
	outcome.MatchScore = meta.MatchScore
	if outcome.Status == StatusEnriched || outcome.Status == StatusNoMatch {
		e.store(key, meta, recLog)
	}

	// Rate limit the catalog API; cancellation cuts the pause short
	_ = e.delay.Wait(ctx)
	return outcome
}

// lookup runs search, details and credits, applying each result to rec as soon as it arrives
func (e *Enricher) lookup(ctx context.Context, rec *models.MovieRecord, recLog *logrus.Entry) (Metadata, Outcome) {
	var meta Metadata

	results, err := e.catalog.Search(ctx, rec.Title, rec.ReleaseYear)
	if err != nil {
		return meta, e.failed(recLog, "search", err)
	}
	if len(results) == 0 {
		recLog.Info("No catalog match")
		return meta, Outcome{Status: StatusNoMatch}
	}

	// First result is taken as canonical; the catalog ranks by relevance
	match := results[0]
	meta.Matched, meta.CatalogID = true, match.ID
	meta.MatchScore = titleSimilarity(rec.Title, match.Title)
	recLog = recLog.WithField("catalog_id", match.ID)
	if meta.MatchScore > 0 && meta.MatchScore < WeakMatchThreshold {
		recLog.WithFields(logrus.Fields{"matched_title": match.Title, "score": meta.MatchScore}).Warn("Weak title match, using first result anyway")
	}

	details, err := e.catalog.Details(ctx, match.ID)
	if err != nil {
		return meta, e.failed(recLog, "details", err)
	}
	applyDetails(&meta, details)
	meta.apply(rec)

	credits, err := e.catalog.Credits(ctx, match.ID)
	if err != nil {
		return meta, e.failed(recLog, "credits", err)
	}
	applyCredits(&meta, credits)
	meta.apply(rec)

	recLog.WithFields(logrus.Fields{"director": meta.Director, "runtime": meta.RuntimeMinutes}).Info("Enriched with catalog data")
	return meta, Outcome{Status: StatusEnriched}
}

// titleSimilarity compares titles case-insensitively; 0 when the catalog gave no title
func titleSimilarity(diaryTitle, catalogTitle string) float64 {
	a := strings.ToLower(strings.TrimSpace(diaryTitle))
	b := strings.ToLower(strings.TrimSpace(catalogTitle))
	if a == "" || b == "" {
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}

func (e *Enricher) failed(recLog *logrus.Entry, stage string, err error) Outcome {
	recLog.WithFields(logrus.Fields{"stage": stage, "category": utils.CategorizeError(err)}).Warnf("Catalog lookup failed, keeping record: %v", err)
	return Outcome{Status: StatusFailed, Err: fmt.Errorf("%s: %w", stage, err)}
}

func (e *Enricher) store(key string, meta Metadata, recLog *logrus.Entry) {
	if e.opts.Cache == nil {
		return
	}
	if err := e.opts.Cache.PutCatalog(key, meta, e.opts.CacheTTL); err != nil {
		recLog.Warnf("Catalog cache write failed: %v", err)
	}
}

func applyDetails(meta *Metadata, d *tmdb.MovieDetails) {
	if d == nil {
		return
	}
	meta.Genres = meta.Genres[:0]
	for _, g := range d.Genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			meta.Genres = append(meta.Genres, name)
		}
	}
	if d.Runtime > 0 {
		meta.RuntimeMinutes = d.Runtime
	}
	if len(d.ProductionCountries) > 0 {
		meta.Country = d.ProductionCountries[0].Name
	}
}

func applyCredits(meta *Metadata, c *tmdb.Credits) {
	if c == nil {
		return
	}
	for _, member := range c.Crew {
		if member.Job == "Director" {
			meta.Director = member.Name
			break
		}
	}
	meta.Cast = TopCast(c.Cast, models.MaxCastMembers)
}

// TopCast returns up to n names ordered by descending popularity.
// Equal popularity keeps billing order.
func TopCast(cast []tmdb.CastMember, n int) []string {
	sorted := make([]tmdb.CastMember, len(cast))
	copy(sorted, cast)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Popularity > sorted[j].Popularity
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	names := make([]string, 0, len(sorted))
	for _, m := range sorted {
		names = append(names, m.Name)
	}
	return names
}

// apply copies non-empty fields onto rec
func (m Metadata) apply(rec *models.MovieRecord) {
	if m.Director != "" {
		rec.Director = m.Director
	}
	if len(m.Genres) > 0 {
		rec.Genres = append([]string(nil), m.Genres...)
	}
	if m.RuntimeMinutes > 0 {
		rec.RuntimeMinutes = m.RuntimeMinutes
	}
	if m.Country != "" {
		rec.Country = m.Country
	}
	if len(m.Cast) > 0 {
		rec.Cast = append([]string(nil), m.Cast...)
	}
}
