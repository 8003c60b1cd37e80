package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/config"
	"github.com/Sriram-PR/filmlog-scraper/pkg/diary"
	"github.com/Sriram-PR/filmlog-scraper/pkg/enrich"
	"github.com/Sriram-PR/filmlog-scraper/pkg/fetch"
	"github.com/Sriram-PR/filmlog-scraper/pkg/output"
	"github.com/Sriram-PR/filmlog-scraper/pkg/storage"
	"github.com/Sriram-PR/filmlog-scraper/pkg/tmdb"
)

// Build wires production components from validated config.
// store may be nil; it then disables both the catalog cache and checkpoints.
func Build(cfg *config.AppConfig, store storage.Store, log *logrus.Entry) (*Runner, error) {
	markup, err := diary.MarkupFor(cfg.MarkupVersion)
	if err != nil {
		return nil, err
	}

	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(httpClient, cfg.Fetch, cfg.UserAgent, log.WithField("component", "fetcher"))

	comp := Components{
		Source: fetcher,
		Markup: markup,
		Writer: output.NewFileWriter(cfg.OutputDir, log.WithField("component", "output")),
	}
	if cfg.RespectRobots {
		comp.Robots = fetch.NewRobotsGuard(fetcher, cfg.UserAgent, log.WithField("component", "robots"))
	}

	var catalog enrich.Catalog
	if cfg.TMDBEnabled() {
		catalog = tmdb.NewClient(cfg.TMDB, httpClient, log.WithField("component", "tmdb"))
	}
	opts := enrich.Options{Delay: cfg.TMDB.Delay, CacheTTL: cfg.TMDB.CacheTTL}
	if store != nil {
		if cfg.TMDB.EnableCache {
			opts.Cache = store
		}
		if cfg.EnableCheckpoint {
			comp.Checkpoints = store
		}
	}
	comp.Enricher = enrich.NewEnricher(catalog, opts, log.WithField("component", "enricher"))

	return NewRunner(cfg, comp, log), nil
}
