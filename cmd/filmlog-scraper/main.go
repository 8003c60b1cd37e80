package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/filmlog-scraper/pkg/config"
	"github.com/Sriram-PR/filmlog-scraper/pkg/diary"
	applog "github.com/Sriram-PR/filmlog-scraper/pkg/log"
	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/pipeline"
	"github.com/Sriram-PR/filmlog-scraper/pkg/storage"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
	"github.com/Sriram-PR/filmlog-scraper/pkg/watch"
)

const version = "0.4.0"

// gcInterval is how often the state DB value log is garbage collected
const gcInterval = 10 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "scrape":
		os.Exit(runScrape(os.Args[2:]))
	case "watch":
		os.Exit(runWatch(os.Args[2:]))
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "version":
		fmt.Printf("filmlog-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `filmlog-scraper - Film diary scraper with catalog enrichment

Usage:
  filmlog-scraper <command> [options] [username]

Commands:
  scrape      Scrape the diary once and write movies.csv and stats.json
  watch       Re-scrape on a schedule
  validate    Validate configuration without touching the network
  version     Show version info

The username comes from the positional argument, -user, $LETTERBOXD_USERNAME or the
config file, in that order. Set $TMDB_API_KEY to enable enrichment.

Run 'filmlog-scraper <command> -h' for command-specific help.`)
}

// options are the flags shared by scrape, watch and validate
type options struct {
	configFile  string
	user        string
	logLevel    string
	outputDir   string
	markup      string
	maxPages    int
	noProfile   bool
	resumeOut   bool
	refreshDrop bool
	interval    string
}

func newFlagSet(name string, opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.configFile, "config", "", "Path to YAML config file (optional)")
	fs.StringVar(&opts.user, "user", "", "Diary username")
	fs.StringVar(&opts.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&opts.outputDir, "output", "", "Output directory for movies.csv and stats.json")
	fs.StringVar(&opts.markup, "markup", "", "Diary markup version (classic, modern)")
	fs.IntVar(&opts.maxPages, "pages", 0, "Maximum diary pages to fetch")
	fs.BoolVar(&opts.noProfile, "no-profile", false, "Skip reading the profile page film count")
	return fs
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// resolveConfig merges config file, environment and flags, then validates.
// Precedence for the username: positional argument, -user, environment, file.
func resolveConfig(opts options, args []string, lookup func(string) (string, bool)) (*config.AppConfig, []string, error) {
	cfg := &config.AppConfig{}
	if opts.configFile != "" {
		loaded, err := loadConfig(opts.configFile)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv(lookup)

	if opts.user != "" {
		cfg.Username = opts.user
	}
	if len(args) > 0 && args[0] != "" {
		cfg.Username = args[0]
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.markup != "" {
		cfg.MarkupVersion = opts.markup
	}
	if opts.maxPages > 0 {
		cfg.MaxPages = opts.maxPages
	}
	if opts.noProfile {
		no := false
		cfg.ScrapeProfile = &no
	}
	if opts.interval != "" {
		interval, err := watch.ParseInterval(opts.interval)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
		}
		cfg.Watch.Interval = interval
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// setupLogger creates the root logger for a subcommand
func setupLogger(level string) *logrus.Logger {
	log, err := applog.New(level, os.Stderr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", level, err)
	}
	return log
}

// openStore opens the state DB when checkpoints or the catalog cache need it
func openStore(cfg *config.AppConfig, log *logrus.Entry) (*storage.BadgerStore, error) {
	if !cfg.EnableCheckpoint && !(cfg.TMDB.EnableCache && cfg.TMDBEnabled()) {
		return nil, nil
	}
	return storage.NewBadgerStore(cfg.StateDir, cfg.Username, log.WithField("component", "storage"))
}

// logStoreStats reports how much the state DB already holds
func logStoreStats(admin storage.StoreAdmin, log *logrus.Entry) {
	cached, err := admin.CountKeys(storage.CatalogKeyPrefix)
	if err != nil {
		log.Warnf("Failed to count cached catalog entries: %v", err)
		return
	}
	runs, err := admin.CountKeys(storage.RunKeyPrefix)
	if err != nil {
		log.Warnf("Failed to count run checkpoints: %v", err)
		return
	}
	log.WithFields(logrus.Fields{"cached_catalog": cached, "checkpoints": runs}).Info("State DB opened")
}

// signalContext is cancelled on the first SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runScrape handles the scrape subcommand and returns the process exit code
func runScrape(args []string) int {
	var opts options
	fs := newFlagSet("scrape", &opts)
	fs.BoolVar(&opts.resumeOut, "resume-output", false, "Write output from the latest checkpoint instead of scraping")
	fs.BoolVar(&opts.refreshDrop, "refresh-cache", false, "Drop cached catalog metadata before enriching")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: filmlog-scraper scrape [options] [username]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  filmlog-scraper scrape cinephile\n")
		fmt.Fprintf(os.Stderr, "  filmlog-scraper scrape -config config.yaml -pages 5\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := setupLogger(opts.logLevel)
	cfg, warnings, err := resolveConfig(opts, fs.Args(), os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	logAppConfig(cfg, log)
	entry := logrus.NewEntry(log)

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(cfg, entry)
	if err != nil {
		log.Errorf("Failed to open state DB: %v", err)
		return 1
	}
	var pipelineStore storage.Store
	if store != nil {
		defer store.Close()
		pipelineStore = store
		if opts.refreshDrop {
			if err := store.DropCatalog(); err != nil {
				log.Warnf("Failed to drop catalog cache: %v", err)
			}
		}
		logStoreStats(store, entry)
	}

	runner, err := pipeline.Build(cfg, pipelineStore, entry)
	if err != nil {
		log.Errorf("Failed to initialize pipeline: %v", err)
		return 1
	}

	if opts.resumeOut {
		res, err := runner.WriteCheckpoint("")
		if err != nil {
			log.Errorf("Writing checkpoint output failed: %v", err)
			return 1
		}
		log.Infof("Wrote %d records from checkpoint %s", len(res.Records), res.RunID)
		return 0
	}

	var res *pipeline.Result
	runCtx, cancelRun := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancelRun()
		var runErr error
		res, runErr = runner.Run(gctx)
		return runErr
	})
	if store != nil {
		g.Go(func() error {
			store.RunGC(gctx, gcInterval)
			return nil
		})
	}
	runErr := g.Wait()
	if ctx.Err() != nil {
		log.Warn("Received shutdown signal, collected records were written")
	}

	printSummary(res, os.Stdout)
	return exitCode(res, runErr, log)
}

// exitCode maps a run outcome to the process exit status
func exitCode(res *pipeline.Result, err error, log *logrus.Logger) int {
	if res == nil {
		log.Errorf("Scrape did not start: %v", err)
		return 1
	}
	switch res.Status {
	case models.RunStatusCompleted:
		if err != nil {
			log.Errorf("Scrape finished with error: %v", err)
			return 1
		}
		return 0
	case models.RunStatusPartial:
		log.Warnf("Scrape interrupted, partial output written: %v", err)
		return 130
	default:
		log.WithField("category", utils.CategorizeError(err)).Errorf("Scrape failed: %v", err)
		return 1
	}
}

// printSummary renders the headline numbers of a run as a table
func printSummary(res *pipeline.Result, w io.Writer) {
	if res == nil || !res.OutputWritten {
		return
	}
	s := res.Summary

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Stat", "Value"})
	t.AppendRow(table.Row{"Films logged", s.TotalFilms})
	t.AppendRow(table.Row{"Films this year", s.FilmsThisYear})
	t.AppendRow(table.Row{"Average rating", fmt.Sprintf("%.1f", s.AverageRating)})
	t.AppendRow(table.Row{"Total runtime", fmt.Sprintf("%dh%02dm", s.TotalRuntimeMinutes/60, s.TotalRuntimeMinutes%60)})
	if s.ProfileFilmCount > 0 {
		t.AppendRow(table.Row{"Profile films", s.ProfileFilmCount})
	}
	if len(s.TopDirectors) > 0 {
		t.AppendRow(table.Row{"Top director", fmt.Sprintf("%s (%d)", s.TopDirectors[0].Name, s.TopDirectors[0].Count)})
	}
	if res.EnrichedFilms > 0 {
		t.AppendRow(table.Row{"Enriched films", fmt.Sprintf("%d/%d", res.EnrichedFilms, len(res.Records))})
	}
	if res.WeakMatches > 0 {
		t.AppendRow(table.Row{"Weak catalog matches", res.WeakMatches})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// runWatch handles the watch subcommand
func runWatch(args []string) int {
	var opts options
	fs := newFlagSet("watch", &opts)
	fs.StringVar(&opts.interval, "interval", "", "Scrape interval (e.g., 30m, 12h, 1d); defaults to watch.interval or 24h")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: filmlog-scraper watch [options] [username]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  filmlog-scraper watch -interval 1d cinephile\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := setupLogger(opts.logLevel)
	cfg, warnings, err := resolveConfig(opts, fs.Args(), os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	logAppConfig(cfg, log)
	entry := logrus.NewEntry(log)

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(cfg, entry)
	if err != nil {
		log.Errorf("Failed to open state DB: %v", err)
		return 1
	}
	var pipelineStore storage.Store
	if store != nil {
		defer store.Close()
		pipelineStore = store
	}

	runner, err := pipeline.Build(cfg, pipelineStore, entry)
	if err != nil {
		log.Errorf("Failed to initialize pipeline: %v", err)
		return 1
	}

	scheduler := watch.NewScheduler(runner, cfg.Username, cfg.Watch.Interval, cfg.StateDir, entry.WithField("component", "watch"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	if store != nil {
		g.Go(func() error {
			store.RunGC(gctx, gcInterval)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("Watch mode stopped: %v", err)
		return 1
	}
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) int {
	var opts options
	fs := newFlagSet("validate", &opts)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: filmlog-scraper validate [options] [username]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return doValidate(opts, fs.Args(), os.LookupEnv, os.Stdout, os.Stderr)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(opts options, args []string, lookup func(string) (string, bool), stdout, stderr io.Writer) int {
	cfg, warnings, err := resolveConfig(opts, args, lookup)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if _, err := diary.MarkupFor(cfg.MarkupVersion); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if !cfg.TMDBEnabled() {
		fmt.Fprintf(stdout, "WARN: no catalog API key (%s), enrichment disabled\n", config.EnvTMDBAPIKey)
	}
	fmt.Fprintf(stdout, "OK: user '%s', up to %d pages, output to %s\n", cfg.Username, cfg.MaxPages, cfg.OutputDir)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration without secrets
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"username":        cfg.Username,
		"base_url":        cfg.BaseURL,
		"max_pages":       cfg.MaxPages,
		"markup":          cfg.MarkupVersion,
		"output_dir":      cfg.OutputDir,
		"respect_robots":  cfg.RespectRobots,
		"scrape_profile":  config.GetEffectiveScrapeProfile(*cfg),
		"enrichment":      cfg.TMDBEnabled(),
		"catalog_cache":   cfg.TMDB.EnableCache,
		"checkpoints":     cfg.EnableCheckpoint,
		"fetch_retries":   cfg.Fetch.Retries(),
		"fetch_timeout":   cfg.Fetch.Timeout,
		"pre_delay_range": fmt.Sprintf("%v-%v", cfg.Fetch.PreRequestDelayMin, cfg.Fetch.PreRequestDelayMax),
	}).Info("Effective configuration")
}
