package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/config"
	"github.com/Sriram-PR/filmlog-scraper/pkg/diary"
	"github.com/Sriram-PR/filmlog-scraper/pkg/enrich"
	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/output"
	"github.com/Sriram-PR/filmlog-scraper/pkg/stats"
	"github.com/Sriram-PR/filmlog-scraper/pkg/storage"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// enrichCheckpointEvery controls how often enrichment progress is checkpointed
const enrichCheckpointEvery = 10

// RobotsChecker reports whether a URL may be fetched; *fetch.RobotsGuard satisfies it
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Components are the collaborators a Runner drives. Robots, Checkpoints and Profile are optional.
type Components struct {
	Source      diary.PageSource
	Markup      diary.Markup
	Robots      RobotsChecker
	Enricher    *enrich.Enricher
	Checkpoints storage.CheckpointStore
	Writer      output.Writer
}

// Result describes one finished run
type Result struct {
	RunID         string
	Status        models.RunStatus
	Records       []models.MovieRecord
	Summary       models.StatsSummary
	Report        diary.PageReport
	Enrichment    map[enrich.Status]int
	CacheHits     int
	WeakMatches   int // Enriched from a first search result whose title differed noticeably
	EnrichedFilms int // Records carrying any catalog field
	ProfileFilms  int
	Duration      time.Duration
	OutputWritten bool
}

// Runner executes one scrape: diary walk, enrichment, aggregation and output
type Runner struct {
	cfg  *config.AppConfig
	comp Components
	now  func() time.Time
	log  *logrus.Entry
}

// NewRunner creates a Runner over validated config and wired components
func NewRunner(cfg *config.AppConfig, comp Components, log *logrus.Entry) *Runner {
	return &Runner{cfg: cfg, comp: comp, now: time.Now, log: log}
}

// Run performs a full scrape. Whatever was collected is written even when ctx is
// cancelled or a stage panics; the returned error then explains why the run is partial.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	start := r.now()
	res = &Result{RunID: uuid.NewString(), Status: models.RunStatusRunning, Enrichment: map[enrich.Status]int{}}
	runLog := r.log.WithFields(logrus.Fields{"run_id": res.RunID, "username": r.cfg.Username})
	runLog.Info("Starting scrape run")

	defer func() {
		if p := recover(); p != nil {
			runLog.WithField("panic", p).Errorf("Recovered panic during run\n%s", debug.Stack())
			err = fmt.Errorf("panic during run: %v", p)
			r.finishAfterPanic(res, runLog)
		}
		res.Duration = r.now().Sub(start)
		runLog.WithFields(logrus.Fields{
			"status":   res.Status,
			"records":  len(res.Records),
			"duration": res.Duration.Round(time.Millisecond),
		}).Info("Scrape run finished")
	}()

	parser := diary.NewRowParser(r.comp.Markup, runLog.WithField("component", "parser"))
	driver := diary.NewDriver(r.comp.Source, parser, r.cfg.BaseURL, r.cfg.Username, runLog.WithField("component", "driver"))

	if r.comp.Robots != nil && r.cfg.RespectRobots {
		firstPage := driver.PageURL(1)
		if !r.comp.Robots.Allowed(ctx, firstPage) {
			res.Status = models.RunStatusFailed
			return res, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, firstPage)
		}
	}

	if config.GetEffectiveScrapeProfile(*r.cfg) {
		profile := diary.NewProfileScraper(r.comp.Source, r.cfg.BaseURL, r.cfg.Username, runLog.WithField("component", "profile"))
		count, perr := profile.FilmCount(ctx)
		if perr != nil {
			runLog.WithField("category", utils.CategorizeError(perr)).Warnf("Could not read profile film count: %v", perr)
		}
		res.ProfileFilms = count
	}

	checkpoint := &models.RunCheckpoint{RunID: res.RunID, Username: r.cfg.Username}
	if r.comp.Checkpoints != nil {
		driver.SetObserver(&checkpointObserver{runner: r, cp: checkpoint, log: runLog})
	}

	report, walkErr := driver.Run(ctx, r.cfg.MaxPages)
	res.Report = report
	res.Records = report.Records
	runLog.WithFields(logrus.Fields{
		"pages":        report.PagesFetched,
		"records":      len(report.Records),
		"rows_skipped": report.RowsSkipped,
		"rows_failed":  report.RowsFailed,
		"stop_reason":  report.StopReason,
	}).Info("Diary walk complete")
	if report.StopReason == diary.StopFetchFailed && report.PagesFetched == 0 {
		runLog.Warnf("First diary page could not be fetched: %v", report.LastErr)
	}
	if walkErr != nil {
		werr := r.finish(res, runLog, models.RunStatusPartial)
		return res, errors.Join(fmt.Errorf("diary walk interrupted: %w", walkErr), werr)
	}

	if enrichErr := r.enrichAll(ctx, res, checkpoint, runLog); enrichErr != nil {
		werr := r.finish(res, runLog, models.RunStatusPartial)
		return res, errors.Join(fmt.Errorf("enrichment interrupted: %w", enrichErr), werr)
	}

	if werr := r.finish(res, runLog, models.RunStatusCompleted); werr != nil {
		return res, werr
	}
	return res, nil
}

// enrichAll enriches records in collection order; only cancellation stops it early
func (r *Runner) enrichAll(ctx context.Context, res *Result, cp *models.RunCheckpoint, runLog *logrus.Entry) error {
	if r.comp.Enricher == nil || !r.comp.Enricher.Enabled() {
		runLog.Info("No catalog API key configured, skipping enrichment")
		res.Enrichment[enrich.StatusSkipped] = len(res.Records)
		return nil
	}

	for i := range res.Records {
		if err := ctx.Err(); err != nil {
			runLog.WithField("enriched", i).Warn("Context cancelled during enrichment")
			return err
		}
		outcome := r.enrichOne(ctx, &res.Records[i], runLog)
		res.Enrichment[outcome.Status]++
		if outcome.Cached {
			res.CacheHits++
		}
		if outcome.WeakMatch() {
			res.WeakMatches++
		}
		if (i+1)%enrichCheckpointEvery == 0 {
			r.saveCheckpoint(cp, res.Records, i+1, false, runLog)
		}
	}
	runLog.WithFields(logrus.Fields{
		"enriched":   res.Enrichment[enrich.StatusEnriched],
		"no_match":   res.Enrichment[enrich.StatusNoMatch],
		"failed":     res.Enrichment[enrich.StatusFailed],
		"cache_hits": res.CacheHits,
		"weak_match": res.WeakMatches,
	}).Info("Enrichment complete")
	return nil
}

// enrichOne enriches a single record; a panic is contained to that record
func (r *Runner) enrichOne(ctx context.Context, rec *models.MovieRecord, runLog *logrus.Entry) (outcome enrich.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			runLog.WithFields(logrus.Fields{"title": rec.Title, "panic": p}).Errorf("Recovered panic while enriching record\n%s", debug.Stack())
			outcome = enrich.Outcome{Status: enrich.StatusFailed, Err: fmt.Errorf("%w: panic during enrichment: %v", utils.ErrCatalogAPI, p)}
		}
	}()
	return r.comp.Enricher.Enrich(ctx, rec)
}

// finish aggregates and writes output, then records the final checkpoint.
// A write failure turns the run into RunStatusFailed.
func (r *Runner) finish(res *Result, runLog *logrus.Entry, status models.RunStatus) error {
	summary := stats.Compute(res.Records, r.now())
	summary.ProfileFilmCount = res.ProfileFilms
	res.Summary = summary
	res.Status = status
	res.EnrichedFilms = countEnriched(res.Records)

	if r.comp.Checkpoints != nil {
		cp := &models.RunCheckpoint{
			RunID:    res.RunID,
			Username: r.cfg.Username,
			Page:     res.Report.PagesFetched,
			State:    res.Report.State,
		}
		enriched := res.Enrichment[enrich.StatusEnriched] + res.Enrichment[enrich.StatusNoMatch] + res.Enrichment[enrich.StatusFailed]
		r.saveCheckpoint(cp, res.Records, enriched, status == models.RunStatusCompleted, runLog)
	}

	if r.comp.Writer == nil {
		return nil
	}
	if err := r.comp.Writer.Write(res.Records, summary); err != nil {
		res.Status = models.RunStatusFailed
		runLog.WithField("category", utils.CategorizeError(err)).Errorf("Failed to write output: %v", err)
		return utils.WrapErrorf(err, "writing output")
	}
	res.OutputWritten = true
	return nil
}

// finishAfterPanic writes partial output; a second panic while writing marks the run failed
func (r *Runner) finishAfterPanic(res *Result, runLog *logrus.Entry) {
	defer func() {
		if p := recover(); p != nil {
			runLog.WithField("panic", p).Error("Panic while writing partial output")
			res.Status = models.RunStatusFailed
		}
	}()
	_ = r.finish(res, runLog, models.RunStatusPartial)
}

func (r *Runner) saveCheckpoint(cp *models.RunCheckpoint, records []models.MovieRecord, enriched int, completed bool, runLog *logrus.Entry) {
	if r.comp.Checkpoints == nil {
		return
	}
	cp.Records = records
	cp.Enriched = enriched
	cp.Completed = completed
	cp.UpdatedAt = r.now()
	if err := r.comp.Checkpoints.SaveCheckpoint(cp); err != nil {
		runLog.WithField("category", utils.CategorizeError(err)).Warnf("Checkpoint save failed: %v", err)
	}
}

// WriteCheckpoint writes the output of a saved run (latest when runID is empty).
// Used to recover the records of a process that died before writing.
func (r *Runner) WriteCheckpoint(runID string) (*Result, error) {
	if r.comp.Checkpoints == nil {
		return nil, errors.New("checkpoints are not enabled")
	}
	cp, err := r.comp.Checkpoints.LoadCheckpoint(runID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: no checkpoint found", utils.ErrDatabase)
	}

	status := models.RunStatusPartial
	if cp.Completed {
		status = models.RunStatusCompleted
	}
	res := &Result{
		RunID:      cp.RunID,
		Records:    cp.Records,
		Report:     diary.PageReport{Records: cp.Records, State: cp.State, PagesFetched: cp.Page},
		Enrichment: map[enrich.Status]int{},
	}
	resLog := r.log.WithFields(logrus.Fields{"run_id": cp.RunID, "records": len(cp.Records)})
	resLog.Info("Writing output from checkpoint")

	summary := stats.Compute(res.Records, r.now())
	res.Summary, res.Status = summary, status
	res.EnrichedFilms = countEnriched(res.Records)
	if r.comp.Writer != nil {
		if err := r.comp.Writer.Write(res.Records, summary); err != nil {
			res.Status = models.RunStatusFailed
			return res, utils.WrapErrorf(err, "writing output")
		}
		res.OutputWritten = true
	}
	return res, nil
}

func countEnriched(records []models.MovieRecord) int {
	n := 0
	for _, rec := range records {
		if rec.IsEnriched() {
			n++
		}
	}
	return n
}

// checkpointObserver saves collected records after every diary page
type checkpointObserver struct {
	runner *Runner
	cp     *models.RunCheckpoint
	log    *logrus.Entry
}

func (o *checkpointObserver) PageDone(page int, state models.ParseState, records []models.MovieRecord) {
	o.cp.Page = page
	o.cp.State = state
	o.runner.saveCheckpoint(o.cp, append([]models.MovieRecord(nil), records...), 0, false, o.log)
}
