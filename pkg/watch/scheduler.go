package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/pipeline"
)

// Job is one scrape run; *pipeline.Runner satisfies it
type Job interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// Scheduler re-runs the scrape for one user every interval.
// Runs never overlap: the next due check happens only after the current run returns.
type Scheduler struct {
	job          Job
	username     string
	interval     time.Duration
	tick         time.Duration
	log          *logrus.Entry
	stateManager *StateManager
}

// NewScheduler creates a watch scheduler persisting its state under stateDir
func NewScheduler(job Job, username string, interval time.Duration, stateDir string, log *logrus.Entry) *Scheduler {
	s := &Scheduler{
		job:          job,
		username:     username,
		interval:     interval,
		log:          log.WithField("username", username),
		stateManager: NewStateManager(stateDir),
	}
	s.tick = s.calculateTickInterval()
	return s
}

// Run blocks until ctx is done, scraping whenever the user is due
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode with interval %s", FormatInterval(s.interval))
	s.logSchedule()

	s.runIfDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
			s.runIfDue(ctx)
		}
	}
}

// runIfDue runs the job once when the interval has elapsed and records the outcome
func (s *Scheduler) runIfDue(ctx context.Context) {
	if !s.stateManager.ShouldRun(s.username, s.interval) {
		return
	}
	s.log.Info("Scrape is due, running")

	res, err := s.job.Run(ctx)
	if ctx.Err() != nil && res != nil && !res.Status.WroteOutput() {
		// Shutdown before anything was written; keep the previous state so the next start retries
		return
	}

	state := UserState{}
	state.Status = models.RunStatusFailed
	if res != nil {
		if res.Status.IsTerminal() {
			state.Status = res.Status
		}
		state.Records = len(res.Records)
		state.Pages = res.Report.PagesFetched
	}
	if err != nil {
		state.ErrorMessage = err.Error()
	}
	s.stateManager.UpdateUserState(s.username, state)

	if serr := s.stateManager.Save(); serr != nil {
		s.log.Errorf("Failed to save watch state: %v", serr)
	}
	s.logNextRun()
}

// calculateTickInterval returns how often to check whether the user is due
func (s *Scheduler) calculateTickInterval() time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

func (s *Scheduler) logSchedule() {
	state, exists := s.stateManager.GetUserState(s.username)
	if !exists {
		s.log.Info("Never scraped, will run immediately")
		return
	}
	s.log.WithFields(logrus.Fields{
		"last_run": state.LastRunTime.Format(time.RFC3339),
		"status":   state.Status,
		"records":  state.Records,
		"next_run": s.stateManager.GetNextRunTime(s.username, s.interval).Format(time.RFC3339),
	}).Info("Watch schedule")
}

func (s *Scheduler) logNextRun() {
	next := s.stateManager.GetNextRunTime(s.username, s.interval)
	until := time.Until(next)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next scrape in %v (at %s)", until.Round(time.Second), next.Format("15:04:05"))
}

// Status returns the persisted state of the watched user
func (s *Scheduler) Status() UserStatus {
	state, exists := s.stateManager.GetUserState(s.username)
	return UserStatus{
		Username:    s.username,
		UserState:   state,
		NextRunTime: s.stateManager.GetNextRunTime(s.username, s.interval),
		NeverRun:    !exists,
	}
}

// UserStatus is the display form of a watched user's state
type UserStatus struct {
	Username string
	UserState
	NextRunTime time.Time
	NeverRun    bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for a day suffix ("1d", "1d12h")
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
