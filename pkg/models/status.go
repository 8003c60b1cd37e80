package models

// RunStatus represents the outcome of a scrape run
type RunStatus string

const (
	RunStatusUnset     RunStatus = ""          // Zero value = unset/unknown
	RunStatusRunning   RunStatus = "running"   // Run in progress (checkpoint written mid-run)
	RunStatusCompleted RunStatus = "completed" // Diary exhausted or page cap reached, output written
	RunStatusPartial   RunStatus = "partial"   // Run interrupted, partial output written
	RunStatusFailed    RunStatus = "failed"    // Nothing could be written
)

// String implements fmt.Stringer for logging
func (s RunStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsTerminal returns true once a run can no longer change state
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}

// WroteOutput returns true if the run produced output files
func (s RunStatus) WroteOutput() bool {
	return s == RunStatusCompleted || s == RunStatusPartial
}
