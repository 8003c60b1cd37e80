package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
)

const stateFileName = "watch_state.json"

// UserState is the outcome of the last scheduled run for one user
type UserState struct {
	LastRunTime  time.Time        `json:"last_run_time"`
	Status       models.RunStatus `json:"status"`
	Records      int              `json:"records"`
	Pages        int              `json:"pages"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Succeeded reports whether the last run wrote complete output
func (u UserState) Succeeded() bool { return u.Status == models.RunStatusCompleted }

// WatchState is the persisted form of the state file
type WatchState struct {
	Users     map[string]UserState `json:"users"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	now       func() time.Time
	mu        sync.RWMutex
}

// NewStateManager creates a state manager for stateDir/watch_state.json
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     WatchState{Users: make(map[string]UserState)},
		now:       time.Now,
	}
}

// Load reads the state from disk; a missing file is an empty state
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Users: make(map[string]UserState)}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	if m.state.Users == nil {
		m.state.Users = make(map[string]UserState)
	}
	return nil
}

// Save writes the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = m.now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// GetUserState returns the state for username
func (m *StateManager) GetUserState(username string) (UserState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Users[username]
	return state, ok
}

// UpdateUserState stores state for username, stamped with the current time
func (m *StateManager) UpdateUserState(username string, state UserState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.LastRunTime = m.now()
	m.state.Users[username] = state
}

// ShouldRun reports whether username has never run or interval has elapsed since its last run
func (m *StateManager) ShouldRun(username string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Users[username]
	if !ok {
		return true
	}
	return m.now().Sub(state.LastRunTime) >= interval
}

// GetNextRunTime returns when username should next run
func (m *StateManager) GetNextRunTime(username string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Users[username]
	if !ok {
		return m.now()
	}
	return state.LastRunTime.Add(interval)
}
