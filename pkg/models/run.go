package models

import (
	"fmt"
	"sync"
	"time"
)

// TaskResult records the outcome of one task for one bot.
type TaskResult struct {
	TaskName     string        `json:"task_name"`
	Status       TaskStatus    `json:"status"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// BotResult holds the per-bot outcome of a test run. It is owned by its
// parent TestRun and mutated only through TestRun methods until the run
// is terminal.
type BotResult struct {
	BotName       string       `json:"bot_name"`
	CharacterName string       `json:"character_name,omitempty"`
	Class         string       `json:"class"`
	Success       bool         `json:"success"`
	Complete      bool         `json:"complete"`
	Tasks         []TaskResult `json:"tasks"`
	Logs          []string     `json:"logs,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

// TasksByStatus counts this bot's terminal task results with the given status.
func (b *BotResult) TasksByStatus(status TaskStatus) int {
	n := 0
	for _, t := range b.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// TestRun is the aggregate result of one multi-bot test run. All mutation
// goes through its methods. Once the status is terminal, status changes
// and error updates are rejected; AddBot, SetCharacterName and AppendLog
// do not check the status. Readers receive deep-copied snapshots.
type TestRun struct {
	mu sync.RWMutex

	id           string
	routeName    string
	routePath    string
	status       RunStatus
	startedAt    time.Time
	completedAt  *time.Time
	errorMessage string
	bots         []*BotResult
}

// NewTestRun creates a pending test run.
func NewTestRun(id, routeName, routePath string) *TestRun {
	return &TestRun{
		id:        id,
		routeName: routeName,
		routePath: routePath,
		status:    RunStatusPending,
		startedAt: time.Now(),
	}
}

// ID returns the run's identifier.
func (r *TestRun) ID() string { return r.id }

// Status returns the current run status.
func (r *TestRun) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus transitions the run. The completion timestamp is set exactly
// when the run turns terminal. Transitions out of a terminal status are
// rejected.
func (r *TestRun) SetStatus(status RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return fmt.Errorf("run %s is already terminal (%s)", r.id, r.status)
	}
	r.status = status
	if status.Terminal() {
		now := time.Now()
		r.completedAt = &now
	}
	return nil
}

// SetError records the run-level error message. No-op once terminal.
func (r *TestRun) SetError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.errorMessage = msg
}

// AddBot attaches a new bot result and returns its index.
func (r *TestRun) AddBot(botName, class string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots = append(r.bots, &BotResult{
		BotName:   botName,
		Class:     class,
		StartedAt: time.Now(),
	})
	return len(r.bots) - 1
}

// BotCount returns the number of attached bots.
func (r *TestRun) BotCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

// SetCharacterName records a bot's character name after login.
func (r *TestRun) SetCharacterName(botIndex int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.bot(botIndex); b != nil {
		b.CharacterName = name
	}
}

// CharacterName returns a bot's character name, empty if unknown.
func (r *TestRun) CharacterName(botIndex int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b := r.bot(botIndex); b != nil {
		return b.CharacterName
	}
	return ""
}

// AppendTaskResult records one completed task for a bot.
func (r *TestRun) AppendTaskResult(botIndex int, result TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	if b := r.bot(botIndex); b != nil {
		b.Tasks = append(b.Tasks, result)
	}
}

// AppendLog adds a free-form log line to a bot.
func (r *TestRun) AppendLog(botIndex int, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.bot(botIndex); b != nil {
		b.Logs = append(b.Logs, line)
	}
}

// CompleteBot marks a bot's route as finished.
func (r *TestRun) CompleteBot(botIndex int, success bool, errorMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	b := r.bot(botIndex)
	if b == nil || b.Complete {
		return
	}
	now := time.Now()
	b.Complete = true
	b.Success = success
	b.ErrorMessage = errorMessage
	b.CompletedAt = &now
}

// BotsCompleted counts bots whose route has finished.
func (r *TestRun) BotsCompleted() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.bots {
		if b.Complete {
			n++
		}
	}
	return n
}

// BotsPassed counts completed bots that succeeded.
func (r *TestRun) BotsPassed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.bots {
		if b.Complete && b.Success {
			n++
		}
	}
	return n
}

// BotsFailed counts completed bots that failed.
func (r *TestRun) BotsFailed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.bots {
		if b.Complete && !b.Success {
			n++
		}
	}
	return n
}

// Passed reports whether the run completed with every bot succeeding.
func (r *TestRun) Passed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status != RunStatusCompleted {
		return false
	}
	for _, b := range r.bots {
		if !b.Complete || !b.Success {
			return false
		}
	}
	return true
}

// bot returns the bot at index, nil when out of range. Caller holds mu.
func (r *TestRun) bot(i int) *BotResult {
	if i < 0 || i >= len(r.bots) {
		return nil
	}
	return r.bots[i]
}

// TestRunView is an immutable snapshot of a TestRun for readers and
// serialization.
type TestRunView struct {
	ID            string      `json:"id"`
	RouteName     string      `json:"route_name"`
	RoutePath     string      `json:"route_path"`
	Status        RunStatus   `json:"status"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	Bots          []BotResult `json:"bots"`
	BotsCompleted int         `json:"bots_completed"`
	BotsPassed    int         `json:"bots_passed"`
	BotsFailed    int         `json:"bots_failed"`
}

// Duration returns the run's elapsed time, live for non-terminal runs.
func (v TestRunView) Duration() time.Duration {
	if v.CompletedAt != nil {
		return v.CompletedAt.Sub(v.StartedAt)
	}
	return time.Since(v.StartedAt)
}

// Snapshot returns a deep copy safe to hand to external readers.
func (r *TestRun) Snapshot() TestRunView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view := TestRunView{
		ID:           r.id,
		RouteName:    r.routeName,
		RoutePath:    r.routePath,
		Status:       r.status,
		StartedAt:    r.startedAt,
		ErrorMessage: r.errorMessage,
		Bots:         make([]BotResult, 0, len(r.bots)),
	}
	if r.completedAt != nil {
		t := *r.completedAt
		view.CompletedAt = &t
	}
	for _, b := range r.bots {
		copied := *b
		copied.Tasks = append([]TaskResult(nil), b.Tasks...)
		copied.Logs = append([]string(nil), b.Logs...)
		if b.CompletedAt != nil {
			t := *b.CompletedAt
			copied.CompletedAt = &t
		}
		view.Bots = append(view.Bots, copied)
		if b.Complete {
			view.BotsCompleted++
			if b.Success {
				view.BotsPassed++
			} else {
				view.BotsFailed++
			}
		}
	}
	return view
}
