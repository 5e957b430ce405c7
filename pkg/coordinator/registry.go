package coordinator

import (
	"context"
	"sort"
	"sync"

	"github.com/Mathih13/botharness/pkg/models"
)

// runRegistry is the single owner of the active and completed run maps.
// All access goes through its methods under one lock; readers receive
// immutable snapshots, never live aggregates.
type runRegistry struct {
	mu        sync.Mutex
	active    map[string]*models.TestRun
	completed map[string]*models.TestRun
	cancels   map[string]context.CancelFunc
}

func newRunRegistry() *runRegistry {
	return &runRegistry{
		active:    make(map[string]*models.TestRun),
		completed: make(map[string]*models.TestRun),
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (r *runRegistry) add(run *models.TestRun, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[run.ID()] = run
	r.cancels[run.ID()] = cancel
}

// complete atomically moves a run from active to completed.
func (r *runRegistry) complete(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.active[runID]; ok {
		delete(r.active, runID)
		r.completed[runID] = run
	}
	delete(r.cancels, runID)
}

// cancel triggers cancellation for an active run. Returns false when the
// run is unknown or already finished.
func (r *runRegistry) cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// get returns a snapshot of the run, checking active before completed.
func (r *runRegistry) get(runID string) (models.TestRunView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.active[runID]; ok {
		return run.Snapshot(), true
	}
	if run, ok := r.completed[runID]; ok {
		return run.Snapshot(), true
	}
	return models.TestRunView{}, false
}

func (r *runRegistry) activeViews() []models.TestRunView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return runViews(r.active)
}

func (r *runRegistry) completedViews() []models.TestRunView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return runViews(r.completed)
}

func runViews(runs map[string]*models.TestRun) []models.TestRunView {
	views := make([]models.TestRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, run.Snapshot())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].StartedAt.Before(views[j].StartedAt)
	})
	return views
}

// suiteRegistry mirrors runRegistry for suite runs.
type suiteRegistry struct {
	mu        sync.Mutex
	active    map[string]*models.TestSuiteRun
	completed map[string]*models.TestSuiteRun
	cancels   map[string]context.CancelFunc
}

func newSuiteRegistry() *suiteRegistry {
	return &suiteRegistry{
		active:    make(map[string]*models.TestSuiteRun),
		completed: make(map[string]*models.TestSuiteRun),
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (r *suiteRegistry) add(s *models.TestSuiteRun, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[s.ID()] = s
	r.cancels[s.ID()] = cancel
}

func (r *suiteRegistry) complete(suiteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.active[suiteID]; ok {
		delete(r.active, suiteID)
		r.completed[suiteID] = s
	}
	delete(r.cancels, suiteID)
}

func (r *suiteRegistry) cancel(suiteID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[suiteID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (r *suiteRegistry) get(suiteID string) (models.TestSuiteRunView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.active[suiteID]; ok {
		return s.Snapshot(), true
	}
	if s, ok := r.completed[suiteID]; ok {
		return s.Snapshot(), true
	}
	return models.TestSuiteRunView{}, false
}

func (r *suiteRegistry) views() (active, completed []models.TestSuiteRunView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.active {
		active = append(active, s.Snapshot())
	}
	for _, s := range r.completed {
		completed = append(completed, s.Snapshot())
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartedAt.Before(active[j].StartedAt) })
	sort.Slice(completed, func(i, j int) bool { return completed[i].StartedAt.Before(completed[j].StartedAt) })
	return active, completed
}
