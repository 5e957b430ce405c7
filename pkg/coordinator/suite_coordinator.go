package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Mathih13/botharness/pkg/models"
	"github.com/Mathih13/botharness/pkg/suite"
)

// ErrSuiteNotFound is returned for operations on an unknown suite run id.
var ErrSuiteNotFound = errors.New("suite run not found")

// SuiteCoordinator orchestrates dependency-ordered execution of many test
// runs, sequentially or level-parallel.
type SuiteCoordinator struct {
	routes   string
	runs     *RunCoordinator
	registry *suiteRegistry
}

// NewSuiteCoordinator creates a suite coordinator delegating individual
// runs to the given run coordinator.
func NewSuiteCoordinator(routesDir string, runs *RunCoordinator) *SuiteCoordinator {
	return &SuiteCoordinator{
		routes:   routesDir,
		runs:     runs,
		registry: newSuiteRegistry(),
	}
}

// StartSuiteRun loads, validates, and executes the suite at path,
// blocking until it reaches a terminal status. Validation errors are
// returned before any suite run registers.
func (c *SuiteCoordinator) StartSuiteRun(ctx context.Context, suitePath string, parallel bool) (models.TestSuiteRunView, error) {
	s, err := suite.Load(suitePath)
	if err != nil {
		return models.TestSuiteRunView{}, err
	}
	if errs := s.Validate(); len(errs) > 0 {
		return models.TestSuiteRunView{}, fmt.Errorf("suite %q is invalid: %w", s.Name, errors.Join(errs...))
	}
	levels, err := s.ExecutionLevels()
	if err != nil {
		return models.TestSuiteRunView{}, err
	}

	suiteID := uuid.New().String()[:8]
	run := models.NewTestSuiteRun(suiteID, s.Name, suitePath, parallel, len(s.Entries))

	suiteCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.registry.add(run, cancel)

	c.execute(suiteCtx, run, s, levels, parallel)

	view := run.Snapshot()
	c.registry.complete(suiteID)
	c.runs.services.Broadcaster.SuiteCompleted(view)
	return view, nil
}

// LaunchSuiteRun registers and starts a suite run in the background,
// returning its id immediately. Load and validation errors are returned
// before anything registers.
func (c *SuiteCoordinator) LaunchSuiteRun(suitePath string, parallel bool) (string, error) {
	s, err := suite.Load(suitePath)
	if err != nil {
		return "", err
	}
	if errs := s.Validate(); len(errs) > 0 {
		return "", fmt.Errorf("suite %q is invalid: %w", s.Name, errors.Join(errs...))
	}
	levels, err := s.ExecutionLevels()
	if err != nil {
		return "", err
	}

	suiteID := uuid.New().String()[:8]
	run := models.NewTestSuiteRun(suiteID, s.Name, suitePath, parallel, len(s.Entries))

	suiteCtx, cancel := context.WithCancel(context.Background())
	c.registry.add(run, cancel)

	go func() {
		defer cancel()
		c.execute(suiteCtx, run, s, levels, parallel)
		view := run.Snapshot()
		c.registry.complete(suiteID)
		c.runs.services.Broadcaster.SuiteCompleted(view)
	}()
	return suiteID, nil
}

// Stop cancels an active suite run; cancellation propagates into the
// in-flight test runs through the shared context.
func (c *SuiteCoordinator) Stop(suiteID string) bool {
	return c.registry.cancel(suiteID)
}

// GetSuiteRun returns a snapshot of an active or completed suite run.
func (c *SuiteCoordinator) GetSuiteRun(suiteID string) (models.TestSuiteRunView, bool) {
	return c.registry.get(suiteID)
}

// SuiteRuns returns snapshots of active and completed suite runs.
func (c *SuiteCoordinator) SuiteRuns() (active, completed []models.TestSuiteRunView) {
	return c.registry.views()
}

// execute walks the suite's levels, applying the can-run predicate and
// recording per-entry outcomes.
func (c *SuiteCoordinator) execute(ctx context.Context, run *models.TestSuiteRun, s *suite.Suite, levels [][]suite.Entry, parallel bool) {
	log := slog.With("suite_id", run.ID(), "suite", s.Name, "parallel", parallel)
	log.Info("Suite run starting", "tests", len(s.Entries), "levels", len(levels))

	run.SetStatus(models.SuiteStatusRunning)
	c.runs.services.Broadcaster.SuiteStarted(run.Snapshot())

	passed := make(map[string]bool)
	failed := make(map[string]bool)

	for _, level := range levels {
		if ctx.Err() != nil {
			run.SetError(ctx.Err().Error())
			run.SetStatus(models.SuiteStatusCancelled)
			return
		}

		runnable := make([]suite.Entry, 0, len(level))
		for _, entry := range level {
			if reason, ok := blockedReason(entry, passed, failed); ok {
				log.Info("Skipping test", "test", entry.Name(), "reason", reason)
				failedDep := models.SuiteTestResult{Name: entry.Name(), Outcome: models.SuiteTestSkipped, Reason: reason}
				run.RecordResult(failedDep, nil)
				continue
			}
			runnable = append(runnable, entry)
		}

		if parallel {
			c.runLevelParallel(ctx, run, s, runnable, passed, failed, log)
		} else {
			for _, entry := range runnable {
				// Sequential mode re-checks the predicate: an earlier
				// entry in this level may just have failed.
				if reason, ok := blockedReason(entry, passed, failed); ok {
					log.Info("Skipping test", "test", entry.Name(), "reason", reason)
					run.RecordResult(models.SuiteTestResult{
						Name: entry.Name(), Outcome: models.SuiteTestSkipped, Reason: reason,
					}, nil)
					continue
				}
				outcome := c.runEntry(ctx, s, entry, log)
				recordOutcome(run, entry, outcome, passed, failed)
				if ctx.Err() != nil {
					run.SetError(ctx.Err().Error())
					run.SetStatus(models.SuiteStatusCancelled)
					return
				}
			}
		}

		if ctx.Err() != nil {
			run.SetError(ctx.Err().Error())
			run.SetStatus(models.SuiteStatusCancelled)
			return
		}
	}

	_, failedCount, skipped := run.Counts()
	if failedCount == 0 && skipped == 0 {
		run.SetStatus(models.SuiteStatusCompleted)
	} else {
		run.SetStatus(models.SuiteStatusFailed)
	}
	log.Info("Suite run finished", "status", run.Status())
}

// entryOutcome is the result of executing one suite entry.
type entryOutcome struct {
	result models.SuiteTestResult
	view   *models.TestRunView
}

// runLevelParallel launches all runnable entries of one level
// concurrently and waits for the whole level (barrier) before returning.
func (c *SuiteCoordinator) runLevelParallel(ctx context.Context, run *models.TestSuiteRun, s *suite.Suite, entries []suite.Entry, passed, failed map[string]bool, log *slog.Logger) {
	var mu sync.Mutex
	outcomes := make([]entryOutcome, len(entries))

	g := new(errgroup.Group)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			outcome := c.runEntry(ctx, s, entry, log)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, entry := range entries {
		recordOutcome(run, entry, outcomes[i], passed, failed)
	}
}

// runEntry resolves and executes one suite entry's route.
func (c *SuiteCoordinator) runEntry(ctx context.Context, s *suite.Suite, entry suite.Entry, log *slog.Logger) entryOutcome {
	name := entry.Name()

	routePath, err := resolveSuiteRoutePath(c.routes, s.Path, entry.Route)
	if err != nil {
		log.Error("Route resolution failed", "test", name, "error", err)
		return entryOutcome{result: models.SuiteTestResult{
			Name: name, Outcome: models.SuiteTestFailed, Reason: err.Error(),
		}}
	}

	log.Info("Running suite test", "test", name, "route", routePath)
	view, err := c.runs.StartTestRun(ctx, routePath)
	if err != nil {
		log.Error("Test run rejected", "test", name, "error", err)
		return entryOutcome{result: models.SuiteTestResult{
			Name: name, Outcome: models.SuiteTestFailed, Reason: err.Error(),
		}}
	}

	outcome := models.SuiteTestFailed
	reason := ""
	if runPassed(view) {
		outcome = models.SuiteTestPassed
	} else {
		reason = describeRunOutcome(view)
	}
	return entryOutcome{
		result: models.SuiteTestResult{Name: name, Outcome: outcome, RunID: view.ID, Reason: reason},
		view:   &view,
	}
}

// recordOutcome stores the outcome and updates the pass/fail sets.
func recordOutcome(run *models.TestSuiteRun, entry suite.Entry, outcome entryOutcome, passed, failed map[string]bool) {
	run.RecordResult(outcome.result, outcome.view)
	switch outcome.result.Outcome {
	case models.SuiteTestPassed:
		passed[entry.Name()] = true
	default:
		failed[entry.Name()] = true
	}
}

// blockedReason reports whether the entry cannot run, and why. An entry
// runs iff every declared dependency has passed. Dependencies neither
// passed nor failed cannot occur in topological order; the defensive
// branch still skips them.
func blockedReason(entry suite.Entry, passed, failed map[string]bool) (string, bool) {
	for _, dep := range entry.DependsOn {
		if failed[dep] {
			return fmt.Sprintf("dependency %q failed", dep), true
		}
		if !passed[dep] {
			return fmt.Sprintf("dependency %q has not run", dep), true
		}
	}
	return "", false
}
