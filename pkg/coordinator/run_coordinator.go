// Package coordinator orchestrates multi-bot test runs and
// dependency-ordered test suites.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/config"
	"github.com/Mathih13/botharness/pkg/events"
	"github.com/Mathih13/botharness/pkg/executor"
	"github.com/Mathih13/botharness/pkg/models"
	"github.com/Mathih13/botharness/pkg/route"
	"github.com/Mathih13/botharness/pkg/store"
)

// ErrRunNotFound is returned for operations on an unknown run id.
var ErrRunNotFound = errors.New("test run not found")

// disposeTimeout bounds bot disposal during cleanup, which runs on a
// background context because the run context may already be cancelled.
const disposeTimeout = 30 * time.Second

// Services groups the collaborators a coordinator needs. Store and
// Broadcaster may be nil: snapshot operations are then skipped with a
// warning, and events are dropped.
type Services struct {
	Bots        bot.Factory
	Store       store.Store
	Broadcaster *events.Broadcaster
}

// RunCoordinator orchestrates test runs end-to-end: provisioning bots,
// applying harness setup, driving executors, and aggregating results.
type RunCoordinator struct {
	cfg      *config.HarnessConfig
	routes   string
	services Services
	registry *runRegistry
}

// NewRunCoordinator creates a coordinator. cfg tunables default when nil.
func NewRunCoordinator(routesDir string, cfg *config.HarnessConfig, services Services) *RunCoordinator {
	if cfg == nil {
		cfg = config.DefaultHarnessConfig()
	}
	return &RunCoordinator{
		cfg:      cfg,
		routes:   routesDir,
		services: services,
		registry: newRunRegistry(),
	}
}

// StartTestRun executes the route at path as a test run and blocks until
// it reaches a terminal status or ctx is cancelled. Load and validation
// errors are returned before any run is registered.
func (c *RunCoordinator) StartTestRun(ctx context.Context, routePath string) (models.TestRunView, error) {
	run, rt, resolved, err := c.prepare(routePath)
	if err != nil {
		return models.TestRunView{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.registry.add(run, cancel)

	c.execute(runCtx, run, rt, resolved)
	return run.Snapshot(), nil
}

// LaunchTestRun registers and starts a run in the background, returning
// its id immediately. The run is bounded by its own timeouts and can be
// stopped with Stop.
func (c *RunCoordinator) LaunchTestRun(routePath string) (string, error) {
	run, rt, resolved, err := c.prepare(routePath)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.registry.add(run, cancel)

	go func() {
		defer cancel()
		c.execute(runCtx, run, rt, resolved)
	}()
	return run.ID(), nil
}

// Stop cancels an active run. Returns false when the run is unknown or
// already terminal.
func (c *RunCoordinator) Stop(runID string) bool {
	return c.registry.cancel(runID)
}

// GetRun returns a snapshot of an active or completed run.
func (c *RunCoordinator) GetRun(runID string) (models.TestRunView, bool) {
	return c.registry.get(runID)
}

// ActiveRuns returns snapshots of all in-flight runs.
func (c *RunCoordinator) ActiveRuns() []models.TestRunView {
	return c.registry.activeViews()
}

// CompletedRuns returns snapshots of all finished runs.
func (c *RunCoordinator) CompletedRuns() []models.TestRunView {
	return c.registry.completedViews()
}

// prepare loads and validates the route and creates the pending run.
// Nothing is registered when an error is returned.
func (c *RunCoordinator) prepare(routePath string) (*models.TestRun, *route.TaskRoute, string, error) {
	resolved, err := resolveRoutePath(c.routes, routePath)
	if err != nil {
		return nil, nil, "", err
	}
	rt, err := route.Load(resolved)
	if err != nil {
		return nil, nil, "", err
	}
	if rt.Harness == nil {
		return nil, nil, "", fmt.Errorf("route %q has no harness settings and cannot run as a test", rt.Name)
	}
	if err := rt.Harness.Validate(); err != nil {
		return nil, nil, "", fmt.Errorf("route %q: invalid harness: %w", rt.Name, err)
	}

	runID := uuid.New().String()[:8]
	run := models.NewTestRun(runID, rt.Name, resolved)
	return run, rt, resolved, nil
}

// runBot pairs a client with its index in the run's bot list.
type runBot struct {
	index    int
	client   bot.Client
	class    string
	disposed bool
}

// execute drives one registered run to a terminal status. It always
// moves the run to the completed registry and disposes all bots.
func (c *RunCoordinator) execute(ctx context.Context, run *models.TestRun, rt *route.TaskRoute, resolved string) {
	log := slog.With("run_id", run.ID(), "route", rt.Name)
	log.Info("Test run starting", "bots", rt.Harness.BotCount)

	_ = run.SetStatus(models.RunStatusSettingUp)
	c.services.Broadcaster.TestRunStarted(run.Snapshot())

	bots := c.runPhases(ctx, run, rt, log)

	// Cleanup path: dispose remaining bots, move the run to completed,
	// notify. Runs for every outcome including panic recovery above.
	c.disposeBots(bots, log)
	c.registry.complete(run.ID())
	c.services.Broadcaster.TestRunCompleted(run.Snapshot())
	log.Info("Test run finished", "status", run.Status())
}

// runPhases executes setup, execution, and finalization, converting
// panics and context errors into the failure taxonomy. Returns the bots
// that still need disposal.
func (c *RunCoordinator) runPhases(ctx context.Context, run *models.TestRun, rt *route.TaskRoute, log *slog.Logger) (bots []*runBot) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Test run panicked", "panic", r)
			c.failRun(run, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := rt.Validate(); err != nil {
		c.failRun(run, err.Error())
		return nil
	}

	bots, err := c.setUpBots(ctx, run, rt, log)
	if err != nil {
		c.failWith(ctx, run, err)
		return bots
	}

	if err := c.runRoutes(ctx, run, rt, bots, log); err != nil {
		c.failWith(ctx, run, err)
		return bots
	}

	c.finalize(ctx, run, rt, bots, log)
	return bots
}

// errTimeout distinguishes deadline expiry of the run's own polling
// loops from an upstream context cancellation.
var errTimeout = errors.New("timed out")

// failWith maps an execution error to the failure taxonomy.
func (c *RunCoordinator) failWith(ctx context.Context, run *models.TestRun, err error) {
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		run.SetError(err.Error())
		_ = run.SetStatus(models.RunStatusCancelled)
	case errors.Is(err, errTimeout) || errors.Is(err, context.DeadlineExceeded):
		run.SetError(err.Error())
		_ = run.SetStatus(models.RunStatusTimedOut)
	default:
		c.failRun(run, err.Error())
	}
	c.services.Broadcaster.TestRunStatusChanged(run.Snapshot())
}

func (c *RunCoordinator) failRun(run *models.TestRun, msg string) {
	run.SetError(msg)
	_ = run.SetStatus(models.RunStatusFailed)
}

// setUpBots provisions, starts, and prepares all bots: staggered start,
// login wait, character capture, harness setup, snapshot restore.
func (c *RunCoordinator) setUpBots(ctx context.Context, run *models.TestRun, rt *route.TaskRoute, log *slog.Logger) ([]*runBot, error) {
	harness := rt.Harness
	bots := make([]*runBot, 0, harness.BotCount)

	// Provision accounts and create clients. A failed bot leaves its
	// BotResult incomplete; the login wait below reports the shortfall.
	for i := 0; i < harness.BotCount; i++ {
		account := harness.AccountName(i)
		class := harness.ClassForBot(i)
		index := run.AddBot(account, class)

		client, err := c.services.Bots.CreateClient(ctx, account, class, harness.Race)
		if err != nil {
			log.Error("Failed to create bot client", "account", account, "error", err)
			continue
		}
		bots = append(bots, &runBot{index: index, client: client, class: class})
	}

	// Staggered start: concurrent logins trip auth-server throttling.
	for i, b := range bots {
		if i > 0 {
			if err := sleepCtx(ctx, c.cfg.StartStagger.Std()); err != nil {
				return bots, err
			}
		}
		if err := b.client.Start(ctx); err != nil {
			log.Error("Failed to start bot", "bot", run.Snapshot().Bots[b.index].BotName, "error", err)
		}
	}

	// Wait for every bot to report logged in, bounded by the setup
	// timeout.
	setupDeadline := time.Now().Add(time.Duration(harness.EffectiveSetupTimeoutSeconds()) * time.Second)
	for {
		loggedIn := 0
		for _, b := range bots {
			if b.client.LoggedIn() {
				loggedIn++
			}
		}
		if loggedIn == harness.BotCount {
			break
		}
		if time.Now().After(setupDeadline) {
			return bots, fmt.Errorf("setup timed out: %d/%d bots logged in", loggedIn, harness.BotCount)
		}
		if err := sleepCtx(ctx, c.cfg.LoginPollInterval.Std()); err != nil {
			return bots, err
		}
	}

	// Logging in on a fresh account creates the character; capture its
	// name for reporting and store operations.
	for _, b := range bots {
		name := b.client.CharacterName()
		if name == "" {
			return bots, fmt.Errorf("bot %d logged in without a character", b.index+1)
		}
		run.SetCharacterName(b.index, name)
	}

	needsSetup := false
	for _, b := range bots {
		if !harness.SetupFor(b.class).Empty() {
			needsSetup = true
			break
		}
	}
	if needsSetup {
		if err := c.applySetup(ctx, run, rt, bots, log); err != nil {
			return bots, err
		}
	}

	if harness.RestoreSnapshot != "" {
		c.restoreSnapshot(ctx, run, harness.RestoreSnapshot, bots, log)
	}
	return bots, nil
}

// applySetup applies the privileged per-bot setup in parallel. Setup is
// best-effort against a shared admin channel; assert tasks validate
// preconditions at the start of the route.
func (c *RunCoordinator) applySetup(ctx context.Context, run *models.TestRun, rt *route.TaskRoute, bots []*runBot, log *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bots {
		b := b
		g.Go(func() error {
			setup := rt.Harness.SetupFor(b.class)
			if err := b.client.ApplyHarnessSetup(gctx, setup); err != nil {
				return fmt.Errorf("applying setup to bot %d: %w", b.index+1, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Prerequisite quest state also goes to the persistent store so it
	// survives relogs; best-effort when no store is configured.
	if len(rt.Harness.CompletedQuests) > 0 && c.services.Store != nil {
		for _, b := range bots {
			character := run.CharacterName(b.index)
			if err := c.services.Store.MarkQuestsCompleted(ctx, character, rt.Harness.CompletedQuests); err != nil {
				log.Warn("Failed to persist completed quests", "character", character, "error", err)
			}
		}
	}

	// Give the server a moment to settle before tasks start asserting.
	return sleepCtx(ctx, c.cfg.SetupGrace.Std())
}

// restoreSnapshot applies a named snapshot to every bot's character.
// Missing store or snapshot degrades to a warning; the test then passes
// or fails on its own merits.
func (c *RunCoordinator) restoreSnapshot(ctx context.Context, run *models.TestRun, name string, bots []*runBot, log *slog.Logger) {
	st := c.services.Store
	if st == nil {
		log.Warn("Snapshot restore requested but no state store is configured", "snapshot", name)
		return
	}
	exists, err := st.Exists(ctx, name)
	if err != nil {
		log.Warn("Snapshot existence check failed", "snapshot", name, "error", err)
		return
	}
	if !exists {
		log.Warn("Snapshot does not exist, continuing without restore", "snapshot", name)
		return
	}

	offline := st.RequiresOfflineForRestore()
	if offline {
		if err := c.logoutAll(ctx, bots); err != nil {
			log.Warn("Logout before restore failed", "snapshot", name, "error", err)
			return
		}
		_ = sleepCtx(ctx, c.cfg.LogoutGrace.Std())
	}

	for _, b := range bots {
		character := run.CharacterName(b.index)
		if err := st.Restore(ctx, name, character); err != nil {
			log.Warn("Snapshot restore failed", "snapshot", name, "character", character, "error", err)
		}
	}

	if offline {
		for _, b := range bots {
			if err := b.client.Login(ctx); err != nil {
				log.Warn("Relogin after restore failed", "bot", b.index+1, "error", err)
			}
		}
	}
}

// runRoutes starts one executor per bot and polls until all bots
// complete or the test timeout expires. Event subscriptions are attached
// before the executors start so no early event is lost.
func (c *RunCoordinator) runRoutes(ctx context.Context, run *models.TestRun, rt *route.TaskRoute, bots []*runBot, log *slog.Logger) error {
	_ = run.SetStatus(models.RunStatusRunning)
	c.services.Broadcaster.TestRunStatusChanged(run.Snapshot())

	execCtx, cancelExecs := context.WithCancel(ctx)
	defer cancelExecs()

	for _, b := range bots {
		b := b
		exec := executor.New(rt, b.client)

		go func() {
			for ev := range exec.Events() {
				switch e := ev.(type) {
				case executor.TaskCompleted:
					run.AppendTaskResult(b.index, models.TaskResult{
						TaskName:     e.TaskName,
						Status:       e.Result,
						Duration:     e.Duration,
						ErrorMessage: e.ErrorMessage,
					})
				case executor.RouteCompleted:
					run.CompleteBot(b.index, e.Success, e.ErrorMessage)
					view := run.Snapshot()
					if b.index < len(view.Bots) {
						c.services.Broadcaster.BotCompleted(run.ID(), view.Bots[b.index])
					}
				}
			}
		}()

		if err := exec.Start(); err != nil {
			run.CompleteBot(b.index, false, err.Error())
			continue
		}
		go exec.Run(execCtx, c.cfg.TickInterval.Std())
	}

	testDeadline := time.Now().Add(time.Duration(rt.Harness.EffectiveTestTimeoutSeconds()) * time.Second)
	lastStatus := time.Now()
	for {
		if run.BotsCompleted() == run.BotCount() {
			return nil
		}
		if time.Now().After(testDeadline) {
			return fmt.Errorf("%w after %ds: %d/%d bots completed", errTimeout,
				rt.Harness.EffectiveTestTimeoutSeconds(), run.BotsCompleted(), run.BotCount())
		}
		if err := sleepCtx(ctx, c.cfg.PollInterval.Std()); err != nil {
			return err
		}
		if time.Since(lastStatus) >= c.cfg.StatusInterval.Std() {
			c.services.Broadcaster.TestRunStatusChanged(run.Snapshot())
			lastStatus = time.Now()
		}
	}
}

// finalize assigns the terminal status and performs the optional
// snapshot save.
func (c *RunCoordinator) finalize(ctx context.Context, run *models.TestRun, rt *route.TaskRoute, bots []*runBot, log *slog.Logger) {
	if failed := run.BotsFailed(); failed > 0 {
		run.SetError(fmt.Sprintf("%d/%d bots failed", failed, run.BotCount()))
		_ = run.SetStatus(models.RunStatusCompleted)
		return
	}

	if name := rt.Harness.SaveSnapshot; name != "" {
		if c.services.Store == nil {
			log.Warn("Snapshot save requested but no state store is configured", "snapshot", name)
		} else if len(bots) > 0 {
			// Characters must be offline so the server has flushed their
			// state; logout replaces normal disposal for these bots.
			if err := c.logoutAll(ctx, bots); err != nil {
				log.Warn("Logout before snapshot save failed", "snapshot", name, "error", err)
			} else {
				_ = sleepCtx(ctx, c.cfg.LogoutGrace.Std())
				character := run.CharacterName(bots[0].index)
				if err := c.services.Store.Save(ctx, name, character); err != nil {
					log.Warn("Snapshot save failed", "snapshot", name, "error", err)
				}
				for _, b := range bots {
					b.disposed = true
				}
			}
		}
	}
	_ = run.SetStatus(models.RunStatusCompleted)
}

// logoutAll logs every bot out in parallel.
func (c *RunCoordinator) logoutAll(ctx context.Context, bots []*runBot) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bots {
		b := b
		g.Go(func() error { return b.client.Logout(gctx) })
	}
	return g.Wait()
}

// disposeBots tears down all remaining bots in parallel on a background
// context: the run context is typically already cancelled here.
func (c *RunCoordinator) disposeBots(bots []*runBot, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bots {
		if b.disposed {
			continue
		}
		b := b
		g.Go(func() error {
			if err := b.client.Dispose(gctx); err != nil {
				log.Warn("Bot disposal failed", "bot", b.index+1, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Still honor cancellation on zero sleeps.
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runPassed is the suite-level pass predicate over a terminal run.
func runPassed(view models.TestRunView) bool {
	return view.Status == models.RunStatusCompleted && view.BotsFailed == 0
}

// describeRunOutcome summarizes why a run did not pass.
func describeRunOutcome(view models.TestRunView) string {
	if view.ErrorMessage != "" {
		return fmt.Sprintf("%s: %s", view.Status, view.ErrorMessage)
	}
	return strings.ToLower(string(view.Status))
}
