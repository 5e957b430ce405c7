// Package executor drives a single bot through a task route. The executor
// is a per-bot state machine: it is ticked on a fixed cadence, advances
// through the route's tasks, and reports progress through a bounded event
// channel that consumers subscribe to before starting execution.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
	"github.com/Mathih13/botharness/pkg/route"
	"github.com/Mathih13/botharness/pkg/tasks"
)

// DefaultTickInterval is the cadence at which Run ticks the state machine.
const DefaultTickInterval = 100 * time.Millisecond

// eventBufferSize bounds the event channel. The channel is owned by the
// executor so events cannot be lost while a consumer is briefly slow; a
// full buffer drops with a warning rather than blocking the tick loop.
const eventBufferSize = 1024

// ErrEmptyRoute is returned when activating a route with no tasks.
var ErrEmptyRoute = errors.New("route has no tasks")

// ErrAlreadyActive is returned when Start is called on a running executor.
var ErrAlreadyActive = errors.New("executor is already active")

// TaskExecutor advances one bot through one route.
type TaskExecutor struct {
	route  *route.TaskRoute
	client bot.Client
	log    *slog.Logger

	mu            sync.Mutex
	active        bool
	paused        bool
	idx           int
	taskStartedAt time.Time
	startFailed   bool
	events        chan Event
	eventsClosed  bool
}

// New creates an executor for the route and client. The event channel
// exists from construction so callers can subscribe before Start.
func New(r *route.TaskRoute, c bot.Client) *TaskExecutor {
	return &TaskExecutor{
		route:  r,
		client: c,
		log:    slog.With("route", r.Name),
		events: make(chan Event, eventBufferSize),
	}
}

// Events returns the executor's event stream. The channel is closed after
// RouteCompleted or on Deactivate.
func (e *TaskExecutor) Events() <-chan Event {
	return e.events
}

// Active reports whether the executor is still driving the route.
func (e *TaskExecutor) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Paused reports whether the state machine is frozen.
func (e *TaskExecutor) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Start activates the executor on the route's first task. An empty route
// refuses activation.
func (e *TaskExecutor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return ErrAlreadyActive
	}
	if len(e.route.Tasks) == 0 {
		e.log.Warn("Refusing to activate route with no tasks")
		return ErrEmptyRoute
	}
	e.active = true
	e.paused = false
	e.idx = 0
	e.startTask()
	return nil
}

// Tick advances the state machine by one step. Non-blocking; intended to
// be called at ~10 Hz.
func (e *TaskExecutor) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || e.paused {
		return
	}

	task := e.route.Tasks[e.idx]

	var result models.TaskStatus
	var errMsg string
	if e.startFailed {
		e.startFailed = false
		result = models.TaskFailed
		errMsg = task.ErrorMessage()
		if errMsg == "" {
			errMsg = fmt.Sprintf("task %s failed to start", task.Name())
		}
	} else {
		result = e.safeUpdate(task)
		if !result.Terminal() {
			return
		}
		errMsg = task.ErrorMessage()
	}
	e.finishCurrent(task, result, errMsg)
}

// Run ticks the executor until the route terminates or the context is
// cancelled. Cancellation deactivates the executor (current task cleanup,
// no RouteCompleted).
func (e *TaskExecutor) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Deactivate()
			return
		case <-ticker.C:
			e.Tick()
			if !e.Active() {
				return
			}
		}
	}
}

// Pause freezes the state machine. Delay phases keep accumulating wall
// time while paused.
func (e *TaskExecutor) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		e.paused = true
	}
}

// Resume unfreezes the state machine.
func (e *TaskExecutor) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
}

// Deactivate cancels execution: the current task's Cleanup runs and the
// event channel closes without a RouteCompleted.
func (e *TaskExecutor) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.safeCleanup(e.route.Tasks[e.idx])
	e.active = false
	e.paused = false
	e.closeEvents()
}

// finishCurrent handles a terminal task result: cleanup, event emission,
// and advancing or terminating the route. Caller holds mu.
func (e *TaskExecutor) finishCurrent(task tasks.Task, result models.TaskStatus, errMsg string) {
	e.safeCleanup(task)
	e.emit(TaskCompleted{
		TaskName:     task.Name(),
		Kind:         task.Kind(),
		Result:       result,
		Duration:     time.Since(e.taskStartedAt),
		ErrorMessage: errMsg,
	})

	if result == models.TaskFailed {
		if e.route.Loop {
			e.log.Info("Task failed on looped route, restarting from the beginning",
				"task", task.Name(), "error", errMsg)
			e.idx = 0
			e.startTask()
			return
		}
		e.emit(RouteCompleted{Success: false, ErrorMessage: errMsg})
		e.active = false
		e.closeEvents()
		return
	}

	e.idx++
	if e.idx >= len(e.route.Tasks) {
		if e.route.Loop {
			e.idx = 0
			e.startTask()
			return
		}
		e.emit(RouteCompleted{Success: true})
		e.active = false
		e.closeEvents()
		return
	}
	e.startTask()
}

// startTask initializes the task at the cursor. A false or panicking
// Start is deferred to the next Tick as a Failed result so looped routes
// cannot spin unboundedly within one call. Caller holds mu.
func (e *TaskExecutor) startTask() {
	task := e.route.Tasks[e.idx]
	e.taskStartedAt = time.Now()
	e.startFailed = !e.safeStart(task)
}

func (e *TaskExecutor) safeStart(task tasks.Task) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Task Start panicked", "task", task.Name(), "panic", r)
			ok = false
		}
	}()
	return task.Start(e.client)
}

// safeUpdate converts a panicking Update into a Failed result.
func (e *TaskExecutor) safeUpdate(task tasks.Task) (result models.TaskStatus) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Task Update panicked", "task", task.Name(), "panic", r)
			if failer, ok := task.(interface {
				Fail(string, ...any) models.TaskStatus
			}); ok {
				result = failer.Fail("task panicked: %v", r)
			} else {
				result = models.TaskFailed
			}
		}
	}()
	return task.Update(e.client)
}

func (e *TaskExecutor) safeCleanup(task tasks.Task) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Task Cleanup panicked", "task", task.Name(), "panic", r)
		}
	}()
	task.Cleanup(e.client)
}

// emit delivers an event without blocking the tick loop. Caller holds mu.
func (e *TaskExecutor) emit(ev Event) {
	if e.eventsClosed {
		return
	}
	select {
	case e.events <- ev:
	default:
		e.log.Warn("Executor event buffer full, dropping event", "event", fmt.Sprintf("%T", ev))
	}
}

func (e *TaskExecutor) closeEvents() {
	if !e.eventsClosed {
		e.eventsClosed = true
		close(e.events)
	}
}
