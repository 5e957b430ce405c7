package executor

import (
	"time"

	"github.com/Mathih13/botharness/pkg/models"
)

// Event is a TaskExecutor output event. Within one executor, events are
// strictly ordered and RouteCompleted is always the last event.
type Event interface{ isEvent() }

// TaskCompleted is emitted once per terminal task result.
type TaskCompleted struct {
	TaskName     string
	Kind         string
	Result       models.TaskStatus
	Duration     time.Duration
	ErrorMessage string
}

func (TaskCompleted) isEvent() {}

// RouteCompleted is emitted exactly once when a non-looped route runs to
// termination. Deactivation does not emit it.
type RouteCompleted struct {
	Success      bool
	ErrorMessage string
}

func (RouteCompleted) isEvent() {}
