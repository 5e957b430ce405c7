// Package tasks defines the task contract consumed by the executor and
// the built-in task kinds a route can reference.
//
// Every task runs through a three-phase latch: a pre-delay, the task
// body, then a post-delay. Delays are configured in seconds and receive
// 0-50% uniform jitter so fleets of bots do not act in lockstep.
package tasks

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
)

// Task is one step in a route. Start is one-shot initialization; returning
// false fails the task immediately without an Update cycle. Update is
// called on a fixed cadence and must not block. Cleanup runs exactly once
// after any terminal Update or on cancellation and must be idempotent.
//
// Tasks own their error message and know nothing about routes, runs, or
// coordinators.
type Task interface {
	Kind() string
	Name() string
	Start(c bot.Client) bool
	Update(c bot.Client) models.TaskStatus
	Cleanup(c bot.Client)
	ErrorMessage() string
}

type delayPhase int

const (
	phasePre delayPhase = iota
	phaseBody
	phasePost
	phaseDone
)

// BaseTask carries the shared task configuration and the pre/post delay
// latch. Concrete tasks embed it and route their Update through Tick.
type BaseTask struct {
	TaskName         string  `json:"name,omitempty"`
	PreDelaySeconds  float64 `json:"preDelaySeconds,omitempty"`
	PostDelaySeconds float64 `json:"postDelaySeconds,omitempty"`

	kind       string
	errMsg     string
	phase      delayPhase
	deadline   time.Time
	bodyResult models.TaskStatus
}

// SetKind records the task's discriminator string. Called by the route
// loader after decoding.
func (b *BaseTask) SetKind(kind string) { b.kind = kind }

// Kind returns the task's discriminator string.
func (b *BaseTask) Kind() string { return b.kind }

// Name returns the reporting name: the configured name, or the kind.
func (b *BaseTask) Name() string {
	if b.TaskName != "" {
		return b.TaskName
	}
	return b.kind
}

// ErrorMessage returns the message set before the task failed.
func (b *BaseTask) ErrorMessage() string { return b.errMsg }

// Start resets the latch. Concrete tasks overriding Start must call Begin
// themselves.
func (b *BaseTask) Start(bot.Client) bool {
	b.Begin()
	return true
}

// Cleanup is a no-op by default.
func (b *BaseTask) Cleanup(bot.Client) {}

// Begin arms the latch for a fresh execution of the task. Safe to call on
// every activation, including loop restarts.
func (b *BaseTask) Begin() {
	b.phase = phasePre
	b.deadline = time.Now().Add(jitter(secondsToDuration(b.PreDelaySeconds)))
	b.errMsg = ""
	b.bodyResult = models.TaskRunning
}

// Tick advances the latch: pre-delay, then the body until it returns a
// terminal status, then post-delay, then the stored body result. Delay
// phases are measured from the transition into the phase.
func (b *BaseTask) Tick(body func() models.TaskStatus) models.TaskStatus {
	switch b.phase {
	case phasePre:
		if time.Now().Before(b.deadline) {
			return models.TaskRunning
		}
		b.phase = phaseBody
		fallthrough
	case phaseBody:
		result := body()
		if !result.Terminal() {
			return models.TaskRunning
		}
		b.bodyResult = result
		b.phase = phasePost
		b.deadline = time.Now().Add(jitter(secondsToDuration(b.PostDelaySeconds)))
		fallthrough
	case phasePost:
		if time.Now().Before(b.deadline) {
			return models.TaskRunning
		}
		b.phase = phaseDone
		return b.bodyResult
	default:
		return b.bodyResult
	}
}

// Fail records the error message and returns TaskFailed.
func (b *BaseTask) Fail(format string, args ...any) models.TaskStatus {
	b.errMsg = fmt.Sprintf(format, args...)
	return models.TaskFailed
}

// FailStart records the error message for a fail-immediate Start.
func (b *BaseTask) FailStart(format string, args ...any) bool {
	b.errMsg = fmt.Sprintf(format, args...)
	return false
}

// jitter adds 0-50% uniform random jitter to d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
