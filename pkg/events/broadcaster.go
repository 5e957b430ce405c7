// Package events provides the outbound observer surface of the
// coordinators. Listeners are fire-and-forget: a panicking handler is
// recovered and logged, never propagated back into orchestration.
package events

import (
	"log/slog"
	"sync"

	"github.com/Mathih13/botharness/pkg/models"
)

// Listener receives coordinator lifecycle notifications. Nil fields are
// skipped.
type Listener struct {
	OnTestRunStarted       func(run models.TestRunView)
	OnTestRunStatusChanged func(run models.TestRunView)
	OnTestRunCompleted     func(run models.TestRunView)
	OnBotCompleted         func(runID string, bot models.BotResult)
	OnSuiteStarted         func(s models.TestSuiteRunView)
	OnSuiteCompleted       func(s models.TestSuiteRunView)
}

// Broadcaster fans coordinator events out to registered listeners.
// The zero value is usable; a nil *Broadcaster drops all events.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a listener for all future events.
func (b *Broadcaster) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// TestRunStarted notifies all listeners.
func (b *Broadcaster) TestRunStarted(run models.TestRunView) {
	b.each(func(l Listener) {
		if l.OnTestRunStarted != nil {
			l.OnTestRunStarted(run)
		}
	})
}

// TestRunStatusChanged notifies all listeners.
func (b *Broadcaster) TestRunStatusChanged(run models.TestRunView) {
	b.each(func(l Listener) {
		if l.OnTestRunStatusChanged != nil {
			l.OnTestRunStatusChanged(run)
		}
	})
}

// TestRunCompleted notifies all listeners.
func (b *Broadcaster) TestRunCompleted(run models.TestRunView) {
	b.each(func(l Listener) {
		if l.OnTestRunCompleted != nil {
			l.OnTestRunCompleted(run)
		}
	})
}

// BotCompleted notifies all listeners.
func (b *Broadcaster) BotCompleted(runID string, bot models.BotResult) {
	b.each(func(l Listener) {
		if l.OnBotCompleted != nil {
			l.OnBotCompleted(runID, bot)
		}
	})
}

// SuiteStarted notifies all listeners.
func (b *Broadcaster) SuiteStarted(s models.TestSuiteRunView) {
	b.each(func(l Listener) {
		if l.OnSuiteStarted != nil {
			l.OnSuiteStarted(s)
		}
	})
}

// SuiteCompleted notifies all listeners.
func (b *Broadcaster) SuiteCompleted(s models.TestSuiteRunView) {
	b.each(func(l Listener) {
		if l.OnSuiteCompleted != nil {
			l.OnSuiteCompleted(s)
		}
	})
}

func (b *Broadcaster) each(fn func(Listener)) {
	if b == nil {
		return
	}
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Event listener panicked", "panic", r)
				}
			}()
			fn(l)
		}()
	}
}
