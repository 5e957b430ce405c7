package tasks

import (
	"time"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
)

// KillMobs engages the given creature entries until the requested number
// of kills is reached. Combat itself is the client's concern; the task
// only polls the kill counter.
type KillMobs struct {
	BaseTask
	Entries []int `json:"entries"`
	Count   int   `json:"count,omitempty"`

	engaged bool
}

// Start arms the latch and clears the engagement state.
func (t *KillMobs) Start(bot.Client) bool {
	t.Begin()
	t.engaged = false
	return true
}

// Update engages once, then polls kills.
func (t *KillMobs) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		count := t.Count
		if count <= 0 {
			count = 1
		}
		if !t.engaged {
			if err := c.EngageMobs(t.Entries, count); err != nil {
				return t.Fail("failed to engage mobs %v: %v", t.Entries, err)
			}
			t.engaged = true
			return models.TaskRunning
		}
		if c.MobsKilled() < count {
			return models.TaskRunning
		}
		return models.TaskSuccess
	})
}

// Adventure puts the bot into autonomous wander/grind mode for a fixed
// duration.
type Adventure struct {
	BaseTask
	Seconds float64 `json:"seconds"`

	until time.Time
}

// Start begins adventure mode; failure to start fails the task
// immediately.
func (t *Adventure) Start(c bot.Client) bool {
	t.Begin()
	t.until = time.Time{}
	if err := c.StartAdventure(); err != nil {
		return t.FailStart("failed to start adventure mode: %v", err)
	}
	return true
}

// Update runs until the configured duration elapses.
func (t *Adventure) Update(bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if t.until.IsZero() {
			t.until = time.Now().Add(secondsToDuration(t.Seconds))
		}
		if time.Now().Before(t.until) {
			return models.TaskRunning
		}
		return models.TaskSuccess
	})
}

// Cleanup always leaves adventure mode, including on cancellation.
func (t *Adventure) Cleanup(c bot.Client) {
	c.StopAdventure()
}
