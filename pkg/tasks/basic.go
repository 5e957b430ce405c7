package tasks

import (
	"log/slog"
	"time"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
)

// Wait idles for the configured number of seconds.
type Wait struct {
	BaseTask
	Seconds float64 `json:"seconds"`

	waitUntil time.Time
}

// Start arms the latch and clears the wait deadline.
func (t *Wait) Start(bot.Client) bool {
	t.Begin()
	t.waitUntil = time.Time{}
	return true
}

// Update waits until the deadline elapses.
func (t *Wait) Update(bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if t.waitUntil.IsZero() {
			t.waitUntil = time.Now().Add(secondsToDuration(t.Seconds))
		}
		if time.Now().Before(t.waitUntil) {
			return models.TaskRunning
		}
		return models.TaskSuccess
	})
}

// LogMessage appends a line to the bot's log and succeeds.
type LogMessage struct {
	BaseTask
	Message string `json:"message"`
}

// Update logs the configured message.
func (t *LogMessage) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		c.Log(t.Message)
		slog.Info("Bot log message", "character", c.CharacterName(), "message", t.Message)
		return models.TaskSuccess
	})
}
