package tasks

import (
	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
)

// Assert tasks are pure predicates over client state. On failure the
// configured message is augmented with the observed value.

// AssertQuestInLog fails unless the quest is present in the quest log.
type AssertQuestInLog struct {
	BaseTask
	QuestID int    `json:"questId"`
	Message string `json:"message,omitempty"`
}

// Update evaluates the predicate.
func (t *AssertQuestInLog) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if c.QuestInLog(t.QuestID) {
			return models.TaskSuccess
		}
		return t.Fail("%s: quest %d is not in the quest log", assertMessage(t.Message), t.QuestID)
	})
}

// AssertQuestNotInLog fails if the quest is present in the quest log.
type AssertQuestNotInLog struct {
	BaseTask
	QuestID int    `json:"questId"`
	Message string `json:"message,omitempty"`
}

// Update evaluates the predicate.
func (t *AssertQuestNotInLog) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if !c.QuestInLog(t.QuestID) {
			return models.TaskSuccess
		}
		return t.Fail("%s: quest %d is unexpectedly in the quest log", assertMessage(t.Message), t.QuestID)
	})
}

// AssertHasItem fails unless the bot carries at least MinCount of the item.
type AssertHasItem struct {
	BaseTask
	Entry    int    `json:"entry"`
	MinCount int    `json:"minCount,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Update evaluates the predicate.
func (t *AssertHasItem) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		min := t.MinCount
		if min <= 0 {
			min = 1
		}
		if have := c.ItemCount(t.Entry); have < min {
			return t.Fail("%s: have %d of item %d, want at least %d",
				assertMessage(t.Message), have, t.Entry, min)
		}
		return models.TaskSuccess
	})
}

// AssertLevel fails unless the bot's level is at least MinLevel.
type AssertLevel struct {
	BaseTask
	MinLevel int    `json:"minLevel"`
	Message  string `json:"message,omitempty"`
}

// Update evaluates the predicate.
func (t *AssertLevel) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if have := c.Level(); have < t.MinLevel {
			return t.Fail("%s: level is %d, want at least %d",
				assertMessage(t.Message), have, t.MinLevel)
		}
		return models.TaskSuccess
	})
}

func assertMessage(msg string) string {
	if msg == "" {
		return "assertion failed"
	}
	return msg
}
