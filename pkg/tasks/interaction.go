package tasks

import (
	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
)

// TalkToNPC opens the gossip/interaction window with a named unit.
type TalkToNPC struct {
	BaseTask
	NPCName string `json:"npcName"`
}

// Update performs the interaction.
func (t *TalkToNPC) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if err := c.Interact(t.NPCName); err != nil {
			return t.Fail("failed to talk to %q: %v", t.NPCName, err)
		}
		return models.TaskSuccess
	})
}

// AcceptQuest accepts a quest from the currently interacted NPC. If the
// quest is already in the log the task is skipped.
type AcceptQuest struct {
	BaseTask
	QuestID int `json:"questId"`
}

// Update accepts the quest.
func (t *AcceptQuest) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if c.QuestInLog(t.QuestID) {
			return models.TaskSkipped
		}
		if err := c.AcceptQuest(t.QuestID); err != nil {
			return t.Fail("failed to accept quest %d: %v", t.QuestID, err)
		}
		return models.TaskSuccess
	})
}

// TurnInQuest turns in a quest at the currently interacted NPC.
type TurnInQuest struct {
	BaseTask
	QuestID int `json:"questId"`
}

// Update turns in the quest.
func (t *TurnInQuest) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if err := c.TurnInQuest(t.QuestID); err != nil {
			return t.Fail("failed to turn in quest %d: %v", t.QuestID, err)
		}
		return models.TaskSuccess
	})
}

// UseObject uses a nearby game object by entry.
type UseObject struct {
	BaseTask
	Entry int `json:"entry"`
}

// Update uses the object.
func (t *UseObject) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if err := c.UseObject(t.Entry); err != nil {
			return t.Fail("failed to use object %d: %v", t.Entry, err)
		}
		return models.TaskSuccess
	})
}

// LearnSpells trains all class spells available at the bot's level.
type LearnSpells struct {
	BaseTask
}

// Update trains the spells.
func (t *LearnSpells) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if err := c.LearnClassSpells(); err != nil {
			return t.Fail("failed to learn class spells: %v", err)
		}
		return models.TaskSuccess
	})
}
