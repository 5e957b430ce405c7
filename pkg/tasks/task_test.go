package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
)

// tick drives a task's Update until it returns a terminal status or the
// timeout elapses.
func tick(t *testing.T, task Task, c bot.Client, timeout time.Duration) models.TaskStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		result := task.Update(c)
		if result.Terminal() {
			return result
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s did not reach a terminal status within %s", task.Name(), timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBaseTaskLatch(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")

	t.Run("runs body between delays", func(t *testing.T) {
		task := &LogMessage{Message: "hello"}
		task.SetKind("LogMessage")
		task.PreDelaySeconds = 0.05
		task.PostDelaySeconds = 0.05
		require.True(t, task.Start(client))

		start := time.Now()
		result := tick(t, task, client, 2*time.Second)
		assert.Equal(t, models.TaskSuccess, result)

		// Pre and post delay must both have elapsed; jitter can add up
		// to 50% on each.
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
		assert.Less(t, elapsed, 400*time.Millisecond)
	})

	t.Run("zero delays complete in one update", func(t *testing.T) {
		task := &LogMessage{Message: "hi"}
		task.SetKind("LogMessage")
		require.True(t, task.Start(client))
		assert.Equal(t, models.TaskSuccess, task.Update(client))
	})

	t.Run("terminal result is sticky", func(t *testing.T) {
		task := &LogMessage{Message: "hi"}
		task.SetKind("LogMessage")
		require.True(t, task.Start(client))
		first := tick(t, task, client, time.Second)
		assert.Equal(t, first, task.Update(client))
	})

	t.Run("begin resets for loop restarts", func(t *testing.T) {
		task := &LogMessage{Message: "hi"}
		task.SetKind("LogMessage")
		require.True(t, task.Start(client))
		require.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))

		require.True(t, task.Start(client))
		assert.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))
	})
}

func TestJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		j := jitter(base)
		assert.GreaterOrEqual(t, j, base)
		assert.LessOrEqual(t, j, base+base/2)
	}
	assert.Equal(t, time.Duration(0), jitter(0))
}

func TestWaitTask(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")
	task := &Wait{Seconds: 0.1}
	task.SetKind("Wait")
	require.True(t, task.Start(client))

	start := time.Now()
	result := tick(t, task, client, time.Second)
	assert.Equal(t, models.TaskSuccess, result)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestLogMessageAppendsToClientLog(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")
	task := &LogMessage{Message: "checkpoint reached"}
	task.SetKind("LogMessage")
	require.True(t, task.Start(client))
	require.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))
	assert.Contains(t, client.Logs(), "checkpoint reached")
}

func TestMoveToLocation(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")
	dest := bot.Position{MapID: 0, X: 10, Y: 20, Z: 30}
	task := &MoveToLocation{Destination: dest}
	task.SetKind("MoveToLocation")
	require.True(t, task.Start(client))

	result := tick(t, task, client, time.Second)
	assert.Equal(t, models.TaskSuccess, result)
	assert.Equal(t, dest, client.Position())
}

func TestAcceptQuest(t *testing.T) {
	t.Run("accepts missing quest", func(t *testing.T) {
		client := bot.NewStubClient("bh_1", "Warrior")
		task := &AcceptQuest{QuestID: 783}
		task.SetKind("AcceptQuest")
		require.True(t, task.Start(client))
		assert.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))
		assert.True(t, client.QuestInLog(783))
	})

	t.Run("skips quest already in log", func(t *testing.T) {
		client := bot.NewStubClient("bh_1", "Warrior")
		require.NoError(t, client.AcceptQuest(783))
		task := &AcceptQuest{QuestID: 783}
		task.SetKind("AcceptQuest")
		require.True(t, task.Start(client))
		assert.Equal(t, models.TaskSkipped, tick(t, task, client, time.Second))
	})
}

func TestTurnInQuest(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")
	task := &TurnInQuest{QuestID: 783}
	task.SetKind("TurnInQuest")

	require.True(t, task.Start(client))
	result := tick(t, task, client, time.Second)
	assert.Equal(t, models.TaskFailed, result)
	assert.Contains(t, task.ErrorMessage(), "783")

	require.NoError(t, client.AcceptQuest(783))
	require.True(t, task.Start(client))
	assert.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))
	assert.False(t, client.QuestInLog(783))
}

func TestKillMobs(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")
	task := &KillMobs{Entries: []int{80}, Count: 3}
	task.SetKind("KillMobs")
	require.True(t, task.Start(client))
	assert.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))
}

func TestAdventureCleanupStopsAdventure(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")
	task := &Adventure{Seconds: 0.05}
	task.SetKind("Adventure")
	require.True(t, task.Start(client))
	assert.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))
	task.Cleanup(client)
}

func TestAssertTasks(t *testing.T) {
	client := bot.NewStubClient("bh_1", "Warrior")
	require.NoError(t, client.ApplyHarnessSetup(context.Background(), bot.HarnessSetup{
		Level: 5,
		Items: []bot.ItemGrant{{Entry: 117, Count: 4}},
	}))
	require.NoError(t, client.AcceptQuest(783))

	t.Run("assert level passes at threshold", func(t *testing.T) {
		task := &AssertLevel{MinLevel: 5}
		task.SetKind("AssertLevel")
		require.True(t, task.Start(client))
		assert.Equal(t, models.TaskSuccess, tick(t, task, client, time.Second))
	})

	t.Run("assert level failure mentions observed level", func(t *testing.T) {
		task := &AssertLevel{MinLevel: 10, Message: "must be level 10"}
		task.SetKind("AssertLevel")
		require.True(t, task.Start(client))
		assert.Equal(t, models.TaskFailed, tick(t, task, client, time.Second))
		assert.Contains(t, task.ErrorMessage(), "must be level 10")
		assert.Contains(t, task.ErrorMessage(), "level is 5")
	})

	t.Run("assert has item honors min count", func(t *testing.T) {
		ok := &AssertHasItem{Entry: 117, MinCount: 4}
		ok.SetKind("AssertHasItem")
		require.True(t, ok.Start(client))
		assert.Equal(t, models.TaskSuccess, tick(t, ok, client, time.Second))

		short := &AssertHasItem{Entry: 117, MinCount: 5}
		short.SetKind("AssertHasItem")
		require.True(t, short.Start(client))
		assert.Equal(t, models.TaskFailed, tick(t, short, client, time.Second))
		assert.Contains(t, short.ErrorMessage(), "have 4")
	})

	t.Run("quest log asserts", func(t *testing.T) {
		in := &AssertQuestInLog{QuestID: 783}
		in.SetKind("AssertQuestInLog")
		require.True(t, in.Start(client))
		assert.Equal(t, models.TaskSuccess, tick(t, in, client, time.Second))

		notIn := &AssertQuestNotInLog{QuestID: 783}
		notIn.SetKind("AssertQuestNotInLog")
		require.True(t, notIn.Start(client))
		assert.Equal(t, models.TaskFailed, tick(t, notIn, client, time.Second))
		assert.Contains(t, notIn.ErrorMessage(), "783")
	})
}

func TestTaskNameFallsBackToKind(t *testing.T) {
	task := &Wait{Seconds: 1}
	task.SetKind("Wait")
	assert.Equal(t, "Wait", task.Name())

	task.TaskName = "settle down"
	assert.Equal(t, "settle down", task.Name())
}
