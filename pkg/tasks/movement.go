package tasks

import (
	"math"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/models"
)

// defaultArrivalTolerance is the accepted distance (world units) between
// the bot and its destination for a movement task to count as arrived.
const defaultArrivalTolerance = 5.0

// MoveToLocation travels to a fixed world position.
type MoveToLocation struct {
	BaseTask
	Destination bot.Position `json:"destination"`
	Tolerance   float64      `json:"tolerance,omitempty"`

	issued bool
}

// Start arms the latch and clears the movement state.
func (t *MoveToLocation) Start(bot.Client) bool {
	t.Begin()
	t.issued = false
	return true
}

// Update issues the move once, then polls until travel ends and checks
// arrival distance.
func (t *MoveToLocation) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if !t.issued {
			if err := c.MoveTo(t.Destination); err != nil {
				return t.Fail("failed to start movement to (%.1f, %.1f, %.1f): %v",
					t.Destination.X, t.Destination.Y, t.Destination.Z, err)
			}
			t.issued = true
			return models.TaskRunning
		}
		if c.IsMoving() {
			return models.TaskRunning
		}
		pos := c.Position()
		tolerance := t.Tolerance
		if tolerance <= 0 {
			tolerance = defaultArrivalTolerance
		}
		if dist := distance(pos, t.Destination); dist > tolerance {
			return t.Fail("stopped %.1f units from destination (at %.1f, %.1f, %.1f)",
				dist, pos.X, pos.Y, pos.Z)
		}
		return models.TaskSuccess
	})
}

// MoveToNPC travels to a named unit; pathing and target resolution are the
// client's concern.
type MoveToNPC struct {
	BaseTask
	NPCName string `json:"npcName"`

	issued bool
}

// Start arms the latch and clears the movement state.
func (t *MoveToNPC) Start(bot.Client) bool {
	t.Begin()
	t.issued = false
	return true
}

// Update issues the move once, then polls until travel ends.
func (t *MoveToNPC) Update(c bot.Client) models.TaskStatus {
	return t.Tick(func() models.TaskStatus {
		if !t.issued {
			if err := c.MoveToUnit(t.NPCName); err != nil {
				return t.Fail("failed to start movement to %q: %v", t.NPCName, err)
			}
			t.issued = true
			return models.TaskRunning
		}
		if c.IsMoving() {
			return models.TaskRunning
		}
		return models.TaskSuccess
	})
}

func distance(a, b bot.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
