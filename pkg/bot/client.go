// Package bot defines the collaborator contracts for synthetic game
// clients. The orchestration core never talks the game wire protocol;
// it drives clients exclusively through these interfaces.
package bot

import "context"

// Position is a world location: map plus coordinates and orientation.
type Position struct {
	MapID int     `json:"mapId"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	O     float64 `json:"o,omitempty"`
}

// ItemGrant is one item entry and the count to grant.
type ItemGrant struct {
	Entry int `json:"entry"`
	Count int `json:"count"`
}

// HarnessSetup is the privileged per-bot setup payload applied after
// login: level, item grants, prerequisite quests, starting position and
// equipment. Zero values mean "nothing to apply".
type HarnessSetup struct {
	Level           int
	Items           []ItemGrant
	CompletedQuests []int
	StartPosition   *Position
	EquipmentSets   []string
}

// Empty reports whether the setup carries no work at all.
func (s HarnessSetup) Empty() bool {
	return s.Level <= 1 && len(s.Items) == 0 && len(s.CompletedQuests) == 0 &&
		s.StartPosition == nil && len(s.EquipmentSets) == 0
}

// Client is one logged-in game client. Lifecycle methods block and take a
// context; the game-facing methods are non-blocking queries or command
// initiators suitable for a 10 Hz tick loop.
type Client interface {
	// Lifecycle.
	Start(ctx context.Context) error
	Connected() bool
	LoggedIn() bool
	CharacterName() string
	ApplyHarnessSetup(ctx context.Context, setup HarnessSetup) error
	Logout(ctx context.Context) error
	Login(ctx context.Context) error
	Dispose(ctx context.Context) error

	// Log appends a free-form line to the bot's result log.
	Log(message string)

	// State queries.
	Position() Position
	Level() int
	ItemCount(entry int) int
	QuestInLog(questID int) bool

	// Movement. MoveTo and MoveToUnit initiate travel; IsMoving reports
	// whether travel is still in progress.
	MoveTo(pos Position) error
	MoveToUnit(name string) error
	IsMoving() bool

	// Interaction.
	Interact(name string) error
	AcceptQuest(questID int) error
	TurnInQuest(questID int) error
	UseObject(entry int) error
	LearnClassSpells() error

	// Combat. EngageMobs starts killing the given creature entries;
	// MobsKilled reports kills since the last EngageMobs call.
	EngageMobs(entries []int, count int) error
	MobsKilled() int

	// Adventure mode: autonomous wandering/grinding until stopped.
	StartAdventure() error
	StopAdventure()
}

// Factory provisions a game account (idempotently, via the admin channel)
// and returns a client ready to Start. The account password is fixed for
// test accounts and owned by the factory.
type Factory interface {
	CreateClient(ctx context.Context, accountName, class, race string) (Client, error)
}
