// Package route defines task routes: the declarative unit a test run
// executes. A route is loaded from JSON, validated once, and treated as
// immutable afterwards.
package route

import (
	"errors"
	"fmt"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/tasks"
)

// Default timeouts applied when a harness omits them.
const (
	DefaultSetupTimeoutSeconds = 120
	DefaultTestTimeoutSeconds  = 600
)

// DefaultClass is distributed to bots when a harness declares no classes.
const DefaultClass = "Warrior"

// HarnessSettings is the declarative recipe for instantiating bots for a
// route. Field names follow the route file's camelCase JSON convention.
type HarnessSettings struct {
	BotCount            int                 `json:"botCount"`
	AccountPrefix       string              `json:"accountPrefix"`
	Classes             []string            `json:"classes"`
	Race                string              `json:"race"`
	Level               int                 `json:"level"`
	Items               []bot.ItemGrant     `json:"items,omitempty"`
	CompletedQuests     []int               `json:"completedQuests,omitempty"`
	StartPosition       *bot.Position       `json:"startPosition,omitempty"`
	SetupTimeoutSeconds int                 `json:"setupTimeoutSeconds,omitempty"`
	TestTimeoutSeconds  int                 `json:"testTimeoutSeconds,omitempty"`
	RestoreSnapshot     string              `json:"restoreSnapshot,omitempty"`
	SaveSnapshot        string              `json:"saveSnapshot,omitempty"`
	EquipmentSets       []string            `json:"equipmentSets,omitempty"`
	ClassEquipmentSets  map[string][]string `json:"classEquipmentSets,omitempty"`
}

// ClassForBot returns the class for the bot at index, distributed
// round-robin over the declared classes.
func (h *HarnessSettings) ClassForBot(index int) string {
	if len(h.Classes) == 0 {
		return DefaultClass
	}
	return h.Classes[index%len(h.Classes)]
}

// AccountName derives the account name for the bot at index.
func (h *HarnessSettings) AccountName(index int) string {
	return fmt.Sprintf("%s%d", h.AccountPrefix, index+1)
}

// SetupFor builds the per-bot setup payload for the given class,
// combining shared and class-specific equipment sets.
func (h *HarnessSettings) SetupFor(class string) bot.HarnessSetup {
	sets := append([]string(nil), h.EquipmentSets...)
	if classSets, ok := h.ClassEquipmentSets[class]; ok {
		sets = append(sets, classSets...)
	}
	return bot.HarnessSetup{
		Level:           h.Level,
		Items:           append([]bot.ItemGrant(nil), h.Items...),
		CompletedQuests: append([]int(nil), h.CompletedQuests...),
		StartPosition:   h.StartPosition,
		EquipmentSets:   sets,
	}
}

// Validate checks the harness invariants.
func (h *HarnessSettings) Validate() error {
	var errs []error
	if h.BotCount < 1 {
		errs = append(errs, fmt.Errorf("botCount must be at least 1, got %d", h.BotCount))
	}
	if h.AccountPrefix == "" {
		errs = append(errs, errors.New("accountPrefix is required"))
	}
	if h.Level < 0 {
		errs = append(errs, fmt.Errorf("level must not be negative, got %d", h.Level))
	}
	for i, item := range h.Items {
		if item.Entry <= 0 || item.Count <= 0 {
			errs = append(errs, fmt.Errorf("items[%d]: entry and count must be positive", i))
		}
	}
	return errors.Join(errs...)
}

// TaskRoute is an ordered list of tasks plus the flags controlling their
// execution. Immutable after load.
type TaskRoute struct {
	Name        string
	Description string
	Loop        bool
	Harness     *HarnessSettings
	Tasks       []tasks.Task
}

// Validate checks that the route can be activated at all.
func (r *TaskRoute) Validate() error {
	if len(r.Tasks) == 0 {
		return fmt.Errorf("route %q has no tasks", r.Name)
	}
	return nil
}

// ValidateForTest checks that the route can be used as a harnessed test.
func (r *TaskRoute) ValidateForTest() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Harness == nil {
		return fmt.Errorf("route %q has no harness settings and cannot run as a test", r.Name)
	}
	if err := r.Harness.Validate(); err != nil {
		return fmt.Errorf("route %q: invalid harness: %w", r.Name, err)
	}
	return nil
}

// EffectiveSetupTimeoutSeconds returns the harness setup timeout with
// defaults applied.
func (h *HarnessSettings) EffectiveSetupTimeoutSeconds() int {
	if h.SetupTimeoutSeconds > 0 {
		return h.SetupTimeoutSeconds
	}
	return DefaultSetupTimeoutSeconds
}

// EffectiveTestTimeoutSeconds returns the test timeout with defaults
// applied.
func (h *HarnessSettings) EffectiveTestTimeoutSeconds() int {
	if h.TestTimeoutSeconds > 0 {
		return h.TestTimeoutSeconds
	}
	return DefaultTestTimeoutSeconds
}
