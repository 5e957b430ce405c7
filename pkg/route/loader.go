package route

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Mathih13/botharness/pkg/tasks"
)

// Task type discriminators accepted in route files.
const (
	TypeWait                = "Wait"
	TypeLogMessage          = "LogMessage"
	TypeMoveToLocation      = "MoveToLocation"
	TypeMoveToNPC           = "MoveToNPC"
	TypeTalkToNPC           = "TalkToNPC"
	TypeAcceptQuest         = "AcceptQuest"
	TypeTurnInQuest         = "TurnInQuest"
	TypeKillMobs            = "KillMobs"
	TypeUseObject           = "UseObject"
	TypeAdventure           = "Adventure"
	TypeLearnSpells         = "LearnSpells"
	TypeAssertQuestInLog    = "AssertQuestInLog"
	TypeAssertQuestNotInLog = "AssertQuestNotInLog"
	TypeAssertHasItem       = "AssertHasItem"
	TypeAssertLevel         = "AssertLevel"
)

// taskFactories maps the type discriminator to a decoder for that task
// kind. Unknown types are a load-time error.
var taskFactories = map[string]func() tasks.Task{
	TypeWait:                func() tasks.Task { return &tasks.Wait{} },
	TypeLogMessage:          func() tasks.Task { return &tasks.LogMessage{} },
	TypeMoveToLocation:      func() tasks.Task { return &tasks.MoveToLocation{} },
	TypeMoveToNPC:           func() tasks.Task { return &tasks.MoveToNPC{} },
	TypeTalkToNPC:           func() tasks.Task { return &tasks.TalkToNPC{} },
	TypeAcceptQuest:         func() tasks.Task { return &tasks.AcceptQuest{} },
	TypeTurnInQuest:         func() tasks.Task { return &tasks.TurnInQuest{} },
	TypeKillMobs:            func() tasks.Task { return &tasks.KillMobs{} },
	TypeUseObject:           func() tasks.Task { return &tasks.UseObject{} },
	TypeAdventure:           func() tasks.Task { return &tasks.Adventure{} },
	TypeLearnSpells:         func() tasks.Task { return &tasks.LearnSpells{} },
	TypeAssertQuestInLog:    func() tasks.Task { return &tasks.AssertQuestInLog{} },
	TypeAssertQuestNotInLog: func() tasks.Task { return &tasks.AssertQuestNotInLog{} },
	TypeAssertHasItem:       func() tasks.Task { return &tasks.AssertHasItem{} },
	TypeAssertLevel:         func() tasks.Task { return &tasks.AssertLevel{} },
}

// KnownTaskTypes returns the sorted list of accepted task discriminators.
func KnownTaskTypes() []string {
	types := make([]string, 0, len(taskFactories))
	for t := range taskFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// routeFile is the on-disk JSON shape of a route.
type routeFile struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Loop        bool              `json:"loop,omitempty"`
	Harness     *HarnessSettings  `json:"harness,omitempty"`
	Tasks       []json.RawMessage `json:"tasks"`
}

// taskEnvelope extracts the discriminator before the full decode.
type taskEnvelope struct {
	Type string `json:"type"`
}

// Load reads and parses a route file.
func Load(path string) (*TaskRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route file %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing route file %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a route from JSON.
func Parse(data []byte) (*TaskRoute, error) {
	var file routeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid route JSON: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("route has no name")
	}

	r := &TaskRoute{
		Name:        file.Name,
		Description: file.Description,
		Loop:        file.Loop,
		Harness:     file.Harness,
		Tasks:       make([]tasks.Task, 0, len(file.Tasks)),
	}
	for i, raw := range file.Tasks {
		task, err := parseTask(raw)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		r.Tasks = append(r.Tasks, task)
	}
	return r, nil
}

func parseTask(raw json.RawMessage) (tasks.Task, error) {
	var env taskEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid task JSON: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("task has no type")
	}
	factory, ok := taskFactories[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", env.Type)
	}
	task := factory()
	if err := json.Unmarshal(raw, task); err != nil {
		return nil, fmt.Errorf("decoding %s task: %w", env.Type, err)
	}
	if setter, ok := task.(interface{ SetKind(string) }); ok {
		setter.SetKind(env.Type)
	}
	return task, nil
}

// Marshal serializes a route back to its JSON file form. Parsing the
// result yields a structurally equal route.
func Marshal(r *TaskRoute) ([]byte, error) {
	file := routeFile{
		Name:        r.Name,
		Description: r.Description,
		Loop:        r.Loop,
		Harness:     r.Harness,
		Tasks:       make([]json.RawMessage, 0, len(r.Tasks)),
	}
	for i, task := range r.Tasks {
		raw, err := marshalTask(task)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		file.Tasks = append(file.Tasks, raw)
	}
	return json.MarshalIndent(file, "", "  ")
}

func marshalTask(task tasks.Task) (json.RawMessage, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	// Re-open the object to prepend the discriminator.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%q", task.Kind()))
	return json.Marshal(fields)
}
