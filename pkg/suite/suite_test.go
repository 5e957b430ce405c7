package suite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryNames(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEntryNameFromRouteStem(t *testing.T) {
	assert.Equal(t, "login", Entry{Route: "login.json"}.Name())
	assert.Equal(t, "login", Entry{Route: "smoke/login.json"}.Name())
	assert.Equal(t, "login", Entry{Route: "/abs/path/login"}.Name())
}

func TestValidate(t *testing.T) {
	t.Run("valid suite", func(t *testing.T) {
		s := &Suite{Name: "smoke", Entries: []Entry{
			{Route: "a.json"},
			{Route: "b.json", DependsOn: []string{"a"}},
		}}
		assert.Empty(t, s.Validate())
	})

	t.Run("empty route", func(t *testing.T) {
		s := &Suite{Name: "smoke", Entries: []Entry{{Route: ""}}}
		errs := s.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "empty route")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		s := &Suite{Name: "smoke", Entries: []Entry{
			{Route: "a.json", DependsOn: []string{"ghost"}},
		}}
		errs := s.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), `unknown test "ghost"`)
	})

	t.Run("duplicate names", func(t *testing.T) {
		s := &Suite{Name: "smoke", Entries: []Entry{
			{Route: "a.json"},
			{Route: "nested/a.json"},
		}}
		errs := s.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "share the name")
	})

	t.Run("two-node cycle", func(t *testing.T) {
		s := &Suite{Name: "smoke", Entries: []Entry{
			{Route: "a.json", DependsOn: []string{"b"}},
			{Route: "b.json", DependsOn: []string{"a"}},
		}}
		errs := s.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[len(errs)-1].Error(), "cycle")
	})

	t.Run("self cycle", func(t *testing.T) {
		s := &Suite{Name: "smoke", Entries: []Entry{
			{Route: "a.json", DependsOn: []string{"a"}},
		}}
		errs := s.Validate()
		require.NotEmpty(t, errs)
	})
}

func TestExecutionLevels(t *testing.T) {
	s := &Suite{Name: "smoke", Entries: []Entry{
		{Route: "a.json"},
		{Route: "b.json", DependsOn: []string{"a"}},
		{Route: "c.json", DependsOn: []string{"a"}},
		{Route: "d.json", DependsOn: []string{"b", "c"}},
		{Route: "e.json"},
	}}

	levels, err := s.ExecutionLevels()
	require.NoError(t, err)
	require.Len(t, levels, 3)

	// Within a level, insertion order is preserved.
	assert.Equal(t, []string{"a", "e"}, entryNames(levels[0]))
	assert.Equal(t, []string{"b", "c"}, entryNames(levels[1]))
	assert.Equal(t, []string{"d"}, entryNames(levels[2]))
}

func TestExecutionLevelsDetectsCycle(t *testing.T) {
	s := &Suite{Name: "smoke", Entries: []Entry{
		{Route: "a.json", DependsOn: []string{"b"}},
		{Route: "b.json", DependsOn: []string{"a"}},
	}}
	_, err := s.ExecutionLevels()
	assert.ErrorContains(t, err, "cycle")
}

func TestTopologicalOrder(t *testing.T) {
	s := &Suite{Name: "smoke", Entries: []Entry{
		{Route: "c.json", DependsOn: []string{"b"}},
		{Route: "b.json", DependsOn: []string{"a"}},
		{Route: "a.json"},
	}}

	order, err := s.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, entryNames(order))

	// Valid suites always produce a complete ordering.
	assert.Empty(t, s.Validate())
	assert.Len(t, order, len(s.Entries))
}

func TestLoadSuiteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smoke.json")
	content := `{
  "name": "smoke",
  "tests": [
    {"route": "login.json"},
    {"route": "quests.json", "dependsOn": ["login"]}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", s.Name)
	assert.Equal(t, path, s.Path)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, []string{"login"}, s.Entries[1].DependsOn)
	assert.Empty(t, s.Validate())
}
