// Package report renders test run and suite run results as plain text or
// JSON. Generation is a pure function over the result snapshots.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mathih13/botharness/pkg/models"
)

// RunJSON renders a test run snapshot as an indented JSON document.
func RunJSON(view models.TestRunView) ([]byte, error) {
	return json.MarshalIndent(view, "", "  ")
}

// SuiteJSON renders a suite run snapshot as an indented JSON document.
func SuiteJSON(view models.TestSuiteRunView) ([]byte, error) {
	return json.MarshalIndent(view, "", "  ")
}

// RunText renders a human-readable report for one test run.
func RunText(view models.TestRunView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Test run %s — %s\n", view.ID, view.RouteName)
	fmt.Fprintf(&b, "Status:   %s\n", view.Status)
	fmt.Fprintf(&b, "Duration: %s\n", view.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "Bots:     %d total, %d passed, %d failed, %d incomplete\n",
		len(view.Bots), view.BotsPassed, view.BotsFailed, len(view.Bots)-view.BotsCompleted)
	if view.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:    %s\n", view.ErrorMessage)
	}

	for _, bot := range view.Bots {
		fmt.Fprintf(&b, "\n%s", bot.BotName)
		if bot.CharacterName != "" {
			fmt.Fprintf(&b, " (%s, %s)", bot.CharacterName, bot.Class)
		}
		fmt.Fprintf(&b, ": %s\n", botVerdict(bot))
		for _, task := range bot.Tasks {
			fmt.Fprintf(&b, "  [%s] %s (%s)", verdictMark(task.Status), task.TaskName,
				task.Duration.Round(time.Millisecond))
			if task.ErrorMessage != "" {
				fmt.Fprintf(&b, " — %s", task.ErrorMessage)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// SuiteText renders a human-readable report for one suite run.
func SuiteText(view models.TestSuiteRunView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Suite %s — %s\n", view.ID, view.Name)
	fmt.Fprintf(&b, "Status: %s\n", view.Status)
	fmt.Fprintf(&b, "Tests:  %d total, %d passed, %d failed, %d skipped\n",
		view.TotalTests, view.TestsPassed, view.TestsFailed, view.TestsSkipped)

	for _, result := range view.Results {
		fmt.Fprintf(&b, "  %-8s %s", result.Outcome, result.Name)
		if result.RunID != "" {
			fmt.Fprintf(&b, " (run %s)", result.RunID)
		}
		if result.Reason != "" {
			fmt.Fprintf(&b, " — %s", result.Reason)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func botVerdict(bot models.BotResult) string {
	switch {
	case !bot.Complete:
		return "incomplete"
	case bot.Success:
		return "passed"
	default:
		if bot.ErrorMessage != "" {
			return "failed — " + bot.ErrorMessage
		}
		return "failed"
	}
}

func verdictMark(status models.TaskStatus) string {
	switch status {
	case models.TaskSuccess:
		return "ok"
	case models.TaskFailed:
		return "FAIL"
	case models.TaskSkipped:
		return "skip"
	default:
		return "…"
	}
}
