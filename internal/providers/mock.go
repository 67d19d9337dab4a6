package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/ChamsBouzaiene/autogoal/internal/prompts"
)

var quotedGoalRe = regexp.MustCompile(`objective: "([^"]*)"`)

// MockCompleter answers deterministically without a network. The first
// bootstrap yields three steps; follow-on proposals are always empty.
type MockCompleter struct{}

// NewMockCompleter returns the offline completer used by --mock and tests.
func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

// DefaultModel implements Completer.
func (*MockCompleter) DefaultModel() string { return "mock" }

// Complete implements Completer.
func (*MockCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	goal := "the goal"
	if m := quotedGoalRe.FindStringSubmatch(req.Prompt); m != nil {
		goal = m[1]
	}

	switch req.Purpose {
	case prompts.StartGoal:
		out, _ := json.Marshal([]string{
			fmt.Sprintf("Research what is needed to %s", goal),
			fmt.Sprintf("Draft a plan to %s", goal),
			fmt.Sprintf("Review the plan to %s", goal),
		})
		return string(out), nil
	case prompts.CreateTasks:
		return "[]", nil
	case prompts.ExecuteTask:
		return fmt.Sprintf("Mock result for a step of %q.", goal), nil
	default:
		return "This is a test", nil
	}
}
