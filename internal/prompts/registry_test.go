package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryHasTaskPrompts(t *testing.T) {
	want := map[string][]string{
		StartGoal:   {"goal", "language"},
		CreateTasks: {"goal", "tasks", "completed", "last_task", "result", "language"},
		ExecuteTask: {"goal", "task", "language"},
	}
	assert.Equal(t, []string{CreateTasks, ExecuteTask, StartGoal}, Default().IDs())
	for id, vars := range want {
		p, err := Default().Latest(id)
		require.NoError(t, err, id)
		assert.Equal(t, PromptV1, p.Version)
		assert.ElementsMatch(t, vars, p.Vars, id)
	}
}

func TestLatestSkipsDeprecated(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: PromptV1, Content: "old"}))
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: PromptV2, Content: "new", Deprecated: true}))

	p, err := r.Latest("p")
	require.NoError(t, err)
	assert.Equal(t, "old", p.Content)

	_, err = r.Latest("missing")
	assert.Error(t, err)
}

func TestLatestFallsBackToNewestDeprecated(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: PromptV1, Content: "a", Deprecated: true}))
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: PromptV2, Content: "b", Deprecated: true}))

	p, err := r.Latest("p")
	require.NoError(t, err)
	assert.Equal(t, "b", p.Content)
}

func TestVersionsCompareNumerically(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: "1.10.0", Content: "ten"}))
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: "1.9", Content: "nine"}))

	p, err := r.Latest("p")
	require.NoError(t, err)
	assert.Equal(t, "ten", p.Content)

	p, err = r.Lookup("p", "1.9.0")
	require.NoError(t, err)
	assert.Equal(t, "nine", p.Content)

	_, err = r.Lookup("p", "3.0.0")
	assert.Error(t, err)
}

func TestRegisterReplacesSameVersion(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: PromptV1, Content: "first"}))
	require.NoError(t, r.Register(&Prompt{ID: "p", Version: PromptV1, Content: "second {{goal}}"}))

	p, err := r.Latest("p")
	require.NoError(t, err)
	assert.Equal(t, "second {{goal}}", p.Content)
	assert.Equal(t, []string{"goal"}, p.Vars)
}

func TestRegisterRejectsInvalidPrompts(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		p    *Prompt
	}{
		{"nil", nil},
		{"no id", &Prompt{Version: PromptV1, Content: "x"}},
		{"no content", &Prompt{ID: "p", Version: PromptV1, Content: "  "}},
		{"bad version", &Prompt{ID: "p", Version: "v1", Content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.Register(tt.p))
		})
	}
	assert.Empty(t, r.IDs())
}

func TestBuilder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Prompt{ID: "p", Version: PromptV1, Content: "Goal: {{goal}}\nTasks: {{tasks}}"})

	b, err := NewPromptBuilder(r, "p")
	require.NoError(t, err)
	out, err := b.SetVariable("goal", "use {{tasks}} literally").
		SetList("tasks", []string{"a", `say "hi"`}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "Goal: use {{tasks}} literally\nTasks: [\"a\", \"say \\\"hi\\\"\"]", out)
}

func TestRenderReportsMissingVariables(t *testing.T) {
	_, err := Render(Default(), ExecuteTask, map[string]string{"goal": "g"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{task}}")
	assert.Contains(t, err.Error(), "{{language}}")

	out, err := Render(Default(), ExecuteTask, map[string]string{"goal": "g", "task": "t", "language": "English"})
	require.NoError(t, err)
	assert.Contains(t, out, `following task: "t"`)
}
