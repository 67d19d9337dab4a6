// Package prompts holds the versioned prompt templates the task providers send
// to the model.
package prompts

// PromptVersion is a dotted numeric version such as "1.0.0".
type PromptVersion string

const (
	PromptV1 PromptVersion = "1.0.0"
	PromptV2 PromptVersion = "2.0.0"
)

// Prompt is one version of a task prompt.
type Prompt struct {
	ID          string        // e.g. "start_goal"
	Version     PromptVersion
	Content     string // Template text with {{name}} placeholders
	Description string
	Deprecated  bool

	// Vars lists the placeholder names in Content, in order of first use.
	// Filled in by Register.
	Vars []string
}
