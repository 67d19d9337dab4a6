package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{[a-z_]+\}\}`)

// PromptBuilder helps compose prompts from fragments and variables.
type PromptBuilder struct {
	basePrompt *Prompt
	fragments  []string
	variables  map[string]string
}

// NewPromptBuilder creates a builder on the latest version of a registered prompt.
func NewPromptBuilder(registry *Registry, id string) (*PromptBuilder, error) {
	basePrompt, err := registry.Latest(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}

	return &PromptBuilder{
		basePrompt: basePrompt,
		fragments:  []string{basePrompt.Content},
		variables:  make(map[string]string),
	}, nil
}

// AddFragment appends a fragment to the prompt.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	b.fragments = append(b.fragments, text)
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// SetList sets a variable to a JSON-looking list of quoted items.
func (b *PromptBuilder) SetList(key string, items []string) *PromptBuilder {
	return b.SetVariable(key, QuoteList(items))
}

// QuoteList renders items as ["a", "b"].
func QuoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Build constructs the final prompt string. A placeholder left without a
// value is an error so a template typo never reaches the model.
func (b *PromptBuilder) Build() (string, error) {
	var missing []string
	// One pass, so values that contain braces are never re-expanded.
	result := placeholderRe.ReplaceAllStringFunc(strings.Join(b.fragments, "\n\n"), func(ph string) string {
		if v, ok := b.variables[ph[2:len(ph)-2]]; ok {
			return v
		}
		missing = append(missing, ph)
		return ph
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s: no value for %s", b.basePrompt.ID, strings.Join(missing, ", "))
	}
	return result, nil
}

// Render builds a registered prompt with vars in one call.
func Render(registry *Registry, id string, vars map[string]string) (string, error) {
	b, err := NewPromptBuilder(registry, id)
	if err != nil {
		return "", err
	}
	for k, v := range vars {
		b.SetVariable(k, v)
	}
	return b.Build()
}
