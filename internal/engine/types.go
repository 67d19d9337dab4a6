package engine

import (
	"context"
	"fmt"
)

// EventKind discriminates progress events.
type EventKind string

const (
	KindGoal     EventKind = "goal"
	KindThinking EventKind = "thinking"
	KindTask     EventKind = "task"
	KindAction   EventKind = "action"
	KindSystem   EventKind = "system"
)

// Validate checks that the kind is one the consuming surface understands.
func (k EventKind) Validate() error {
	switch k {
	case KindGoal, KindThinking, KindTask, KindAction, KindSystem:
		return nil
	default:
		return fmt.Errorf("invalid event kind: %s", k)
	}
}

// Event is one step of the run narrative delivered to a Sink.
type Event struct {
	Kind  EventKind
	Info  string // Optional short annotation (e.g. which task produced an action)
	Value string
	Loop  int // Iteration counter at the moment of emission
}

// Sink receives progress events in the order the loop produces them.
// It must not block for long: the loop waits for it.
type Sink func(Event)

// ModelSettings is the caller-supplied model configuration. The loop only
// inspects CustomAPIKey and CustomMaxLoops; everything else is forwarded to
// the task provider untouched.
type ModelSettings struct {
	Provider          string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	CustomAPIKey      string  `json:"customApiKey,omitempty" yaml:"custom_api_key,omitempty"`
	CustomModelName   string  `json:"customModelName,omitempty" yaml:"custom_model_name,omitempty"`
	CustomTemperature float32 `json:"customTemperature,omitempty" yaml:"custom_temperature,omitempty"`
	CustomMaxLoops    int     `json:"customMaxLoops,omitempty" yaml:"custom_max_loops,omitempty"`
	CustomBaseURL     string  `json:"customBaseUrl,omitempty" yaml:"custom_base_url,omitempty"`
	Language          string  `json:"language,omitempty" yaml:"language,omitempty"`
}

// HasCustomKey reports whether the caller supplied its own credential.
func (s ModelSettings) HasCustomKey() bool { return s.CustomAPIKey != "" }

// Session describes the signed-in user, if any.
type Session struct {
	UserID         string
	SubscriptionID string
}

// Privileged reports whether the session belongs to a paying user.
func (s *Session) Privileged() bool {
	return s != nil && s.SubscriptionID != ""
}

// SettingsSource yields the current model settings. It is consulted on every
// iteration so a long-lived run picks up settings changed mid-run.
type SettingsSource interface {
	ModelSettings() ModelSettings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings ModelSettings

func (s StaticSettings) ModelSettings() ModelSettings { return ModelSettings(s) }

// TaskProvider is the model-backed collaborator. Implementations own prompts,
// transport and retries; the loop only sequences the calls.
type TaskProvider interface {
	ProposeInitialTasks(ctx context.Context, settings ModelSettings, goal string) ([]string, error)
	ProposeAdditionalTasks(ctx context.Context, settings ModelSettings, goal string, pending []string, lastTask, lastResult string, completed []string) ([]string, error)
	ExecuteTask(ctx context.Context, settings ModelSettings, goal, task string) (string, error)
}
