package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty"` // openai, anthropic, ollama, mock...
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxLoops    int     `json:"max_loops,omitempty" yaml:"max_loops,omitempty"` // Only honoured with an API key
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Language    string  `json:"language,omitempty" yaml:"language,omitempty"`

	// Intermediary service used when no API key is configured.
	ServerURL   string `json:"server_url,omitempty" yaml:"server_url,omitempty"`
	ServerToken string `json:"server_token,omitempty" yaml:"server_token,omitempty"`
	Privileged  bool   `json:"privileged,omitempty" yaml:"privileged,omitempty"`

	Loops  LoopsConfig  `json:"loops,omitempty" yaml:"loops,omitempty"`
	Pacing PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	MockMode          bool    `json:"mock_mode,omitempty" yaml:"mock_mode,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	HistoryDB         string  `json:"history_db,omitempty" yaml:"history_db,omitempty"`
	ListenAddr        string  `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// LoopsConfig overrides the tier budgets; zero keeps the default.
type LoopsConfig struct {
	Free      int `json:"free,omitempty" yaml:"free,omitempty"`
	Paid      int `json:"paid,omitempty" yaml:"paid,omitempty"`
	CustomKey int `json:"custom_key,omitempty" yaml:"custom_key,omitempty"`
}

// PacingConfig holds presentation delays in milliseconds. Nil keeps the
// default; zero disables the delay.
type PacingConfig struct {
	TaskEventMS     *int `json:"task_event_ms,omitempty" yaml:"task_event_ms,omitempty"`
	BeforeExecuteMS *int `json:"before_execute_ms,omitempty" yaml:"before_execute_ms,omitempty"`
	BeforeExpandMS  *int `json:"before_expand_ms,omitempty" yaml:"before_expand_ms,omitempty"`
}

// ModelSettings projects the config onto what the loop and providers see.
func (c *Config) ModelSettings() engine.ModelSettings {
	return engine.ModelSettings{
		Provider:          c.Provider,
		CustomAPIKey:      c.APIKey,
		CustomModelName:   c.Model,
		CustomTemperature: c.Temperature,
		CustomMaxLoops:    c.MaxLoops,
		CustomBaseURL:     c.BaseURL,
		Language:          c.Language,
	}
}

// Session returns the session implied by the Privileged flag.
func (c *Config) Session() *engine.Session {
	if !c.Privileged {
		return nil
	}
	return &engine.Session{UserID: "local", SubscriptionID: "local"}
}

// EngineConfig builds the controller configuration.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if c.Loops.Free > 0 {
		cfg.Loops.Free = c.Loops.Free
	}
	if c.Loops.Paid > 0 {
		cfg.Loops.Paid = c.Loops.Paid
	}
	if c.Loops.CustomKey > 0 {
		cfg.Loops.CustomKey = c.Loops.CustomKey
	}
	setMS(&cfg.Pacing.TaskEvent, c.Pacing.TaskEventMS)
	setMS(&cfg.Pacing.BeforeExecute, c.Pacing.BeforeExecuteMS)
	setMS(&cfg.Pacing.BeforeExpand, c.Pacing.BeforeExpandMS)
	return cfg
}

func setMS(d *time.Duration, ms *int) {
	if ms != nil && *ms >= 0 {
		*d = time.Duration(*ms) * time.Millisecond
	}
}

// envKeys maps environment variables onto Set keys, applied in order so the
// more specific variables win.
var envKeys = []struct{ env, key string }{
	{"OPENAI_API_KEY", "api_key"},
	{"AUTOGOAL_PROVIDER", "provider"},
	{"AUTOGOAL_API_KEY", "api_key"},
	{"AUTOGOAL_MODEL", "model"},
	{"AUTOGOAL_TEMPERATURE", "temperature"},
	{"AUTOGOAL_MAX_LOOPS", "max_loops"},
	{"AUTOGOAL_BASE_URL", "base_url"},
	{"AUTOGOAL_LANGUAGE", "language"},
	{"AUTOGOAL_SERVER_URL", "server_url"},
	{"AUTOGOAL_SERVER_TOKEN", "server_token"},
	{"AUTOGOAL_PRIVILEGED", "privileged"},
	{"AUTOGOAL_MOCK_MODE", "mock_mode"},
	{"AUTOGOAL_HISTORY_DB", "history_db"},
	{"AUTOGOAL_LISTEN_ADDR", "listen_addr"},
}

// ApplyEnv overlays non-empty environment values. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for _, e := range envKeys {
		if v := strings.TrimSpace(getenv(e.env)); v != "" {
			if err := c.Set(e.key, v); err != nil {
				return fmt.Errorf("%s: %w", e.env, err)
			}
		}
	}
	return nil
}

type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func intField(p func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("want a non-negative integer, got %q", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("want true or false, got %q", v)
			}
			*p(c) = b
			return nil
		},
	}
}

var fields = map[string]field{
	"provider":         stringField(func(c *Config) *string { return &c.Provider }),
	"api_key":          stringField(func(c *Config) *string { return &c.APIKey }),
	"model":            stringField(func(c *Config) *string { return &c.Model }),
	"base_url":         stringField(func(c *Config) *string { return &c.BaseURL }),
	"language":         stringField(func(c *Config) *string { return &c.Language }),
	"server_url":       stringField(func(c *Config) *string { return &c.ServerURL }),
	"server_token":     stringField(func(c *Config) *string { return &c.ServerToken }),
	"history_db":       stringField(func(c *Config) *string { return &c.HistoryDB }),
	"listen_addr":      stringField(func(c *Config) *string { return &c.ListenAddr }),
	"max_loops":        intField(func(c *Config) *int { return &c.MaxLoops }),
	"loops.free":       intField(func(c *Config) *int { return &c.Loops.Free }),
	"loops.paid":       intField(func(c *Config) *int { return &c.Loops.Paid }),
	"loops.custom_key": intField(func(c *Config) *int { return &c.Loops.CustomKey }),
	"privileged":       boolField(func(c *Config) *bool { return &c.Privileged }),
	"mock_mode":        boolField(func(c *Config) *bool { return &c.MockMode }),
	"temperature": {
		get: func(c *Config) string { return strconv.FormatFloat(float64(c.Temperature), 'f', -1, 32) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil || f < 0 || f > 2 {
				return fmt.Errorf("want a number between 0 and 2, got %q", v)
			}
			c.Temperature = float32(f)
			return nil
		},
	},
	"requests_per_second": {
		get: func(c *Config) string { return strconv.FormatFloat(c.RequestsPerSecond, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("want a non-negative number, got %q", v)
			}
			c.RequestsPerSecond = f
			return nil
		},
	},
}

// Keys lists the names accepted by Set and Get, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one setting by name.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return f.set(c, strings.TrimSpace(value))
}

// Get reads one setting by name.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return f.get(c), nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	r := *c
	r.APIKey = redact(r.APIKey)
	r.ServerToken = redact(r.ServerToken)
	return r
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:3] + "…" + s[len(s)-4:]
}
