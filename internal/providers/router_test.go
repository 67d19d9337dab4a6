package providers

import (
	"context"
	"testing"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/stretchr/testify/assert"
)

type namedProvider struct{ name string }

func (p namedProvider) ProposeInitialTasks(context.Context, engine.ModelSettings, string) ([]string, error) {
	return []string{p.name}, nil
}

func (p namedProvider) ProposeAdditionalTasks(context.Context, engine.ModelSettings, string, []string, string, string, []string) ([]string, error) {
	return []string{p.name}, nil
}

func (p namedProvider) ExecuteTask(context.Context, engine.ModelSettings, string, string) (string, error) {
	return p.name, nil
}

func TestRouter(t *testing.T) {
	direct := namedProvider{"direct"}
	mediated := namedProvider{"mediated"}
	withKey := engine.ModelSettings{CustomAPIKey: "sk"}
	noKey := engine.ModelSettings{}

	tests := []struct {
		name     string
		router   Router
		settings engine.ModelSettings
		want     string
	}{
		{"key goes direct", Router{Direct: direct, Mediated: mediated}, withKey, "direct"},
		{"no key goes mediated", Router{Direct: direct, Mediated: mediated}, noKey, "mediated"},
		{"no intermediary falls back", Router{Direct: direct}, noKey, "direct"},
		{"no direct falls back", Router{Mediated: mediated}, withKey, "mediated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tasks, err := tt.router.ProposeInitialTasks(ctx, tt.settings, "g")
			assert.NoError(t, err)
			assert.Equal(t, []string{tt.want}, tasks)

			tasks, err = tt.router.ProposeAdditionalTasks(ctx, tt.settings, "g", nil, "", "", nil)
			assert.NoError(t, err)
			assert.Equal(t, []string{tt.want}, tasks)

			out, err := tt.router.ExecuteTask(ctx, tt.settings, "g", "t")
			assert.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	var empty Router
	_, err := empty.ExecuteTask(context.Background(), noKey, "g", "t")
	assert.ErrorIs(t, err, ErrNoRoute)
}
