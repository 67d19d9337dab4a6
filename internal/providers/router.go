package providers

import (
	"context"
	"errors"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
)

// ErrNoRoute is returned when neither path is configured.
var ErrNoRoute = errors.New("no task provider configured")

// Router is the single TaskProvider handed to the controller. Calls go
// direct when the settings carry a custom key and through the intermediary
// otherwise. A path that is not configured falls back to the other one, so a
// local-only setup works without a server.
type Router struct {
	Direct   engine.TaskProvider
	Mediated engine.TaskProvider
}

func (r *Router) pick(settings engine.ModelSettings) (engine.TaskProvider, error) {
	first, second := r.Mediated, r.Direct
	if settings.HasCustomKey() {
		first, second = r.Direct, r.Mediated
	}
	if first != nil {
		return first, nil
	}
	if second != nil {
		return second, nil
	}
	return nil, ErrNoRoute
}

// ProposeInitialTasks implements engine.TaskProvider.
func (r *Router) ProposeInitialTasks(ctx context.Context, settings engine.ModelSettings, goal string) ([]string, error) {
	p, err := r.pick(settings)
	if err != nil {
		return nil, err
	}
	return p.ProposeInitialTasks(ctx, settings, goal)
}

// ProposeAdditionalTasks implements engine.TaskProvider.
func (r *Router) ProposeAdditionalTasks(ctx context.Context, settings engine.ModelSettings, goal string, pending []string, lastTask, lastResult string, completed []string) ([]string, error) {
	p, err := r.pick(settings)
	if err != nil {
		return nil, err
	}
	return p.ProposeAdditionalTasks(ctx, settings, goal, pending, lastTask, lastResult, completed)
}

// ExecuteTask implements engine.TaskProvider.
func (r *Router) ExecuteTask(ctx context.Context, settings engine.ModelSettings, goal, task string) (string, error) {
	p, err := r.pick(settings)
	if err != nil {
		return "", err
	}
	return p.ExecuteTask(ctx, settings, goal, task)
}
