package providers

import "github.com/ChamsBouzaiene/autogoal/internal/engine"

// Paths of the intermediary service.
const (
	PathStart   = "/api/agent/start"
	PathCreate  = "/api/agent/create"
	PathExecute = "/api/agent/execute"
)

// AgentRequest is the body of every intermediary call. Fields unused by an
// endpoint are left empty.
type AgentRequest struct {
	ModelSettings  engine.ModelSettings `json:"modelSettings"`
	Goal           string               `json:"goal"`
	Tasks          []string             `json:"tasks,omitempty"`
	LastTask       string               `json:"lastTask,omitempty"`
	Result         string               `json:"result,omitempty"`
	CompletedTasks []string             `json:"completedTasks,omitempty"`
	Task           string               `json:"task,omitempty"`
}

// TasksResponse answers start and create.
type TasksResponse struct {
	NewTasks []string `json:"newTasks"`
}

// ExecuteResponse answers execute.
type ExecuteResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is the body of a non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
