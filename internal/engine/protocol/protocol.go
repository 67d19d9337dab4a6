package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/google/uuid"
)

// CommandType enumerates all supported client -> runner commands.
type CommandType string

const (
	CommandStartRun CommandType = "start_run"
	CommandStopRun  CommandType = "stop_run"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// StartRunCommand launches a run for a goal.
type StartRunCommand struct {
	Type       CommandType          `json:"type"`
	RunID      string               `json:"run_id,omitempty"`
	Goal       string               `json:"goal"`
	Settings   engine.ModelSettings `json:"settings,omitempty"`
	Privileged bool                 `json:"privileged,omitempty"`
}

// GetType implements Command.
func (c StartRunCommand) GetType() CommandType { return CommandStartRun }

// StopRunCommand asks a run to halt at its next cooperative point.
type StopRunCommand struct {
	Type  CommandType `json:"type"`
	RunID string      `json:"run_id"`
}

// GetType implements Command.
func (c StopRunCommand) GetType() CommandType { return CommandStopRun }

type rawCommand struct {
	Type CommandType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandStartRun:
		var cmd StartRunCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode start_run: %w", err)
		}
		if strings.TrimSpace(cmd.Goal) == "" {
			return nil, errors.New("start_run requires goal")
		}
		if cmd.RunID == "" {
			cmd.RunID = NewRunID()
		}
		return cmd, nil
	case CommandStopRun:
		var cmd StopRunCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode stop_run: %w", err)
		}
		if cmd.RunID == "" {
			return nil, errors.New("stop_run requires run_id")
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// NewRunID generates a new opaque run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// EventType enumerates runner -> client events.
type EventType string

const (
	EventRunStarted EventType = "run_started"
	EventProgress   EventType = "progress"
	EventHalt       EventType = "halt"
	EventError      EventType = "error"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON for NDJSON transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id,omitempty"`
}

func (eventBase) isEvent() {}

// RunStartedEvent acknowledges a start_run command.
type RunStartedEvent struct {
	eventBase
	Goal string `json:"goal"`
}

// NewRunStartedEvent constructs a run_started event.
func NewRunStartedEvent(runID, goal string) RunStartedEvent {
	return RunStartedEvent{
		eventBase: eventBase{Type: EventRunStarted, RunID: runID},
		Goal:      goal,
	}
}

// GetType implements Event.
func (e RunStartedEvent) GetType() EventType { return e.Type }

// ProgressEvent carries one engine.Event.
type ProgressEvent struct {
	eventBase
	Kind  engine.EventKind `json:"kind"`
	Info  string           `json:"info,omitempty"`
	Value string           `json:"value"`
	Loop  int              `json:"loop"`
}

// NewProgressEvent wraps an engine event for the wire.
func NewProgressEvent(runID string, ev engine.Event) ProgressEvent {
	return ProgressEvent{
		eventBase: eventBase{Type: EventProgress, RunID: runID},
		Kind:      ev.Kind,
		Info:      ev.Info,
		Value:     ev.Value,
		Loop:      ev.Loop,
	}
}

// GetType implements Event.
func (e ProgressEvent) GetType() EventType { return e.Type }

// Engine converts the wire form back into an engine event.
func (e ProgressEvent) Engine() engine.Event {
	return engine.Event{Kind: e.Kind, Info: e.Info, Value: e.Value, Loop: e.Loop}
}

// HaltEvent is the last message of a run.
type HaltEvent struct {
	eventBase
	Phase     engine.Phase `json:"phase"`
	Loops     int          `json:"loops"`
	Completed []string     `json:"completed"`
	Pending   []string     `json:"pending,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// NewHaltEvent builds a halt event from the final snapshot.
func NewHaltEvent(snap engine.Snapshot, runErr error) HaltEvent {
	ev := HaltEvent{
		eventBase: eventBase{Type: EventHalt, RunID: snap.ID},
		Phase:     snap.Phase,
		Loops:     snap.Loop,
		Completed: snap.Completed,
		Pending:   snap.Tasks,
	}
	if ev.Completed == nil {
		ev.Completed = []string{}
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	return ev
}

// GetType implements Event.
func (e HaltEvent) GetType() EventType { return e.Type }

// ErrorEvent reports protocol issues that are not tied to a run's progress.
type ErrorEvent struct {
	eventBase
	Message string `json:"message"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(runID, message string) ErrorEvent {
	return ErrorEvent{
		eventBase: eventBase{Type: EventError, RunID: runID},
		Message:   message,
	}
}

// GetType implements Event.
func (e ErrorEvent) GetType() EventType { return e.Type }

// DecodeEvent parses one NDJSON line produced by MarshalEvent.
func DecodeEvent(data []byte) (Event, error) {
	var base struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var ev Event
	switch base.Type {
	case EventRunStarted:
		ev = &RunStartedEvent{}
	case EventProgress:
		ev = &ProgressEvent{}
	case EventHalt:
		ev = &HaltEvent{}
	case EventError:
		ev = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", base.Type)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return ev, nil
}

// Writer emits events as newline-delimited JSON. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes e followed by a newline.
func (w *Writer) Write(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(e)
}

// Sink adapts the Writer to an engine.Sink for one run. Write errors are
// reported to onErr, if set; the loop itself never sees them.
func (w *Writer) Sink(runID string, onErr func(error)) engine.Sink {
	return func(ev engine.Event) {
		if err := w.Write(NewProgressEvent(runID, ev)); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
