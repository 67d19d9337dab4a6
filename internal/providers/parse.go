package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/xeipuuv/gojsonschema"
)

// ErrNoTaskArray is returned when model output holds no JSON array at all.
var ErrNoTaskArray = errors.New("no task array in model output")

const taskArraySchema = `{
  "type": "array",
  "items": {"type": "string"},
  "maxItems": 32
}`

// TaskArrayError reports model output that parsed but is not a list of strings.
type TaskArrayError struct {
	Errors []string
}

func (e *TaskArrayError) Error() string {
	return "invalid task array: " + strings.Join(e.Errors, "; ")
}

// parseTaskArray pulls the task list out of free-form model text. Output
// that is almost JSON (single quotes, trailing commas) is repaired first.
func parseTaskArray(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end < start {
		return nil, ErrNoTaskArray
	}
	raw := text[start : end+1]

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("parse task array: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
			return nil, fmt.Errorf("parse repaired task array: %w", err)
		}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(taskArraySchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &TaskArrayError{Errors: msgs}
	}

	items := doc.([]any)
	tasks := make([]string, 0, len(items))
	for _, it := range items {
		if t := strings.TrimSpace(it.(string)); t != "" {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}
