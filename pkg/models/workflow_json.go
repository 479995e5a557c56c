package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// WorkflowContextJSON adapts WorkflowContext for storage as a jsonb column.
type WorkflowContextJSON WorkflowContext

func (c WorkflowContextJSON) Value() (driver.Value, error) {
	return json.Marshal(WorkflowContext(c))
}

func (c *WorkflowContextJSON) Scan(src any) error {
	b, err := toBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*c = WorkflowContextJSON{SharedData: map[string]any{}}
		return nil
	}
	var wc WorkflowContext
	if err := json.Unmarshal(b, &wc); err != nil {
		return err
	}
	*c = WorkflowContextJSON(wc)
	return nil
}

// WorkflowStepsJSON adapts []WorkflowStep for storage as a jsonb column.
type WorkflowStepsJSON []WorkflowStep

func (s WorkflowStepsJSON) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal([]WorkflowStep(s))
}

func (s *WorkflowStepsJSON) Scan(src any) error {
	b, err := toBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*s = nil
		return nil
	}
	var steps []WorkflowStep
	if err := json.Unmarshal(b, &steps); err != nil {
		return err
	}
	*s = steps
	return nil
}

func toBytes(src any) ([]byte, error) {
	if src == nil {
		return nil, nil
	}
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("models: unsupported jsonb source type")
	}
}
