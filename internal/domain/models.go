package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

// Clone deep-copies the nested maps and slices a decoded JSON payload can hold.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case JSONB:
		return x.Clone()
	case map[string]interface{}:
		return map[string]interface{}(JSONB(x).Clone())
	case []interface{}:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case map[string]string:
		out := make(map[string]string, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	}
	return v
}

// ==================== ENTITIES ====================

// TaskRecord is the durable row behind a Task.
type TaskRecord struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	TargetID  string     `gorm:"size:255;not null;index" json:"target"`
	Action    string     `gorm:"size:64;not null" json:"action"`
	Status    TaskStatus `gorm:"size:20;not null;index" json:"status"`
	Result    JSONB      `gorm:"type:jsonb" json:"result,omitempty"`
	Error     string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (TaskRecord) TableName() string {
	return "tasks"
}

func NewTaskRecord(t *Task) *TaskRecord {
	return &TaskRecord{
		ID:        t.ID,
		TargetID:  t.TargetID,
		Action:    t.Action,
		Status:    t.Status,
		Result:    t.Result,
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (r *TaskRecord) ToTask() *Task {
	return &Task{
		ID:        r.ID,
		TargetID:  r.TargetID,
		Action:    r.Action,
		Status:    r.Status,
		Result:    r.Result,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
