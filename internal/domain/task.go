package domain

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a task may move from one status to another.
// The only edges are queued -> running -> {completed | failed}.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning
	case TaskStatusRunning:
		return to == TaskStatusCompleted || to == TaskStatusFailed
	}
	return false
}

// Task is one tracked request to perform an action against a deployment target.
// Result is set iff Status is completed, Error iff Status is failed.
type Task struct {
	ID        string     `json:"task_id"`
	TargetID  string     `json:"target"`
	Action    string     `json:"action"`
	Status    TaskStatus `json:"status"`
	Result    JSONB      `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	Seq       uint64     `json:"seq"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a copy that shares no maps or slices with t.
func (t *Task) Clone() *Task {
	c := *t
	c.Result = t.Result.Clone()
	return &c
}

// MarshalJSON writes result for completed tasks, including an empty one, and
// never for any other status.
func (t Task) MarshalJSON() ([]byte, error) {
	type wire Task
	out := struct {
		wire
		Result *JSONB `json:"result,omitempty"`
	}{wire: wire(t)}
	if t.Status == TaskStatusCompleted {
		result := t.Result
		if result == nil {
			result = JSONB{}
		}
		out.Result = &result
	}
	return json.Marshal(out)
}

// TaskTable is the full task table keyed by task id.
type TaskTable map[string]*Task
