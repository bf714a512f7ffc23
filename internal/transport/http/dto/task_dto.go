package dto

import (
	"fmt"
	"strings"

	"github.com/booner/backend/internal/domain"
)

type SubmitTaskRequest struct {
	Target string `json:"target"`
	Action string `json:"action"`
}

func (r *SubmitTaskRequest) Normalize() {
	r.Target = strings.TrimSpace(r.Target)
	r.Action = domain.NormalizeAction(r.Action)
}

func (r *SubmitTaskRequest) Validate() []string {
	var errors []string

	if r.Target == "" {
		errors = append(errors, "target is required")
	}
	if r.Action == "" {
		errors = append(errors, "action is required")
	}

	return errors
}

type TaskAcceptedResponse struct {
	TaskID  string            `json:"task_id"`
	Status  domain.TaskStatus `json:"status"`
	Message string            `json:"message"`
}

func TaskToAccepted(task *domain.Task) TaskAcceptedResponse {
	return TaskAcceptedResponse{
		TaskID:  task.ID,
		Status:  task.Status,
		Message: fmt.Sprintf("%s on %s accepted", task.Action, task.TargetID),
	}
}

type TasksResponse struct {
	Tasks domain.TaskTable `json:"tasks"`
}
