package handlers

import (
	"errors"

	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/core/services"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

type TaskHandler struct {
	dispatcher ports.TaskDispatcher
	tasks      ports.TaskSource
	logger     *logger.Logger
}

func NewTaskHandler(dispatcher ports.TaskDispatcher, tasks ports.TaskSource, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{dispatcher: dispatcher, tasks: tasks, logger: logger}
}

// SubmitTask accepts an operation and returns its task id (async)
func (h *TaskHandler) SubmitTask(c *fiber.Ctx) error {
	var req dto.SubmitTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_submit_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	req.Normalize()

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("task_submit_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	h.logger.Infow("task_submit_request", "target", req.Target, "action", req.Action)
	task, err := h.dispatcher.Submit(c.UserContext(), req.Target, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidTarget):
			h.logger.Warnw("task_submit_unknown_target", "target", req.Target)
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrActionNotAllowed):
			h.logger.Warnw("task_submit_action_not_allowed", "target", req.Target, "action", req.Action)
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrDispatcherClosed):
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.logger.Errorw("task_submit_failed", "target", req.Target, "action", req.Action, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	h.logger.Infow("task_submit_accepted", "task_id", task.ID)
	return c.Status(fiber.StatusAccepted).JSON(dto.TaskToAccepted(task))
}

// GetTasks is the polling fallback for the tasks.updates stream
func (h *TaskHandler) GetTasks(c *fiber.Ctx) error {
	table, _ := h.tasks.ListAll()
	return c.JSON(dto.TasksResponse{Tasks: table})
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	taskID := c.Params("id")
	if taskID == "" {
		h.logger.Warnw("task_status_missing_id")
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "task id is required",
		})
	}

	task, err := h.tasks.Get(taskID)
	if err != nil {
		h.logger.Warnw("task_status_not_found", "task_id", taskID)
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "task not found",
		})
	}

	return c.JSON(task)
}
