package services

import "errors"

// Validation errors, surfaced synchronously to the caller.
var (
	ErrInvalidTarget     = errors.New("target: unknown target")
	ErrActionNotAllowed  = errors.New("target: action not allowed")
	ErrInvalidTransition = errors.New("task: invalid status transition")
	ErrTaskNotFound      = errors.New("task: not found")
	ErrInvalidRoster     = errors.New("target: invalid roster")
)

// Runtime errors, recorded on the task or snapshot entry they belong to.
var (
	ErrExecutionFailure = errors.New("executor: execution failed")
	ErrProbeTimeout     = errors.New("probe: timed out")
)

// Hub errors
var (
	ErrUnknownTopic = errors.New("hub: unknown topic")
	ErrHubClosed    = errors.New("hub: closed")
)
