package handlers

import (
	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

type SystemHandler struct {
	snapshots ports.SnapshotSource
}

func NewSystemHandler(snapshots ports.SnapshotSource) *SystemHandler {
	return &SystemHandler{snapshots: snapshots}
}

// GetStatus is the polling fallback for the system.status stream
func (h *SystemHandler) GetStatus(c *fiber.Ctx) error {
	snap := h.snapshots.Latest()
	if snap == nil {
		c.Set(fiber.HeaderRetryAfter, "3")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: "system status not collected yet",
		})
	}
	return c.JSON(snap)
}
