package handlers

import (
	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

// TargetReloader swaps the roster from its source file.
type TargetReloader interface {
	Reload(path string) error
}

type TargetHandler struct {
	targets  ports.TargetLookup
	reloader TargetReloader
	path     string
	logger   *logger.Logger
}

func NewTargetHandler(targets ports.TargetLookup, reloader TargetReloader, path string, logger *logger.Logger) *TargetHandler {
	return &TargetHandler{targets: targets, reloader: reloader, path: path, logger: logger}
}

func (h *TargetHandler) GetTargets(c *fiber.Ctx) error {
	return c.JSON(dto.TargetsToResponse(h.targets.List()))
}

func (h *TargetHandler) ReloadTargets(c *fiber.Ctx) error {
	h.logger.Infow("targets_reload_request", "path", h.path)
	if err := h.reloader.Reload(h.path); err != nil {
		h.logger.Errorw("targets_reload_failed", "path", h.path, "error", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	targets := h.targets.List()
	h.logger.Infow("targets_reload_success", "count", len(targets))
	return c.JSON(dto.TargetsToResponse(targets))
}
