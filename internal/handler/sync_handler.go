package handler

import (
	"go-pos-sync/internal/service"

	"github.com/gofiber/fiber/v2"
)

type SyncHandler struct {
	service service.SyncService
}

func NewSyncHandler(s service.SyncService) *SyncHandler {
	return &SyncHandler{service: s}
}

// Snapshot returns the full state a client mirrors
// GET /api/v1/sync/snapshot
func (h *SyncHandler) Snapshot(c *fiber.Ctx) error {
	snap, err := h.service.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(snap)
}
