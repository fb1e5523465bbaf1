package handler

import (
	"time"

	"go-pos-sync/internal/service"

	"github.com/gofiber/fiber/v2"
)

type DashboardHandler struct {
	service service.DashboardService
	now     func() time.Time
}

func NewDashboardHandler(s service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: s, now: time.Now}
}

// GetDashboardStats returns overview statistics
// Query params: range = today|7d|1m|3m|6m|12m (default today)
func (h *DashboardHandler) GetDashboardStats(c *fiber.Ctx) error {
	now := h.now()
	var since time.Time
	switch c.Query("range", "today") {
	case "7d":
		since = now.AddDate(0, 0, -7)
	case "1m":
		since = now.AddDate(0, -1, 0)
	case "3m":
		since = now.AddDate(0, -3, 0)
	case "6m":
		since = now.AddDate(0, -6, 0)
	case "12m":
		since = now.AddDate(0, -12, 0)
	default:
		y, m, d := now.Date()
		since = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}

	stats, err := h.service.GetDashboardStats(c.UserContext(), since)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
