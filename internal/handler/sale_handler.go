package handler

import (
	"go-pos-sync/internal/middleware"
	"go-pos-sync/internal/service"

	"github.com/gofiber/fiber/v2"
)

type SaleHandler struct {
	service service.SaleService
}

func NewSaleHandler(s service.SaleService) *SaleHandler {
	return &SaleHandler{service: s}
}

type adminNoteRequest struct {
	AdminNotes *string `json:"admin_notes"`
}

// CreateSale records a checkout
// POST /api/v1/sales
func (h *SaleHandler) CreateSale(c *fiber.Ctx) error {
	var req service.CreateSaleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	sale, err := h.service.CreateSale(c.UserContext(), &req, middleware.Role(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sale)
}

// ReserveDraft holds the next order number for a cart in progress
// POST /api/v1/sales/drafts
func (h *SaleHandler) ReserveDraft(c *fiber.Ctx) error {
	draft, err := h.service.ReserveDraft(c.UserContext(), middleware.Role(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *SaleHandler) GetHistory(c *fiber.Ctx) error {
	sales, err := h.service.History(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(sales)
}

func (h *SaleHandler) GetPending(c *fiber.Ctx) error {
	sales, err := h.service.PendingQueue(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(sales)
}

func (h *SaleHandler) GetSale(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	sale, err := h.service.GetSale(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(sale)
}

// CompleteSale marks a pending sale fulfilled; repeating it is harmless
// POST /api/v1/sales/:id/complete
func (h *SaleHandler) CompleteSale(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	sale, err := h.service.CompleteSale(c.UserContext(), id, middleware.Role(c))
	if err != nil {
		return err
	}
	return c.JSON(sale)
}

func (h *SaleHandler) SetAdminNote(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	var req adminNoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	sale, err := h.service.SetAdminNote(c.UserContext(), id, req.AdminNotes, middleware.Role(c))
	if err != nil {
		return err
	}
	return c.JSON(sale)
}

// ResetHistory deletes every sale and restarts order numbering
// DELETE /api/v1/sales
func (h *SaleHandler) ResetHistory(c *fiber.Ctx) error {
	removed, err := h.service.ResetHistory(c.UserContext(), middleware.Role(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Sale history cleared", "removed": removed})
}
