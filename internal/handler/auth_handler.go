package handler

import (
	"go-pos-sync/internal/middleware"
	"go-pos-sync/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login exchanges a role password for a session token
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req service.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	response, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return c.JSON(response)
}

// LogoutAll signs every session out
// POST /api/v1/auth/logout-all
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	marker, err := h.authService.IssueGlobalLogout(c.UserContext(), middleware.Role(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "All sessions signed out", "logout_marker": marker})
}

// LogoutMarker is polled by clients to detect a global logout
// GET /api/v1/auth/logout-marker
func (h *AuthHandler) LogoutMarker(c *fiber.Ctx) error {
	marker, err := h.authService.LogoutMarker(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(marker)
}

// Session echoes the caller's session
// GET /api/v1/auth/session
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	return c.JSON(fiber.Map{
		"role":      claims.Role,
		"device_id": claims.DeviceID,
		"issued_at": claims.IssuedAtTime(),
	})
}
