package middleware

import (
	"strings"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/jwt"
	"go-pos-sync/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalsClaims = "claims"
	LocalsRole   = "role"
)

// RequireAuth validates the bearer token and rejects sessions issued before the
// last global logout.
func RequireAuth(auth service.AuthService, logg *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperrors.New(apperrors.CodeUnauthorized, "missing authorization token")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return apperrors.New(apperrors.CodeUnauthorized, "invalid authorization format, use: Bearer <token>")
		}

		claims, err := auth.Authenticate(c.UserContext(), parts[1])
		if err != nil {
			return err
		}

		c.Locals(LocalsClaims, claims)
		c.Locals(LocalsRole, claims.Role)
		if logg != nil {
			ctx := logg.WithRole(c.UserContext(), claims.Role)
			if claims.DeviceID != "" {
				ctx = logg.WithField(ctx, "device_id", claims.DeviceID)
			}
			c.SetUserContext(ctx)
		}
		return c.Next()
	}
}

// RequireRole allows the request through when the session holds one of roles.
func RequireRole(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(LocalsRole).(string)
		if !ok {
			return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
		}
		for _, r := range roles {
			if string(r) == role {
				return c.Next()
			}
		}
		return apperrors.Newf(apperrors.CodeForbidden, "requires role %s", joinRoles(roles))
	}
}

// Role returns the authenticated role, or "system" outside an authenticated route.
func Role(c *fiber.Ctx) string {
	if role, ok := c.Locals(LocalsRole).(string); ok && role != "" {
		return role
	}
	return "system"
}

// Claims returns the session claims set by RequireAuth.
func Claims(c *fiber.Ctx) *jwt.Claims {
	claims, _ := c.Locals(LocalsClaims).(*jwt.Claims)
	return claims
}

func joinRoles(roles []model.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}
