package middleware

import (
	"go-pos-sync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// RequestContext carries the request id into the request's context logger.
// It must run after requestid.New().
func RequestContext(logg *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok && id != "" {
			ctx = logg.WithRequestID(ctx, id)
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"method": c.Method(),
			"path":   c.Path(),
		})
		c.SetUserContext(ctx)
		return c.Next()
	}
}
