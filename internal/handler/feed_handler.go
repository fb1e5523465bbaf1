package handler

import (
	"time"

	"go-pos-sync/internal/middleware"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/jwt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// UpgradeFeed rejects plain HTTP requests to the change feed.
func UpgradeFeed(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.SendStatus(fiber.StatusUpgradeRequired)
}

// Feed registers the connection with the hub until the client goes away. It runs
// behind RequireAuth; the session issue time lets the hub drop the connection on
// a global logout.
func Feed(hub *ws.Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		var issuedAt time.Time
		if claims, ok := c.Locals(middleware.LocalsClaims).(*jwt.Claims); ok {
			issuedAt = claims.IssuedAtTime()
		}
		if !hub.Add(c, issuedAt) {
			return
		}
		defer hub.Remove(c)

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	})
}
