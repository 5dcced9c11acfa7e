package router

import (
	"messenger_sync/internal/devserver/app"
	"messenger_sync/pkg/middlewares"
	t_token "messenger_sync/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册 /api/v1 路由
func RegisterRoutes(r *fiber.App, issuer *t_token.Issuer, h *app.Handler, events *app.EventHandler, auth *app.AuthHandler) {
	api := r.Group("/api/v1")
	jwt := middlewares.JWTMiddleware(issuer)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	api.Post("/auth/dev-token", auth.DevToken)

	api.Get("/rooms", jwt, h.ListRooms)
	api.Post("/rooms", jwt, h.CreateRoom)
	api.Post("/rooms/:roomId/join", jwt, h.JoinRoom)

	api.Post("/messages/send", jwt, h.Send)
	api.Get("/messages/history/:roomId", jwt, h.History)

	api.Get("/events/stream", jwt, events.Stream)
	api.Get("/events/poll", jwt, events.Poll)
	api.Get("/events/ws", jwt, app.UpgradeRequired, websocket.New(events.Websocket))
}
