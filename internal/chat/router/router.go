package router

import (
	"context"

	"family_chat_service/internal/chat/app"
	"family_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes wires the realtime gateway and the REST surface.
// Swagger stays outside the token guard so the docs are reachable
// without a login.
func RegisterRoutes(r *fiber.App, ws *app.ChatWebsocketHandler, rest *app.ChatRestHandler) {
	r.Get("/swagger/*", swagger.HandlerDefault)

	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		ws.HandleConnection(context.Background(), c)
	}))

	r.Get("/chat/messages", rest.GetMessages)
	r.Post("/chat/upload", rest.Upload)
	r.Get("/chat/files/url", rest.PresignedURL)
}
