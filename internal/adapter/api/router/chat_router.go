package router

import (
	"github.com/labstack/echo/v4"

	"campusmarket/internal/adapter/api/handler"
	"campusmarket/internal/adapter/api/middleware"
)

// SetupChatRouter sets up all chat-related routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate) // All chat endpoints require authentication

	chatGroup.POST("", chatHandler.StartChat) // POST /v1/chats - Find or create chat for a product
	chatGroup.GET("", chatHandler.ListChats)  // GET /v1/chats - Get user's chats

	// Registered before /:id so "unread-count" is not captured as an id
	chatGroup.GET("/unread-count", chatHandler.UnreadCount) // GET /v1/chats/unread-count

	chatGroup.GET("/:id", chatHandler.GetChat)               // GET /v1/chats/:id - Get chat with messages, marks read
	chatGroup.POST("/:id/messages", chatHandler.SendMessage) // POST /v1/chats/:id/messages - Send message
}
