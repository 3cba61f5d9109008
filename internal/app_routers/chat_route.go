package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/abhigit-saha/hack36-sub000/internal/configuration"
)

// ChatRouters sets up the HTTP fallback for conversations and messages
func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/chat/api")
	chatRoute.Use(container.Verifier.Middleware())
	{
		chatRoute.POST("/conversations/initialize", container.ChatHandler.InitializeConversation)
		chatRoute.POST("/conversations/:conversationId/messages", container.ChatHandler.SendMessage)
		chatRoute.GET("/conversations/:conversationId/messages", container.ChatHandler.GetMessages)
		chatRoute.POST("/conversations/:conversationId/read", container.ChatHandler.MarkRead)
		chatRoute.GET("/doctors/:doctorId/conversations", container.ChatHandler.ListDoctorConversations)
		chatRoute.GET("/users/:userId/conversations", container.ChatHandler.ListUserConversations)
	}
}
