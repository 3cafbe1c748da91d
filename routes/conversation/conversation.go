package conversation

import (
	"DaryoAI/controllers"
	"DaryoAI/middleware"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Register registers the public API routes (API key protected).
func Register(g *gin.RouterGroup, chat *services.ChatService, sessions *session.Store, log *zap.Logger) {
	post := controllers.PostConversation(chat, log)
	get := controllers.GetConversation(sessions, log)
	// Basic rate limiting on chat POST endpoints
	g.POST("/conversation", middleware.RateLimit("error"), post)
	g.GET("/conversation", get)
	g.POST("/ai/conversation/", middleware.RateLimit("error"), post)
	g.GET("/ai/conversation/", get)
}
