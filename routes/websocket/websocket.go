package websocket

import (
	"DaryoAI/controllers"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Register mounts the console socket; it authenticates with ?token=.
func Register(g *gin.RouterGroup, chat *services.ChatService, sessions *session.Store, log *zap.Logger) {
	g.GET("/ws/console", controllers.ConsoleWS(chat, sessions, log))
}
