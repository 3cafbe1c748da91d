package admin

import (
	"DaryoAI/controllers"
	"DaryoAI/middleware"
	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"
	"DaryoAI/pkg/usage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	Chat     *services.ChatService
	Sessions *session.Store
	Limiter  *usage.Limiter
	Catalog  *catalog.Catalog
	Ingester *services.Ingester
	Log      *zap.Logger
}

// Register registers the console routes (JWT protected).
func Register(g *gin.RouterGroup, h Handlers) {
	g.GET("/conversations", controllers.ListConversations(h.Sessions, h.Log))
	g.GET("/conversations/:conversation_id/chat", controllers.ConversationChat(h.Sessions, h.Log))
	g.POST("/conversations/:conversation_id/chat", middleware.RateLimit("msg"), controllers.PostConsoleMessage(h.Chat, h.Log))
	g.PUT("/clients/:client_id/muhbir", controllers.SetClientMuhbir(h.Sessions, h.Log))

	g.GET("/api-keys", controllers.ListAPIKeys(h.Limiter, h.Log))
	g.POST("/api-keys", controllers.CreateAPIKey(h.Limiter, h.Log))
	g.PATCH("/api-keys/:key_id", controllers.UpdateAPIKey(h.Limiter, h.Log))
	g.GET("/usage-limits", controllers.ListUsageLimits(h.Limiter, h.Log))
	g.PUT("/usage-limits", controllers.SetUsageLimit(h.Limiter, h.Log))

	g.POST("/corpus/upload", controllers.UploadCorpus(h.Ingester, h.Log))
	g.GET("/corpus/categories", controllers.ListCategories(h.Catalog, h.Log))
	g.GET("/corpus/articles", controllers.ListArticles(h.Catalog, h.Log))
	g.GET("/corpus/catalog", controllers.CatalogPreview(h.Catalog, h.Log))
}
