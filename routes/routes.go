package routes

import (
	"net/http"

	"DaryoAI/middleware"
	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/logger"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"
	"DaryoAI/pkg/usage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	adminRoutes "DaryoAI/routes/admin"
	authRoutes "DaryoAI/routes/auth"
	convRoutes "DaryoAI/routes/conversation"
	websocketRoutes "DaryoAI/routes/websocket"
)

// Deps is everything the handlers need.
type Deps struct {
	DB          *gorm.DB
	Chat        *services.ChatService
	Sessions    *session.Store
	Limiter     *usage.Limiter
	Catalog     *catalog.Catalog
	Ingester    *services.Ingester
	Log         *zap.Logger
	AdminPrefix string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	d.Log = logger.OrNop(d.Log)
	if d.AdminPrefix == "" {
		d.AdminPrefix = "/admin"
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "DaryoAI backend running"})
	})

	admin := r.Group(d.AdminPrefix)
	authRoutes.RegisterPublic(admin, d.DB)
	websocketRoutes.Register(admin, d.Chat, d.Sessions, d.Log)

	protected := admin.Group("/")
	protected.Use(middleware.AuthMiddleware())
	authRoutes.RegisterProtected(protected)
	adminRoutes.Register(protected, adminRoutes.Handlers{
		Chat:     d.Chat,
		Sessions: d.Sessions,
		Limiter:  d.Limiter,
		Catalog:  d.Catalog,
		Ingester: d.Ingester,
		Log:      d.Log,
	})

	api := r.Group("/")
	api.Use(middleware.APIKeyMiddleware(d.DB, d.AdminPrefix))
	convRoutes.Register(api, d.Chat, d.Sessions, d.Log)
}
