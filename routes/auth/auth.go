package auth

import (
	"DaryoAI/controllers"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterPublic registers the console login route.
func RegisterPublic(g *gin.RouterGroup, db *gorm.DB) {
	g.POST("/login", controllers.AdminLogin(db))
}

// RegisterProtected registers protected auth routes (e.g. logout)
func RegisterProtected(g *gin.RouterGroup) {
	g.POST("/logout", controllers.AdminLogout())
}
