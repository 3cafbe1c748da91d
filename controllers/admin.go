package controllers

import (
	"net/http"
	"strings"
	"time"

	"DaryoAI/middleware"
	"DaryoAI/models"
	tokenstore "DaryoAI/pkg/token"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminLogin exchanges console credentials for a bearer token.
func AdminLogin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		username := strings.TrimSpace(body.Username)
		if username == "" || body.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Username and password are required"})
			return
		}

		var admin models.Admin
		if err := db.WithContext(c.Request.Context()).Where("username = ?", username).First(&admin).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid credentials"})
			return
		}
		if !admin.CheckPassword(body.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid credentials"})
			return
		}

		tokenStr, claims, err := middleware.IssueAdminToken(admin.ID, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to create token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token": tokenStr,
			"username":     admin.Username,
			"expires_at":   claims.ExpiresAt,
		})
	}
}

// AdminLogout revokes the token the request was made with.
func AdminLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		jti, _ := c.Get(middleware.ContextJTIKey)
		expRaw, _ := c.Get(middleware.ContextTokenExpKey)
		exp, _ := expRaw.(time.Time)
		if s, ok := jti.(string); ok && s != "" {
			tokenstore.RevokeToken(s, exp)
		}
		c.JSON(http.StatusOK, gin.H{"msg": "logged out"})
	}
}
