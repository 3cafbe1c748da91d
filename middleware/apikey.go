package middleware

import (
	"errors"
	"net/http"
	"strings"

	"DaryoAI/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	APIKeyHeader     = "X-API-KEY"
	ContextAPIKeyKey = "current_api_key"
)

// APIKeyMiddleware requires an active key in the X-API-KEY header. Paths
// starting with one of exempt are passed through untouched.
func APIKeyMiddleware(db *gorm.DB, exempt ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, prefix := range exempt {
			if prefix != "" && strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		raw := strings.TrimSpace(c.GetHeader(APIKeyHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		var key models.APIKey
		err := db.WithContext(c.Request.Context()).Where(&models.APIKey{Key: raw}).Where("is_active = ?", true).First(&key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or inactive API key"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.Set(ContextAPIKeyKey, &key)
		c.Next()
	}
}

// CurrentAPIKey returns the key stored by APIKeyMiddleware, or nil.
func CurrentAPIKey(c *gin.Context) *models.APIKey {
	v, ok := c.Get(ContextAPIKeyKey)
	if !ok {
		return nil
	}
	key, _ := v.(*models.APIKey)
	return key
}
