package controllers

import (
	"errors"
	"net/http"

	"DaryoAI/pkg/usage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ListAPIKeys(limiter *usage.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := limiter.ListKeys(c.Request.Context())
		if err != nil {
			log.Error("list api keys", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		items := make([]gin.H, 0, len(keys))
		for _, k := range keys {
			items = append(items, gin.H{
				"id":               k.ID,
				"key":              k.Key,
				"name":             k.Name,
				"is_active":        k.IsActive,
				"token_limit":      k.TokenLimit,
				"tokens_used":      k.TokensUsed,
				"remaining_tokens": k.RemainingTokens(),
				"created_at":       k.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, items)
	}
}

func CreateAPIKey(limiter *usage.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Name       string `json:"name"`
			TokenLimit int64  `json:"token_limit"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		key, err := limiter.CreateKey(c.Request.Context(), body.Name, body.TokenLimit)
		if errors.Is(err, usage.ErrInvalidLimit) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
			return
		}
		if err != nil {
			log.Error("create api key", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to create key"})
			return
		}
		c.JSON(http.StatusCreated, key)
	}
}

// UpdateAPIKey toggles a key, changes its budget or resets its counter.
func UpdateAPIKey(limiter *usage.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "key_id")
		if !ok {
			return
		}
		var body struct {
			IsActive   *bool  `json:"is_active"`
			TokenLimit *int64 `json:"token_limit"`
			ResetUsage bool   `json:"reset_usage"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		key, err := limiter.UpdateKey(c.Request.Context(), id, usage.KeyUpdate{
			IsActive:   body.IsActive,
			TokenLimit: body.TokenLimit,
			ResetUsage: body.ResetUsage,
		})
		switch {
		case errors.Is(err, usage.ErrKeyNotFound):
			c.JSON(http.StatusNotFound, gin.H{"msg": "api key not found"})
		case errors.Is(err, usage.ErrInvalidLimit):
			c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		case err != nil:
			log.Error("update api key", zap.Uint("key", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
		default:
			c.JSON(http.StatusOK, key)
		}
	}
}

func ListUsageLimits(limiter *usage.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := limiter.Limits(c.Request.Context())
		if err != nil {
			log.Error("list usage limits", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func SetUsageLimit(limiter *usage.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			IsMuhbir   bool `json:"is_muhbir"`
			DailyLimit *int `json:"daily_limit"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.DailyLimit == nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "daily_limit is required"})
			return
		}
		err := limiter.SetDailyLimit(c.Request.Context(), body.IsMuhbir, *body.DailyLimit)
		if errors.Is(err, usage.ErrInvalidLimit) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
			return
		}
		if err != nil {
			log.Error("set usage limit", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"is_muhbir": body.IsMuhbir, "daily_limit": *body.DailyLimit})
	}
}
