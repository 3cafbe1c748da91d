package controllers

import (
	"errors"
	"net/http"
	"strings"

	"DaryoAI/middleware"
	"DaryoAI/models"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"
	"DaryoAI/pkg/usage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type conversationBody struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Message    string `json:"message"`
}

// PostConversation runs one chat turn for the client named by external_id.
func PostConversation(chat *services.ChatService, log *zap.Logger) gin.HandlerFunc {
	msgs := chat.Messages()
	return func(c *gin.Context) {
		var body conversationBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		sender := strings.TrimSpace(body.ExternalID)
		if sender != "" && strings.TrimSpace(body.Message) != "" && !middleware.DuplicateGuard(sender, body.Message) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "duplicate message"})
			return
		}

		reply, err := chat.Handle(c.Request.Context(), services.Request{
			ExternalID: body.ExternalID,
			Name:       body.Name,
			Email:      body.Email,
			Message:    body.Message,
			APIKey:     middleware.CurrentAPIKey(c),
		})

		var quota *services.QuotaError
		var upstream *services.UpstreamError
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"response": reply.Text})
		case errors.Is(err, services.ErrMessageRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgs.MessageRequired})
		case errors.Is(err, services.ErrExternalIDRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgs.ExternalIDRequired})
		case errors.Is(err, session.ErrClientLimitReached):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgs.ClientLimit})
		case errors.As(err, &quota):
			text := msgs.TokenLimit
			if quota.Kind == services.QuotaDaily {
				text = msgs.DailyLimitText(quota.ResetIn)
			}
			c.JSON(http.StatusForbidden, gin.H{"error": text})
		case errors.As(err, &upstream):
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgs.Apology})
		default:
			if errors.Is(err, usage.ErrUsageLimitMissing) {
				log.Error("usage limits are not configured", zap.Error(err))
			} else {
				log.Error("chat turn failed", zap.String("external_id", body.ExternalID), zap.Error(err))
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
	}
}

// GetConversation returns the full transcript of a client.
func GetConversation(sessions *session.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := strings.TrimSpace(c.Query("external_id"))
		if externalID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Client external_id is required."})
			return
		}

		ctx := c.Request.Context()
		client, conv, err := sessions.FindByExternalID(ctx, externalID)
		switch {
		case client == nil && errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found."})
			return
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found for this client."})
			return
		case err != nil:
			log.Error("load conversation", zap.String("external_id", externalID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		messages, err := sessions.Messages(ctx, conv.ID)
		if err != nil {
			log.Error("load messages", zap.Uint("conversation", conv.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"client": gin.H{
				"id":          client.ID,
				"external_id": client.ExternalID,
				"name":        client.Name,
				"email":       client.Email,
				"created_at":  client.CreatedAt,
			},
			"conversation_id": conv.ID,
			"created_at":      conv.CreatedAt,
			"messages":        messageList(messages),
		})
	}
}

func messageList(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
