package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"
	utils "DaryoAI/pkg/utills"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxPageSize = 100

func pageParams(c *gin.Context) (int, int) {
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return utils.ClampPage(offset, limit, maxPageSize)
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// ListConversations pages through every client conversation, newest first.
func ListConversations(sessions *session.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, limit := pageParams(c)
		rows, total, err := sessions.ListConversations(c.Request.Context(), offset, limit)
		if err != nil {
			log.Error("list conversations", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows, "total": total, "offset": offset, "limit": limit})
	}
}

// ConversationChat is the console chat view: the conversation, its client
// and every message in order.
func ConversationChat(sessions *session.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "conversation_id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		conv, err := sessions.Conversation(ctx, id)
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"msg": "conversation not found"})
			return
		}
		if err != nil {
			log.Error("load conversation", zap.Uint("conversation", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		msgs, err := sessions.Messages(ctx, conv.ID)
		if err != nil {
			log.Error("load messages", zap.Uint("conversation", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"conversation_id": conv.ID,
			"created_at":      conv.CreatedAt,
			"last_refreshed":  conv.LastRefreshed,
			"client":          conv.Client,
			"messages":        messageList(msgs),
		})
	}
}

// PostConsoleMessage lets an operator talk to the assistant inside a
// conversation. Upstream failures still answer 201 with the apology text.
func PostConsoleMessage(chat *services.ChatService, log *zap.Logger) gin.HandlerFunc {
	msgs := chat.Messages()
	return func(c *gin.Context) {
		id, ok := idParam(c, "conversation_id")
		if !ok {
			return
		}
		var body struct {
			Message string `json:"message"`
		}
		_ = c.ShouldBindJSON(&body)

		reply, err := chat.ConsoleReply(c.Request.Context(), id, body.Message, nil)
		switch {
		case errors.Is(err, services.ErrMessageRequired):
			c.JSON(http.StatusBadRequest, gin.H{"msg": msgs.EmptyConsoleInput})
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"msg": "conversation not found"})
		case err != nil:
			log.Error("console reply", zap.Uint("conversation", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to answer"})
		default:
			c.JSON(http.StatusCreated, gin.H{
				"conversation_id": reply.ConversationID,
				"response":        reply.Text,
				"input_tokens":    reply.Usage.InputTokens,
				"output_tokens":   reply.Usage.OutputTokens,
			})
		}
	}
}

// SetClientMuhbir switches a client between the regular and muhbir class.
func SetClientMuhbir(sessions *session.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "client_id")
		if !ok {
			return
		}
		var body struct {
			IsMuhbir *bool `json:"is_muhbir"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.IsMuhbir == nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "is_muhbir is required"})
			return
		}
		client, err := sessions.SetMuhbir(c.Request.Context(), id, *body.IsMuhbir)
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"msg": "client not found"})
			return
		}
		if err != nil {
			log.Error("set muhbir", zap.Uint("client", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, client)
	}
}
