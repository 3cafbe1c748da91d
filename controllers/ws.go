package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DaryoAI/middleware"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

const (
	wsReadWait  = 60 * time.Second
	wsTurnLimit = 90 * time.Second
)

type wsStartPayload struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	ConversationID uint   `json:"conversation_id"`
}

// ConsoleWS streams an operator's console turn.
// Client protocol (JSON messages):
//
//	-> {type: "start", message: string, conversation_id: number}
//	<- {type: "accepted", conversation_id: number}
//	<- {type: "delta", data: string}
//	<- {type: "done", ok: true, stopped?: true}
//	<- {type: "error", error: string}
//	-> {type: "stop"} at any time cancels the turn
func ConsoleWS(chat *services.ChatService, sessions *session.Store, log *zap.Logger) gin.HandlerFunc {
	msgs := chat.Messages()
	return func(c *gin.Context) {
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "missing token query"})
			return
		}
		claims, err := middleware.ParseAdminToken(tokenStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("ws upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		conn.SetReadLimit(1 << 20) // 1MB
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadWait))
		})

		// one start message per connection
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug("ws read failed", zap.Error(err))
			return
		}
		var start wsStartPayload
		if err := json.Unmarshal(raw, &start); err != nil || strings.ToLower(start.Type) != "start" || start.ConversationID == 0 {
			_ = conn.WriteJSON(gin.H{"type": "error", "error": "invalid start payload"})
			return
		}
		if strings.TrimSpace(start.Message) == "" {
			_ = conn.WriteJSON(gin.H{"type": "error", "error": msgs.EmptyConsoleInput})
			return
		}

		parent, cancelTimeout := context.WithTimeout(c.Request.Context(), wsTurnLimit)
		ctx, cancel := context.WithCancel(parent)
		defer func() {
			cancel()
			cancelTimeout()
		}()

		if _, err := sessions.Conversation(ctx, start.ConversationID); err != nil {
			text := "failed to load conversation"
			if errors.Is(err, session.ErrNotFound) {
				text = "conversation not found"
			}
			_ = conn.WriteJSON(gin.H{"type": "error", "error": text})
			return
		}

		release := middleware.AcquireUserSlot("admin:" + strconv.FormatUint(uint64(claims.AdminID), 10))
		defer release()

		_ = conn.WriteJSON(gin.H{"type": "accepted", "conversation_id": start.ConversationID})

		stopCh := make(chan struct{})
		go func() {
			for {
				if err := conn.SetReadDeadline(time.Now().Add(wsReadWait)); err != nil {
					return
				}
				mt, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
					continue
				}
				var obj struct {
					Type string `json:"type"`
				}
				_ = json.Unmarshal(msg, &obj)
				if strings.ToLower(strings.TrimSpace(obj.Type)) == "stop" {
					close(stopCh)
					cancel()
					return
				}
			}
		}()

		isStopped := func() bool {
			select {
			case <-stopCh:
				return true
			default:
				return false
			}
		}

		_, err = chat.ConsoleReply(ctx, start.ConversationID, start.Message, func(chunk string) {
			if isStopped() {
				return
			}
			_ = conn.WriteJSON(gin.H{"type": "delta", "data": chunk})
		})
		switch {
		case isStopped():
			_ = conn.WriteJSON(gin.H{"type": "done", "ok": true, "stopped": true})
		case err != nil:
			log.Error("ws console turn failed", zap.Uint("conversation", start.ConversationID), zap.Error(err))
			_ = conn.WriteJSON(gin.H{"type": "error", "error": "failed to answer"})
		default:
			_ = conn.WriteJSON(gin.H{"type": "done", "ok": true})
		}
	}
}
