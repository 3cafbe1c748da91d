// Package session persists clients, their single conversation and its
// messages, and owns the two-hour history window.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"DaryoAI/models"
	"DaryoAI/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HistoryWindow is how long a conversation keeps its context after the
// window was last opened.
const HistoryWindow = 2 * time.Hour

var (
	ErrClientLimitReached = errors.New("maximum number of clients reached")
	ErrNotFound           = errors.New("not found")
)

type Store struct {
	db         *gorm.DB
	maxClients int // 0 = unlimited
	log        *zap.Logger
}

func NewStore(db *gorm.DB, maxClients int, log *zap.Logger) *Store {
	return &Store{db: db, maxClients: maxClients, log: logger.OrNop(log)}
}

// ClientInfo identifies a caller of the public API. Name and Email are only
// used when the client is created.
type ClientInfo struct {
	ExternalID string
	Name       string
	Email      string
}

// GetOrCreate returns the client and its conversation, creating either on
// first contact. A client created beyond the configured cap is removed
// again and ErrClientLimitReached is returned.
func (s *Store) GetOrCreate(ctx context.Context, info ClientInfo) (*models.Client, *models.Conversation, error) {
	externalID := strings.TrimSpace(info.ExternalID)
	if externalID == "" {
		return nil, nil, fmt.Errorf("external id is empty")
	}

	var (
		client models.Client
		conv   models.Conversation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(models.Client{ExternalID: externalID}).
			Attrs(models.Client{Name: info.Name, Email: info.Email}).
			FirstOrCreate(&client)
		if res.Error != nil {
			return fmt.Errorf("get or create client: %w", res.Error)
		}
		if res.RowsAffected == 1 && s.maxClients > 0 {
			var total int64
			if err := tx.Model(&models.Client{}).Count(&total).Error; err != nil {
				return fmt.Errorf("count clients: %w", err)
			}
			if total > int64(s.maxClients) {
				return ErrClientLimitReached
			}
		}
		if err := tx.Where(models.Conversation{ClientID: client.ID}).FirstOrCreate(&conv).Error; err != nil {
			return fmt.Errorf("get or create conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrClientLimitReached) {
			s.log.Info("client cap reached, new client rejected", zap.String("external_id", externalID), zap.Int("max_clients", s.maxClients))
		}
		return nil, nil, err
	}
	return &client, &conv, nil
}

// FindByExternalID loads a client and its conversation without creating
// anything. A missing client or conversation yields ErrNotFound; the client
// is returned when only the conversation is missing.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*models.Client, *models.Conversation, error) {
	var client models.Client
	err := s.db.WithContext(ctx).Where("external_id = ?", strings.TrimSpace(externalID)).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("client %w", ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load client: %w", err)
	}
	var conv models.Conversation
	err = s.db.WithContext(ctx).Where("client_id = ?", client.ID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &client, nil, fmt.Errorf("conversation %w", ErrNotFound)
	}
	if err != nil {
		return &client, nil, fmt.Errorf("load conversation: %w", err)
	}
	return &client, &conv, nil
}

// Conversation loads a conversation with its client.
func (s *Store) Conversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Preload("Client").First(&conv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &conv, nil
}

// Messages returns every message of a conversation, oldest first.
func (s *Store) Messages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) AppendClientMessage(ctx context.Context, conversationID uint, content string, now time.Time) (*models.Message, error) {
	return s.appendMessage(ctx, conversationID, models.SenderClient, content, now)
}

func (s *Store) AppendAIMessage(ctx context.Context, conversationID uint, content string, now time.Time) (*models.Message, error) {
	return s.appendMessage(ctx, conversationID, models.SenderAI, content, now)
}

func (s *Store) appendMessage(ctx context.Context, conversationID uint, sender, content string, now time.Time) (*models.Message, error) {
	m := &models.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Timestamp:      now.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("save %s message: %w", sender, err)
	}
	return m, nil
}

// RecentHistory returns the windowed history of conv. When the window is
// closed (never opened, or opened HistoryWindow or more ago) it is reopened
// at now, persisted, and only the latest client message is returned.
func (s *Store) RecentHistory(ctx context.Context, conv *models.Conversation, now time.Time) ([]models.Message, error) {
	now = now.UTC()
	if conv.LastRefreshed == nil || now.Sub(*conv.LastRefreshed) >= HistoryWindow {
		if err := s.db.WithContext(ctx).Model(conv).Update("last_refreshed", now).Error; err != nil {
			return nil, fmt.Errorf("reset history window: %w", err)
		}
		conv.LastRefreshed = &now

		var last models.Message
		err := s.db.WithContext(ctx).
			Where("conversation_id = ? AND sender = ?", conv.ID, models.SenderClient).
			Order("timestamp DESC").Order("id DESC").
			First(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load latest client message: %w", err)
		}
		return []models.Message{last}, nil
	}

	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND timestamp >= ?", conv.ID, conv.LastRefreshed.UTC()).
		Order("timestamp ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load history window: %w", err)
	}
	return msgs, nil
}

// ConversationSummary is one row of the admin conversation list.
type ConversationSummary struct {
	ID           uint      `json:"id"`
	ClientID     uint      `json:"client_id"`
	ExternalID   string    `json:"external_id"`
	ClientName   string    `json:"client_name"`
	IsMuhbir     bool      `json:"is_muhbir"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `json:"message_count"`
}

// ListConversations returns conversations newest first.
func (s *Store) ListConversations(ctx context.Context, offset, limit int) ([]ConversationSummary, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}
	var rows []ConversationSummary
	q := s.db.WithContext(ctx).Table("conversations").
		Select("conversations.id, conversations.client_id, clients.external_id, clients.name AS client_name, " +
			"clients.is_muhbir, conversations.created_at, " +
			"(SELECT COUNT(*) FROM messages WHERE messages.conversation_id = conversations.id) AS message_count").
		Joins("JOIN clients ON clients.id = conversations.client_id").
		Order("conversations.created_at DESC").Order("conversations.id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	return rows, total, nil
}

// SetMuhbir changes the client class.
func (s *Store) SetMuhbir(ctx context.Context, clientID uint, muhbir bool) (*models.Client, error) {
	var client models.Client
	if err := s.db.WithContext(ctx).First(&client, clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("client %w", ErrNotFound)
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&client).Update("is_muhbir", muhbir).Error; err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	client.IsMuhbir = muhbir
	return &client, nil
}
