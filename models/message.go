package models

import "time"

const (
	SenderClient = "client"
	SenderAI     = "ai"
)

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index:idx_messages_conversation_ts,priority:1" json:"conversation"`
	Sender         string    `gorm:"size:6;not null" json:"sender"` // "client" or "ai"
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"not null;index:idx_messages_conversation_ts,priority:2" json:"timestamp"`
}
