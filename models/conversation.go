package models

import (
	"fmt"
	"strings"
	"time"
)

// Conversation is the single thread a client has with the assistant.
// LastRefreshed anchors the history window; nil means it was never opened.
type Conversation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ClientID      uint       `gorm:"uniqueIndex;not null" json:"client_id"`
	Client        Client     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	LastRefreshed *time.Time `json:"last_refreshed"`
	Messages      []Message  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

const transcriptTimeLayout = "2006-01-02 15:04:05"

// FormatTranscript renders messages one per line as
// "<timestamp> - User|AI: <content>".
func FormatTranscript(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		who := "AI"
		if m.Sender == SenderClient {
			who = "User"
		}
		lines = append(lines, fmt.Sprintf("%s - %s: %s", m.Timestamp.Format(transcriptTimeLayout), who, m.Content))
	}
	return strings.Join(lines, "\n")
}
