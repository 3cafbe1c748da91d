package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey authorizes calls to the public API and carries a token budget.
// TokensUsed never exceeding TokenLimit is enforced when tokens are consumed,
// not when the row is written.
type APIKey struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Key        string    `gorm:"uniqueIndex;size:255;not null" json:"key"`
	Name       string    `gorm:"size:120" json:"name"`
	IsActive   bool      `gorm:"not null" json:"is_active"`
	TokenLimit int64     `gorm:"not null" json:"token_limit"`
	TokensUsed int64     `gorm:"not null" json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.Key == "" {
		k.Key = uuid.NewString()
	}
	return nil
}

func (k APIKey) RemainingTokens() int64 {
	return k.TokenLimit - k.TokensUsed
}

// CanUseTokens reports whether n more tokens fit in the budget. It does not
// reserve anything.
func (k APIKey) CanUseTokens(n int64) bool {
	return n >= 0 && n <= k.RemainingTokens()
}
