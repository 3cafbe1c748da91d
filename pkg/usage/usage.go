// Package usage enforces the two quotas: daily client messages per client
// class and the token budget of each API key.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DaryoAI/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUsageLimitMissing  = errors.New("usage limit row missing for client class")
	ErrTokenLimitExceeded = errors.New("token limit exceeded")
	ErrInvalidTokens      = errors.New("token amount must not be negative")
	ErrKeyNotFound        = errors.New("api key not found")
	ErrInvalidLimit       = errors.New("limit must not be negative")
)

type Limiter struct {
	db  *gorm.DB
	loc *time.Location
}

// NewLimiter counts days in loc; nil means UTC.
func NewLimiter(db *gorm.DB, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.UTC
	}
	return &Limiter{db: db, loc: loc}
}

// DayBounds returns [midnight, next midnight) around now in the limiter's
// location.
func (l *Limiter) DayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(l.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
	return start, start.AddDate(0, 0, 1)
}

// DailyUsage counts client-authored messages of conv sent today.
func (l *Limiter) DailyUsage(ctx context.Context, conversationID uint, now time.Time) (int64, error) {
	start, end := l.DayBounds(now)
	var n int64
	err := l.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender = ? AND timestamp >= ? AND timestamp < ?",
			conversationID, models.SenderClient, start.UTC(), end.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count daily usage: %w", err)
	}
	return n, nil
}

// DailyLimit returns the quota of a client class.
func (l *Limiter) DailyLimit(ctx context.Context, muhbir bool) (int, error) {
	var ul models.UsageLimit
	err := l.db.WithContext(ctx).Where("is_muhbir = ?", muhbir).First(&ul).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w (is_muhbir=%v)", ErrUsageLimitMissing, muhbir)
	}
	if err != nil {
		return 0, fmt.Errorf("load usage limit: %w", err)
	}
	return ul.DailyLimit, nil
}

// CanSendMessage reports whether the client may send one more message today.
func (l *Limiter) CanSendMessage(ctx context.Context, client *models.Client, conversationID uint, now time.Time) (bool, error) {
	limit, err := l.DailyLimit(ctx, client.IsMuhbir)
	if err != nil {
		return false, err
	}
	used, err := l.DailyUsage(ctx, conversationID, now)
	if err != nil {
		return false, err
	}
	return used < int64(limit), nil
}

// TimeUntilReset is the time left until the next midnight.
func (l *Limiter) TimeUntilReset(now time.Time) time.Duration {
	_, end := l.DayBounds(now)
	return end.Sub(now)
}

// SetDailyLimit updates the quota of a client class, creating the row when
// it is missing.
func (l *Limiter) SetDailyLimit(ctx context.Context, muhbir bool, limit int) error {
	if limit < 0 {
		return ErrInvalidLimit
	}
	ul := models.UsageLimit{IsMuhbir: muhbir}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("is_muhbir = ?", muhbir).Attrs(models.UsageLimit{DailyLimit: limit}).FirstOrCreate(&ul).Error; err != nil {
			return err
		}
		return tx.Model(&ul).Update("daily_limit", limit).Error
	})
}

// UseTokens adds n to the key's counter under a row lock. When the budget
// cannot cover n the row is left untouched and ErrTokenLimitExceeded is
// returned.
func (l *Limiter) UseTokens(ctx context.Context, keyID uint, n int64) (models.APIKey, error) {
	return l.consume(ctx, keyID, n, false)
}

// ChargeTokens records n tokens that were already spent on model calls.
// When n does not fit, the counter is raised to the limit, the updated row
// is returned and the error is ErrTokenLimitExceeded.
func (l *Limiter) ChargeTokens(ctx context.Context, keyID uint, n int64) (models.APIKey, error) {
	return l.consume(ctx, keyID, n, true)
}

func (l *Limiter) consume(ctx context.Context, keyID uint, n int64, capped bool) (models.APIKey, error) {
	if n < 0 {
		return models.APIKey{}, ErrInvalidTokens
	}
	var (
		key      models.APIKey
		exceeded bool
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&key, keyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		switch {
		case key.CanUseTokens(n):
			key.TokensUsed += n
		case !capped:
			return ErrTokenLimitExceeded
		default:
			exceeded = true
			if key.TokensUsed >= key.TokenLimit {
				return nil
			}
			key.TokensUsed = key.TokenLimit
		}
		return tx.Model(&key).Update("tokens_used", key.TokensUsed).Error
	})
	if err != nil {
		return key, err
	}
	if exceeded {
		return key, ErrTokenLimitExceeded
	}
	return key, nil
}

// Limits returns both usage limit rows, regular class first.
func (l *Limiter) Limits(ctx context.Context) ([]models.UsageLimit, error) {
	var rows []models.UsageLimit
	if err := l.db.WithContext(ctx).Order("is_muhbir ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list usage limits: %w", err)
	}
	return rows, nil
}

// CreateKey issues a new active API key with a fresh uuid.
func (l *Limiter) CreateKey(ctx context.Context, name string, tokenLimit int64) (models.APIKey, error) {
	if tokenLimit < 0 {
		return models.APIKey{}, ErrInvalidLimit
	}
	key := models.APIKey{Name: name, IsActive: true, TokenLimit: tokenLimit}
	if err := l.db.WithContext(ctx).Create(&key).Error; err != nil {
		return models.APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return key, nil
}

func (l *Limiter) ListKeys(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := l.db.WithContext(ctx).Order("id ASC").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// KeyUpdate holds the optional changes UpdateKey applies.
type KeyUpdate struct {
	IsActive   *bool
	TokenLimit *int64
	ResetUsage bool
}

// UpdateKey applies u under the same row lock UseTokens takes.
func (l *Limiter) UpdateKey(ctx context.Context, keyID uint, u KeyUpdate) (models.APIKey, error) {
	if u.TokenLimit != nil && *u.TokenLimit < 0 {
		return models.APIKey{}, ErrInvalidLimit
	}
	var key models.APIKey
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&key, keyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		changes := map[string]interface{}{}
		if u.IsActive != nil {
			key.IsActive = *u.IsActive
			changes["is_active"] = key.IsActive
		}
		if u.TokenLimit != nil {
			key.TokenLimit = *u.TokenLimit
			changes["token_limit"] = key.TokenLimit
		}
		if u.ResetUsage {
			key.TokensUsed = 0
			changes["tokens_used"] = int64(0)
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.Model(&models.APIKey{ID: key.ID}).Updates(changes).Error
	})
	return key, err
}
