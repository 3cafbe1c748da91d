package models

import "time"

// Client is an end user of the public API, identified by the id the caller's
// own system uses for it.
type Client struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"uniqueIndex;size:255;not null" json:"external_id"`
	Name       string    `gorm:"size:255" json:"name"`
	Email      string    `gorm:"size:254" json:"email"`
	IsMuhbir   bool      `gorm:"not null" json:"is_muhbir"`
	CreatedAt  time.Time `json:"created_at"`
}
