package models

// UsageLimit holds the daily message quota of one client class. There is
// exactly one row for IsMuhbir=false and one for IsMuhbir=true.
type UsageLimit struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	IsMuhbir   bool `gorm:"uniqueIndex;not null" json:"is_muhbir"`
	DailyLimit int  `gorm:"not null" json:"daily_limit"`
}
