package models

type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:255;not null" json:"name"`
}

// AiData is one article of the background corpus.
type AiData struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Heading    string     `gorm:"uniqueIndex;size:255;not null" json:"heading"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	Categories []Category `gorm:"many2many:ai_data_categories;" json:"categories"`
}

func (AiData) TableName() string { return "ai_data" }

// InCategory reports whether the article is linked to the category id.
// Categories must be loaded.
func (a AiData) InCategory(id uint) bool {
	for _, c := range a.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
