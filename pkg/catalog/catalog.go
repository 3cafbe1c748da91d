package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"DaryoAI/models"
	"DaryoAI/pkg/cache"
	"DaryoAI/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	categoriesKey = "catalog:categories"
	headingsKey   = "catalog:headings:"
)

// Catalog serves the categorized article corpus. Formatted listings are
// cached in store; lookups by id always hit the database.
type Catalog struct {
	db    *gorm.DB
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

// New builds a catalog. A nil store disables listing cache.
func New(db *gorm.DB, store cache.Store, ttl time.Duration, log *zap.Logger) *Catalog {
	return &Catalog{db: db, store: store, ttl: ttl, log: logger.OrNop(log)}
}

// Categories returns all categories ascending by id.
func (c *Catalog) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// ArticlesInCategory returns the articles linked to categoryID ascending by id.
func (c *Catalog) ArticlesInCategory(ctx context.Context, categoryID uint) ([]models.AiData, error) {
	var articles []models.AiData
	err := c.db.WithContext(ctx).
		Joins("JOIN ai_data_categories ON ai_data_categories.ai_data_id = ai_data.id").
		Where("ai_data_categories.category_id = ?", categoryID).
		Order("ai_data.id ASC").
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("list articles of category %d: %w", categoryID, err)
	}
	return articles, nil
}

// Articles returns a page of articles with their categories, ascending by id.
func (c *Catalog) Articles(ctx context.Context, offset, limit int) ([]models.AiData, int64, error) {
	var total int64
	if err := c.db.WithContext(ctx).Model(&models.AiData{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}
	var articles []models.AiData
	q := c.db.WithContext(ctx).Preload("Categories").Order("id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&articles).Error; err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	return articles, total, nil
}

// ListCategories returns the formatted category catalog, or "" when empty.
func (c *Catalog) ListCategories(ctx context.Context) (string, error) {
	if v, ok := c.cached(ctx, categoriesKey); ok {
		return v, nil
	}
	cats, err := c.Categories(ctx)
	if err != nil {
		return "", err
	}
	out := FormatCategories(cats)
	c.remember(ctx, categoriesKey, out)
	return out, nil
}

// ListHeadingsByCategory returns the formatted heading catalog of one
// category, or "" when it has no articles.
func (c *Catalog) ListHeadingsByCategory(ctx context.Context, categoryID uint) (string, error) {
	key := headingsKey + strconv.FormatUint(uint64(categoryID), 10)
	if v, ok := c.cached(ctx, key); ok {
		return v, nil
	}
	articles, err := c.ArticlesInCategory(ctx, categoryID)
	if err != nil {
		return "", err
	}
	out := FormatHeadings(articles)
	c.remember(ctx, key, out)
	return out, nil
}

// CategoryByID resolves raw id text. Malformed ids, unknown ids and
// database failures all report false.
func (c *Catalog) CategoryByID(ctx context.Context, raw string) (*models.Category, bool) {
	id, ok := ParseID(raw)
	if !ok {
		return nil, false
	}
	var cat models.Category
	if err := c.db.WithContext(ctx).First(&cat, id).Error; err != nil {
		c.logLookupError("category", id, err)
		return nil, false
	}
	return &cat, true
}

// ArticleByID resolves raw id text to an article with its categories loaded.
func (c *Catalog) ArticleByID(ctx context.Context, raw string) (*models.AiData, bool) {
	id, ok := ParseID(raw)
	if !ok {
		return nil, false
	}
	var a models.AiData
	if err := c.db.WithContext(ctx).Preload("Categories").First(&a, id).Error; err != nil {
		c.logLookupError("article", id, err)
		return nil, false
	}
	return &a, true
}

// Invalidate drops every cached listing. Called after corpus uploads.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.store == nil {
		return
	}
	keys := []string{categoriesKey}
	var ids []uint
	if err := c.db.WithContext(ctx).Model(&models.Category{}).Pluck("id", &ids).Error; err != nil {
		c.log.Warn("catalog invalidate: list category ids", zap.Error(err))
	}
	for _, id := range ids {
		keys = append(keys, headingsKey+strconv.FormatUint(uint64(id), 10))
	}
	c.store.Delete(ctx, keys...)
}

func (c *Catalog) cached(ctx context.Context, key string) (string, bool) {
	if c.store == nil {
		return "", false
	}
	return c.store.Get(ctx, key)
}

func (c *Catalog) remember(ctx context.Context, key, value string) {
	if c.store == nil {
		return
	}
	c.store.Set(ctx, key, value, c.ttl)
}

func (c *Catalog) logLookupError(kind string, id uint, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	c.log.Warn("catalog lookup failed", zap.String("kind", kind), zap.Uint("id", id), zap.Error(err))
}
