// Package selector picks background content for a user message by asking
// the model to choose from the category catalog and then from the headings
// of the chosen category.
package selector

import (
	"context"

	"DaryoAI/models"
	"DaryoAI/pkg/llm"
	"DaryoAI/pkg/logger"
	"DaryoAI/pkg/tokens"

	"go.uber.org/zap"
)

// Selection is the outcome of one resolution. Content is empty when no
// category or no article matched.
type Selection struct {
	Category *models.Category
	Article  *models.AiData
	Content  string
	Usage    tokens.Usage
}

// Found reports whether an article was selected.
func (s Selection) Found() bool { return s.Article != nil }

type ContextResolver interface {
	Resolve(ctx context.Context, userMessage string) (Selection, error)
}

// Catalog is the slice of the corpus catalog the selector needs.
type Catalog interface {
	ListCategories(ctx context.Context) (string, error)
	ListHeadingsByCategory(ctx context.Context, categoryID uint) (string, error)
	CategoryByID(ctx context.Context, raw string) (*models.Category, bool)
	ArticleByID(ctx context.Context, raw string) (*models.AiData, bool)
}

// PromptSource renders the system prompt of a selection stage.
type PromptSource interface {
	SelectionPrompt(catalog string) string
}

type ModelSelector struct {
	catalog   Catalog
	completer llm.Completer
	prompts   PromptSource
	log       *zap.Logger
}

func NewModelSelector(catalog Catalog, completer llm.Completer, prompts PromptSource, log *zap.Logger) *ModelSelector {
	return &ModelSelector{catalog: catalog, completer: completer, prompts: prompts, log: logger.OrNop(log)}
}

// Resolve runs both stages. Model failures and unparseable replies end in an
// empty Selection; only catalog read failures are returned as errors.
func (s *ModelSelector) Resolve(ctx context.Context, userMessage string) (Selection, error) {
	var sel Selection

	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return sel, err
	}
	if categories == "" {
		return sel, nil
	}
	reply, ok := s.ask(ctx, categories, userMessage, &sel)
	if !ok {
		return sel, nil
	}
	cat, ok := s.catalog.CategoryByID(ctx, reply)
	if !ok {
		s.log.Debug("selection: no category", zap.String("reply", reply))
		return sel, nil
	}
	sel.Category = cat

	headings, err := s.catalog.ListHeadingsByCategory(ctx, cat.ID)
	if err != nil {
		return sel, err
	}
	if headings == "" {
		return sel, nil
	}
	reply, ok = s.ask(ctx, headings, userMessage, &sel)
	if !ok {
		return sel, nil
	}
	article, ok := s.catalog.ArticleByID(ctx, reply)
	if !ok || !article.InCategory(cat.ID) {
		s.log.Debug("selection: no article", zap.String("reply", reply), zap.Uint("category", cat.ID))
		return sel, nil
	}
	sel.Article = article
	sel.Content = article.Content
	return sel, nil
}

// ask runs one selection call and adds its usage to sel.
func (s *ModelSelector) ask(ctx context.Context, catalog, userMessage string, sel *Selection) (string, bool) {
	out, err := s.completer.Complete(ctx, s.prompts.SelectionPrompt(catalog), userMessage)
	if err != nil {
		s.log.Warn("selection call failed", zap.Error(err))
		return "", false
	}
	sel.Usage = sel.Usage.Add(out.Usage)
	return out.Text, true
}

// None never selects anything.
type None struct{}

func (None) Resolve(context.Context, string) (Selection, error) { return Selection{}, nil }
