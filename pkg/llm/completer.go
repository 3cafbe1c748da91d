// Package llm talks to the external language model. Every provider reduces
// to one system prompt plus one user text in, one reply out; token usage is
// always the local chars/4 estimate, never the provider's own report.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"DaryoAI/pkg/logger"
	"DaryoAI/pkg/tokens"

	"go.uber.org/zap"
)

// Completion is one model reply with its estimated cost.
type Completion struct {
	Text  string
	Usage tokens.Usage
	Model string
}

type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (Completion, error)
}

// Streamer is implemented by providers that can deliver the reply in pieces.
// onDelta receives raw text fragments; the returned Completion holds the
// full text.
type Streamer interface {
	Stream(ctx context.Context, systemPrompt, userText string, onDelta func(string)) (Completion, error)
}

// TransientError marks an upstream failure: the provider was unreachable,
// rejected the request, or returned nothing usable.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

var ErrEmptyReply = errors.New("empty response from model")

type Config struct {
	Provider        string // openai | anthropic | openai-compatible | gemini | local
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// New builds the completer named by cfg.Provider.
func New(cfg Config, log *zap.Logger) (Completer, error) {
	log = logger.OrNop(log)
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	provider := normalizeProvider(cfg.Provider)
	if provider != "local" && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm provider %q needs an api key", provider)
	}
	switch provider {
	case "openai", "anthropic":
		return newJetify(provider, cfg, log)
	case "openai-compatible":
		return newCompat(cfg, log), nil
	case "gemini":
		return newGemini(cfg, log), nil
	case "local":
		return NewLocal(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// CompleteStreaming streams when c supports it and otherwise delivers the
// whole reply as a single delta.
func CompleteStreaming(ctx context.Context, c Completer, systemPrompt, userText string, onDelta func(string)) (Completion, error) {
	if s, ok := c.(Streamer); ok {
		return s.Stream(ctx, systemPrompt, userText, onDelta)
	}
	out, err := c.Complete(ctx, systemPrompt, userText)
	if err != nil {
		return out, err
	}
	if onDelta != nil && out.Text != "" {
		onDelta(out.Text)
	}
	return out, nil
}

func normalizeProvider(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	if t == "openaicompatible" {
		t = "openai-compatible"
	}
	return t
}

func finish(provider, model, systemPrompt, userText, reply string) (Completion, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Completion{}, &TransientError{Provider: provider, Err: ErrEmptyReply}
	}
	return Completion{
		Text:  reply,
		Usage: tokens.ForExchange(systemPrompt, userText, reply),
		Model: model,
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
