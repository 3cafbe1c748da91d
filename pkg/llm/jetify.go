package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
	"go.uber.org/zap"
)

// jetifyCompleter drives the official OpenAI and Anthropic SDKs through the
// jetify ai abstraction.
type jetifyCompleter struct {
	provider  string
	modelID   string
	model     jetapi.LanguageModel
	streaming   bool
	maxOutput   int
	temperature float64
	log         *zap.Logger
}

func newJetify(provider string, cfg Config, log *zap.Logger) (*jetifyCompleter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	modelID := strings.TrimSpace(cfg.Model)
	endpoint := strings.TrimSpace(cfg.BaseURL)

	c := &jetifyCompleter{provider: provider, maxOutput: cfg.MaxOutputTokens, temperature: cfg.Temperature, log: log}

	if provider == "anthropic" {
		if modelID == "" {
			modelID = "claude-haiku-4-5-20251001"
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
			anthropicoption.WithRequestTimeout(cfg.Timeout),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		c.model = jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))
		c.modelID = modelID
		return c, nil
	}

	if modelID == "" {
		modelID = "gpt-4o-mini"
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
		openaioption.WithRequestTimeout(cfg.Timeout),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	client := openaiclient.NewClient(opts...)
	c.model = jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))
	c.modelID = modelID
	c.streaming = true
	return c, nil
}

func (c *jetifyCompleter) generateOptions() []jetai.GenerateOption {
	return []jetai.GenerateOption{
		jetai.WithModel(c.model),
		jetai.WithMaxOutputTokens(c.maxOutput),
		jetai.WithTemperature(c.temperature),
	}
}

func (c *jetifyCompleter) Complete(ctx context.Context, systemPrompt, userText string) (Completion, error) {
	resp, err := jetai.GenerateText(
		ctx,
		buildMessages(systemPrompt, userText),
		c.generateOptions()...,
	)
	if err != nil {
		c.log.Warn("completion failed", zap.String("provider", c.provider), zap.String("model", c.modelID), zap.Error(err))
		return Completion{}, &TransientError{Provider: c.provider, Err: err}
	}
	return finish(c.provider, c.modelID, systemPrompt, userText, textFromResponse(resp))
}

func (c *jetifyCompleter) Stream(ctx context.Context, systemPrompt, userText string, onDelta func(string)) (Completion, error) {
	if !c.streaming {
		return CompleteStreaming(ctx, onlyComplete{c}, systemPrompt, userText, onDelta)
	}
	streamResp, err := jetai.StreamText(
		ctx,
		buildMessages(systemPrompt, userText),
		c.generateOptions()...,
	)
	if err != nil {
		return Completion{}, &TransientError{Provider: c.provider, Err: err}
	}
	var full strings.Builder
	for event := range streamResp.Stream {
		switch evt := event.(type) {
		case *jetapi.TextDeltaEvent:
			if evt.TextDelta == "" {
				continue
			}
			full.WriteString(evt.TextDelta)
			if onDelta != nil {
				onDelta(evt.TextDelta)
			}
		case *jetapi.ErrorEvent:
			if evt.Err == nil {
				return Completion{}, &TransientError{Provider: c.provider, Err: errors.New("stream returned an unknown error")}
			}
			return Completion{}, &TransientError{Provider: c.provider, Err: fmt.Errorf("%v", evt.Err)}
		}
	}
	return finish(c.provider, c.modelID, systemPrompt, userText, full.String())
}

// onlyComplete hides the Streamer implementation so CompleteStreaming falls
// back to a single Complete call.
type onlyComplete struct{ c Completer }

func (o onlyComplete) Complete(ctx context.Context, systemPrompt, userText string) (Completion, error) {
	return o.c.Complete(ctx, systemPrompt, userText)
}

func buildMessages(systemPrompt, userText string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(userText)})
	return messages
}

func textFromResponse(resp *jetapi.Response) string {
	if resp == nil {
		return ""
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	return full.String()
}

// normalizeOpenAIBaseURL makes sure a custom endpoint ends in /v1.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}
