package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// compatCompleter talks to any OpenAI-compatible chat completions endpoint
// (vLLM, Ollama, OpenRouter and friends).
type compatCompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	log         *zap.Logger
}

func newCompat(cfg Config, log *zap.Logger) *compatCompleter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = normalizeOpenAIBaseURL(cfg.BaseURL)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &compatCompleter{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		maxTokens:   cfg.MaxOutputTokens,
		temperature: float32(cfg.Temperature),
		log:         log,
	}
}

func (p *compatCompleter) request(systemPrompt, userText string, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})
	return openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      stream,
	}
}

func (p *compatCompleter) Complete(ctx context.Context, systemPrompt, userText string) (Completion, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(systemPrompt, userText, false))
	if err != nil {
		p.log.Warn("completion failed", zap.String("provider", "openai-compatible"), zap.String("model", p.model), zap.Error(err))
		return Completion{}, &TransientError{Provider: "openai-compatible", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &TransientError{Provider: "openai-compatible", Err: ErrEmptyReply}
	}
	return finish("openai-compatible", p.model, systemPrompt, userText, resp.Choices[0].Message.Content)
}

func (p *compatCompleter) Stream(ctx context.Context, systemPrompt, userText string, onDelta func(string)) (Completion, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(systemPrompt, userText, true))
	if err != nil {
		return Completion{}, &TransientError{Provider: "openai-compatible", Err: err}
	}
	defer stream.Close()

	var full strings.Builder
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Completion{}, &TransientError{Provider: "openai-compatible", Err: err}
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	return finish("openai-compatible", p.model, systemPrompt, userText, full.String())
}
