package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DaryoAI/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	fallbackGeminiModel   = "gemini-2.0-flash"
	defaultGeminiRetryGap = 2 * time.Second
)

type geminiCompleter struct {
	apiKey      string
	baseURL     string
	models      []string
	temperature float64
	maxOutput   int
	retryDelay  time.Duration
	client      *http.Client
	log         *zap.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  map[string]any  `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func newGemini(cfg Config, log *zap.Logger) *geminiCompleter {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultGeminiBaseURL
	}
	var models []string
	if m := strings.TrimSpace(cfg.Model); m != "" {
		models = append(models, m)
	}
	if len(models) == 0 || models[0] != fallbackGeminiModel {
		models = append(models, fallbackGeminiModel)
	}
	return &geminiCompleter{
		apiKey:      cfg.APIKey,
		baseURL:     base,
		models:      models,
		temperature: cfg.Temperature,
		maxOutput:   cfg.MaxOutputTokens,
		retryDelay:  defaultGeminiRetryGap,
		client:      &http.Client{Timeout: cfg.Timeout},
		log:         logger.OrNop(log),
	}
}

func (s *geminiCompleter) body(systemPrompt, userText string) ([]byte, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userText}}}},
		GenerationConfig: map[string]any{
			"temperature":     s.temperature,
			"maxOutputTokens": s.maxOutput,
			"topK":            40,
			"topP":            0.9,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

func (s *geminiCompleter) Complete(ctx context.Context, systemPrompt, userText string) (Completion, error) {
	return s.run(ctx, systemPrompt, userText, nil)
}

func (s *geminiCompleter) Stream(ctx context.Context, systemPrompt, userText string, onDelta func(string)) (Completion, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return s.run(ctx, systemPrompt, userText, onDelta)
}

// run tries each configured model in order, retrying once on rate limiting
// or unavailability.
func (s *geminiCompleter) run(ctx context.Context, systemPrompt, userText string, onDelta func(string)) (Completion, error) {
	body, err := s.body(systemPrompt, userText)
	if err != nil {
		return Completion{}, fmt.Errorf("encode gemini request: %w", err)
	}

	call := func(model string) (string, error) {
		if onDelta != nil {
			return s.callStream(ctx, model, body, onDelta)
		}
		return s.call(ctx, model, body)
	}

	var failures []string
	for _, m := range s.models {
		text, err := call(m)
		if err != nil && isRetriable(err) {
			sleepWithContext(ctx, s.retryDelay)
			text, err = call(m)
		}
		if err == nil && strings.TrimSpace(text) != "" {
			return finish("gemini", m, systemPrompt, userText, text)
		}
		if err == nil {
			err = ErrEmptyReply
		}
		failures = append(failures, fmt.Sprintf("%s -> %v", m, err))
		s.log.Warn("gemini model failed", zap.String("model", m), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return Completion{}, &TransientError{
		Provider: "gemini",
		Err:      errors.New("all gemini models failed: " + strings.Join(failures, "; ")),
	}
}

func (s *geminiCompleter) post(ctx context.Context, model string, stream bool, body []byte) (*http.Response, error) {
	method, accept := "generateContent", "application/json"
	url := fmt.Sprintf("%s/models/%s:%s?key=%s", s.baseURL, model, method, s.apiKey)
	if stream {
		method, accept = "streamGenerateContent", "text/event-stream"
		url = fmt.Sprintf("%s/models/%s:%s?alt=sse&key=%s", s.baseURL, model, method, s.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	s.log.Debug("gemini request", zap.String("model", model), zap.String("method", method))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

func (s *geminiCompleter) call(ctx context.Context, model string, body []byte) (string, error) {
	resp, err := s.post(ctx, model, false, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	return firstCandidateText(parsed), nil
}

func (s *geminiCompleter) callStream(ctx context.Context, model string, body []byte, onDelta func(string)) (string, error) {
	resp, err := s.post(ctx, model, true, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	full := strings.Builder{}
	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "data:") {
			line = strings.TrimSpace(line[5:])
		}
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Candidates {
			for _, p := range c.Content.Parts {
				if p.Text == "" {
					continue
				}
				full.WriteString(p.Text)
				onDelta(p.Text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read error: %w", err)
	}
	return full.String(), nil
}

func firstCandidateText(r geminiResponse) string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %s", e.code, e.body) }

func isRetriable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code == http.StatusServiceUnavailable
	}
	return false
}
