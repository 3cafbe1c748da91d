package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"DaryoAI/models"
	"DaryoAI/pkg/llm"
	"DaryoAI/pkg/logger"
	"DaryoAI/pkg/prompt"
	"DaryoAI/pkg/richtext"
	"DaryoAI/pkg/selector"
	"DaryoAI/pkg/session"
	"DaryoAI/pkg/tokens"
	"DaryoAI/pkg/usage"

	"go.uber.org/zap"
)

var (
	ErrMessageRequired    = errors.New("message is required")
	ErrExternalIDRequired = errors.New("external_id is required")
)

type QuotaKind int

const (
	QuotaDaily QuotaKind = iota + 1
	QuotaTokens
)

// QuotaError is returned when a client or API key ran out of budget.
// ResetIn is set for daily quotas.
type QuotaError struct {
	Kind    QuotaKind
	ResetIn time.Duration
}

func (e *QuotaError) Error() string {
	if e.Kind == QuotaDaily {
		return fmt.Sprintf("daily message limit reached, resets in %s", e.ResetIn.Round(time.Minute))
	}
	return "token limit reached"
}

// UpstreamError wraps a failed answer completion.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "completion failed: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Request is one public API turn.
type Request struct {
	ExternalID string
	Name       string
	Email      string
	Message    string
	APIKey     *models.APIKey // nil skips token accounting
}

type Reply struct {
	Text           string
	ConversationID uint
	Usage          tokens.Usage
	Article        *models.AiData
}

// ChatService runs the conversation pipeline: quota checks, context
// selection, prompt assembly, completion, token accounting, persistence.
type ChatService struct {
	sessions  *session.Store
	limiter   *usage.Limiter
	resolver  selector.ContextResolver
	assembler *prompt.Assembler
	completer llm.Completer
	log       *zap.Logger
	now       func() time.Time
}

func NewChatService(
	sessions *session.Store,
	limiter *usage.Limiter,
	resolver selector.ContextResolver,
	assembler *prompt.Assembler,
	completer llm.Completer,
	log *zap.Logger,
) *ChatService {
	if resolver == nil {
		resolver = selector.None{}
	}
	return &ChatService{
		sessions:  sessions,
		limiter:   limiter,
		resolver:  resolver,
		assembler: assembler,
		completer: completer,
		log:       logger.OrNop(log),
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *ChatService) SetClock(now func() time.Time) { s.now = now }

func (s *ChatService) Messages() prompt.Messages { return s.assembler.Config().Messages }

// Handle answers one API message.
func (s *ChatService) Handle(ctx context.Context, req Request) (*Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrMessageRequired
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return nil, ErrExternalIDRequired
	}

	client, conv, err := s.sessions.GetOrCreate(ctx, session.ClientInfo{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Email:      req.Email,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	ok, err := s.limiter.CanSendMessage(ctx, client, conv.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &QuotaError{Kind: QuotaDaily, ResetIn: s.limiter.TimeUntilReset(now)}
	}
	if req.APIKey != nil && !req.APIKey.CanUseTokens(tokens.Estimate(message)) {
		return nil, &QuotaError{Kind: QuotaTokens}
	}

	if _, err := s.sessions.AppendClientMessage(ctx, conv.ID, message, now); err != nil {
		return nil, err
	}

	sel, err := s.resolver.Resolve(ctx, message)
	if err != nil {
		s.log.Warn("context selection failed", zap.Uint("conversation", conv.ID), zap.Error(err))
		sel = selector.Selection{Usage: sel.Usage}
	}

	p, err := s.buildPrompt(ctx, conv, message, sel.Content, client.IsMuhbir, now)
	if err != nil {
		return nil, err
	}

	out, err := s.completer.Complete(ctx, p.System, p.User)
	if err != nil {
		s.log.Error("completion failed", zap.Uint("conversation", conv.ID), zap.Error(err))
		if _, cerr := s.charge(ctx, req.APIKey, sel.Usage); cerr != nil && !errors.Is(cerr, usage.ErrTokenLimitExceeded) {
			s.log.Error("charge selection tokens", zap.Uint("api_key", req.APIKey.ID), zap.Error(cerr))
		}
		return nil, &UpstreamError{Err: err}
	}

	spent := sel.Usage.Add(out.Usage)
	exhausted, err := s.charge(ctx, req.APIKey, spent)
	if err != nil && !errors.Is(err, usage.ErrTokenLimitExceeded) {
		return nil, err
	}
	if exhausted {
		s.log.Info("token limit reached", zap.Uint("api_key", req.APIKey.ID), zap.Int64("needed", spent.Total()))
		return nil, &QuotaError{Kind: QuotaTokens}
	}

	text := richtext.Normalize(out.Text)
	if _, err := s.sessions.AppendAIMessage(ctx, conv.ID, text, s.now()); err != nil {
		return nil, err
	}

	s.log.Info("chat turn",
		zap.Uint("conversation", conv.ID),
		zap.Bool("muhbir", client.IsMuhbir),
		zap.Bool("context", sel.Found()),
		zap.Int64("input_tokens", spent.InputTokens),
		zap.Int64("output_tokens", spent.OutputTokens),
	)
	return &Reply{Text: text, ConversationID: conv.ID, Usage: spent, Article: sel.Article}, nil
}

// ConsoleReply answers a message an operator typed into the admin console
// for a conversation. The answer is addressed to reporters, no quota
// applies, and an upstream failure is answered with the apology text.
// onDelta, when set, receives the reply as it streams in.
func (s *ChatService) ConsoleReply(ctx context.Context, conversationID uint, text string, onDelta func(string)) (*Reply, error) {
	message := strings.TrimSpace(text)
	if message == "" {
		return nil, ErrMessageRequired
	}
	conv, err := s.sessions.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if _, err := s.sessions.AppendClientMessage(ctx, conv.ID, message, now); err != nil {
		return nil, err
	}

	sel, err := s.resolver.Resolve(ctx, message)
	if err != nil {
		s.log.Warn("context selection failed", zap.Uint("conversation", conv.ID), zap.Error(err))
		sel = selector.Selection{}
	}
	p, err := s.buildPrompt(ctx, conv, message, sel.Content, true, now)
	if err != nil {
		return nil, err
	}

	var answer string
	out, err := llm.CompleteStreaming(ctx, s.completer, p.System, p.User, onDelta)
	if err != nil {
		s.log.Warn("console completion failed", zap.Uint("conversation", conv.ID), zap.Error(err))
		answer = s.Messages().Apology
		if onDelta != nil {
			onDelta(answer)
		}
	} else {
		answer = richtext.Normalize(out.Text)
	}

	// a stopped turn cancels ctx; the reply is stored regardless
	if _, err := s.sessions.AppendAIMessage(context.WithoutCancel(ctx), conv.ID, answer, s.now()); err != nil {
		return nil, err
	}
	return &Reply{Text: answer, ConversationID: conv.ID, Usage: sel.Usage.Add(out.Usage), Article: sel.Article}, nil
}

// charge books spent against key, capped at its limit. exhausted reports
// that the spend did not fit and the key is now used up.
func (s *ChatService) charge(ctx context.Context, key *models.APIKey, spent tokens.Usage) (exhausted bool, err error) {
	if key == nil || spent.Total() == 0 {
		return false, nil
	}
	updated, err := s.limiter.ChargeTokens(context.WithoutCancel(ctx), key.ID, spent.Total())
	if errors.Is(err, usage.ErrTokenLimitExceeded) {
		*key = updated
		return true, err
	}
	if err != nil {
		return false, err
	}
	*key = updated
	return false, nil
}

func (s *ChatService) buildPrompt(ctx context.Context, conv *models.Conversation, latest, snippet string, muhbir bool, now time.Time) (prompt.Prompt, error) {
	in := prompt.Input{Snippet: snippet, Latest: latest, Muhbir: muhbir}
	if s.assembler.UsesHistory(muhbir) {
		history, err := s.sessions.RecentHistory(ctx, conv, now)
		if err != nil {
			return prompt.Prompt{}, err
		}
		in.History = history
	}
	return s.assembler.Build(in), nil
}
