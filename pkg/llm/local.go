package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Local answers without any network access. Selection prompts get an id
// whose catalog label occurs in the user text; everything else gets a short
// canned summary. Used for development and as the offline provider.
type Local struct {
	stepDelay time.Duration
}

func NewLocal() *Local { return &Local{stepDelay: 40 * time.Millisecond} }

var catalogLine = regexp.MustCompile(`(?m)^id:\((\d+)\)-(?:category|heading):\((.*)\);$`)

func (l *Local) Complete(ctx context.Context, systemPrompt, userText string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, &TransientError{Provider: "local", Err: err}
	}
	return finish("local", "local", systemPrompt, userText, l.reply(systemPrompt, userText))
}

func (l *Local) Stream(ctx context.Context, systemPrompt, userText string, onDelta func(string)) (Completion, error) {
	out, err := l.Complete(ctx, systemPrompt, userText)
	if err != nil {
		return out, err
	}
	runes := []rune(out.Text)
	const step = 24
	for i := 0; i < len(runes); i += step {
		if ctx.Err() != nil {
			break
		}
		end := min(i+step, len(runes))
		if onDelta != nil {
			onDelta(string(runes[i:end]))
		}
		if l.stepDelay > 0 {
			sleepWithContext(ctx, l.stepDelay)
		}
	}
	return out, nil
}

func (l *Local) reply(systemPrompt, userText string) string {
	if matches := catalogLine.FindAllStringSubmatch(systemPrompt, -1); len(matches) > 0 {
		lower := strings.ToLower(userText)
		for _, m := range matches {
			if label := strings.ToLower(strings.TrimSpace(m[2])); label != "" && strings.Contains(lower, label) {
				return m[1]
			}
		}
		return "0"
	}

	last := strings.TrimSpace(userText)
	if i := strings.LastIndex(last, "\n"); i >= 0 {
		last = strings.TrimSpace(last[i+1:])
	}
	if last == "" {
		last = "savolingiz"
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "<b>Qisqacha javob</b>: %s\n\n", truncate(last, 60))
	fmt.Fprintln(b, "• Batafsil ma'lumot uchun daryo.uz saytidagi tegishli maqolani o'qing.")
	fmt.Fprintln(b, "• Savolingizni aniqroq yozsangiz, javob ham aniqroq bo'ladi.")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
