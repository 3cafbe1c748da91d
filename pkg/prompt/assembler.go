package prompt

import (
	"strings"

	"DaryoAI/models"
	"DaryoAI/pkg/tokens"
)

// Assembler builds completion prompts from an immutable Config.
type Assembler struct {
	cfg            Config
	historyAllowed bool
}

func NewAssembler(cfg Config, historyAllowed bool) *Assembler {
	return &Assembler{cfg: cfg, historyAllowed: historyAllowed}
}

func (a *Assembler) Config() Config { return a.cfg }

// Input is everything one answer prompt is built from.
type Input struct {
	Snippet string           // selected article content, may be empty
	Latest  string           // the message being answered
	History []models.Message // windowed history, used only when UsesHistory
	Muhbir  bool
}

// Prompt is the pair sent to the completer.
type Prompt struct {
	System string
	User   string
}

// Tokens is the estimated input size of p.
func (p Prompt) Tokens() int64 { return tokens.Estimate(p.System) + tokens.Estimate(p.User) }

// UsesHistory reports whether answers for this client class carry the
// windowed history instead of the latest message alone.
func (a *Assembler) UsesHistory(muhbir bool) bool {
	return a.historyAllowed || muhbir
}

// Build concatenates, in order, the persona block, the selected snippet and
// the latest message or windowed history.
func (a *Assembler) Build(in Input) Prompt {
	var sys strings.Builder
	sys.WriteString(a.instructionBlock())
	if in.Muhbir && a.cfg.Muhbir != "" {
		sys.WriteString("\n")
		sys.WriteString(a.cfg.Muhbir)
	}
	if s := strings.TrimSpace(in.Snippet); s != "" {
		sys.WriteString("\n\nBackground article:\n")
		sys.WriteString(s)
	}

	user := in.Latest
	if a.UsesHistory(in.Muhbir) {
		if h := models.FormatTranscript(in.History); h != "" {
			user = h
		}
	}
	return Prompt{System: sys.String(), User: user}
}

// SelectionPrompt is the system prompt of one selection stage.
func (a *Assembler) SelectionPrompt(catalog string) string {
	return a.cfg.Selection + "\n\n" + catalog
}

func (a *Assembler) instructionBlock() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.cfg.Persona, a.cfg.Style, a.cfg.Format} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}
