package prompt

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every fixed text the service sends to the model or to users.
// It is loaded once and never mutated.
type Config struct {
	Persona   string   `yaml:"persona"`
	Style     string   `yaml:"style"`
	Format    string   `yaml:"format"`
	Selection string   `yaml:"selection"`
	Muhbir    string   `yaml:"muhbir"`
	Messages  Messages `yaml:"messages"`
}

// Messages are user-facing replies. DailyLimit may contain {hours} and
// {minutes} placeholders.
type Messages struct {
	Apology            string `yaml:"apology"`
	DailyLimit         string `yaml:"daily_limit"`
	TokenLimit         string `yaml:"token_limit"`
	ClientLimit        string `yaml:"client_limit"`
	MessageRequired    string `yaml:"message_required"`
	ExternalIDRequired string `yaml:"external_id_required"`
	EmptyConsoleInput  string `yaml:"empty_console_input"`
}

const allowedTags = `<b>bold</b>, <strong>bold</strong>
<i>italic</i>, <em>italic</em>
<u>underline</u>, <ins>underline</ins>
<s>strikethrough</s>, <strike>strikethrough</strike>, <del>strikethrough</del>
<span class="tg-spoiler">spoiler</span>, <tg-spoiler>spoiler</tg-spoiler>
<a href="http://www.example.com/">inline URL</a>
<code>inline fixed-width code</code>
<pre>pre-formatted fixed-width code block</pre>
<blockquote>Block quotation</blockquote>`

// Default returns the built-in prompt set.
func Default() Config {
	return Config{
		Persona: "You are Daryo AI, the assistant of the Daryo news portal (daryo.uz). " +
			"Answer questions about news, events and articles published by Daryo. " +
			"Reply in the language the user writes in; Uzbek is the default.",
		Style: "Be friendly and concise. Always include emojis in your answers, use them a lot. " +
			"If the background article does not cover the question, say so instead of inventing facts.",
		Format: "Format answers only with these tags, never with markdown signs like ** or #:\n" + allowedTags,
		Selection: "You route questions to a catalog. Each catalog line has the form id:(<id>)-<kind>:(<label>);. " +
			"Reply with only the id number of the single best matching line, digits only and nothing else. " +
			"If no line matches exactly, reply with the id of the closest line.",
		Muhbir: "You are now answering for reporters of Daryo, not for an ordinary client.",
		Messages: Messages{
			Apology:            "Kechirasiz, hozirda javob bera olmadim.",
			DailyLimit:         "Kunlik xabarlar limiti tugadi. Limit {hours} soat {minutes} daqiqadan so'ng yangilanadi.",
			TokenLimit:         "API kaliti uchun token limiti tugadi.",
			ClientLimit:        "You have exceeded the maximum allowed limit of users.",
			MessageRequired:    "User message is required.",
			ExternalIDRequired: "Client external_id is required.",
			EmptyConsoleInput:  "Iltimos, xabar kiriting.",
		},
	}
}

// LoadFile reads a YAML prompt file. Keys missing from the file keep their
// default values; an empty path returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read prompts file: %w", err)
	}
	var fromFile Config
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return Config{}, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	merge(&cfg, fromFile)
	return cfg, nil
}

func merge(dst *Config, src Config) {
	set := func(d *string, s string) {
		if strings.TrimSpace(s) != "" {
			*d = s
		}
	}
	set(&dst.Persona, src.Persona)
	set(&dst.Style, src.Style)
	set(&dst.Format, src.Format)
	set(&dst.Selection, src.Selection)
	set(&dst.Muhbir, src.Muhbir)
	set(&dst.Messages.Apology, src.Messages.Apology)
	set(&dst.Messages.DailyLimit, src.Messages.DailyLimit)
	set(&dst.Messages.TokenLimit, src.Messages.TokenLimit)
	set(&dst.Messages.ClientLimit, src.Messages.ClientLimit)
	set(&dst.Messages.MessageRequired, src.Messages.MessageRequired)
	set(&dst.Messages.ExternalIDRequired, src.Messages.ExternalIDRequired)
	set(&dst.Messages.EmptyConsoleInput, src.Messages.EmptyConsoleInput)
}

// DailyLimitText renders the quota message with the time left until reset.
// Seconds are dropped, so 59s reads as 0 hours 0 minutes.
func (m Messages) DailyLimitText(resetIn time.Duration) string {
	if resetIn < 0 {
		resetIn = 0
	}
	hours := int(resetIn / time.Hour)
	minutes := int((resetIn % time.Hour) / time.Minute)
	return strings.NewReplacer(
		"{hours}", fmt.Sprint(hours),
		"{minutes}", fmt.Sprint(minutes),
	).Replace(m.DailyLimit)
}
