// Package richtext keeps model replies inside the Telegram HTML subset the
// clients render. Replies that slipped into markdown are converted.
package richtext

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough),
	goldmark.WithRendererOptions(htmlrenderer.WithUnsafe()),
)

var (
	markdownHints = regexp.MustCompile("(?m)(\\*\\*|__|^#{1,6}\\s|^\\s*[-*]\\s|```)")
	headingTag    = regexp.MustCompile(`<h[1-6][^>]*>`)
	headingClose  = regexp.MustCompile(`</h[1-6]>`)
	listOpen      = regexp.MustCompile(`<(ul|ol)[^>]*>\n?`)
	codeClass     = regexp.MustCompile(`<code class="[^"]*">`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

var tagMap = strings.NewReplacer(
	"<strong>", "<b>", "</strong>", "</b>",
	"<em>", "<i>", "</em>", "</i>",
	"<del>", "<s>", "</del>", "</s>",
	"<p>", "", "</p>", "\n",
	"</ul>", "", "</ol>", "",
	"<li>", "• ", "</li>", "",
	"<br>", "\n", "<br />", "\n", "<br/>", "\n",
	"<hr>", "", "<hr />", "",
)

// HasMarkdown reports whether s looks like markdown rather than the HTML
// subset.
func HasMarkdown(s string) bool {
	return markdownHints.MatchString(s)
}

// Normalize converts markdown replies to the HTML subset and trims the
// result. Replies without markdown are only trimmed.
func Normalize(s string) string {
	if !HasMarkdown(s) {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return strings.TrimSpace(s)
	}
	out := buf.String()
	out = headingTag.ReplaceAllString(out, "<b>")
	out = headingClose.ReplaceAllString(out, "</b>\n")
	out = listOpen.ReplaceAllString(out, "")
	out = codeClass.ReplaceAllString(out, "<code>")
	out = tagMap.Replace(out)
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
