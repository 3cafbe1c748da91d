package catalog

import (
	"math"
	"strconv"
	"strings"

	"DaryoAI/models"
)

// FormatCategories renders one line per category:
//
//	id:(<id>)-category:(<name>);
//
// Lines are joined with "\n" and keep the order of the input, which callers
// load ascending by id.
func FormatCategories(cats []models.Category) string {
	var b strings.Builder
	for i, c := range cats {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("id:(")
		b.WriteString(strconv.FormatUint(uint64(c.ID), 10))
		b.WriteString(")-category:(")
		b.WriteString(c.Name)
		b.WriteString(");")
	}
	return b.String()
}

// FormatHeadings renders one line per article:
//
//	id:(<id>)-heading:(<heading>);
func FormatHeadings(articles []models.AiData) string {
	var b strings.Builder
	for i, a := range articles {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("id:(")
		b.WriteString(strconv.FormatUint(uint64(a.ID), 10))
		b.WriteString(")-heading:(")
		b.WriteString(a.Heading)
		b.WriteString(");")
	}
	return b.String()
}

// ParseID accepts a trimmed run of ASCII digits naming a positive id that
// fits the id type.
func ParseID(raw string) (uint, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 || n > math.MaxUint32 {
		return 0, false
	}
	return uint(n), true
}
