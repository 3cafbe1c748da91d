// Package tokens holds the single token estimate used for quota enforcement
// and cost accounting alike.
//
// The estimate is ceil(characters / 4). It is not a tokenizer and it is not
// reconciled against usage reported by the model provider.
package tokens

import "unicode/utf8"

const CharsPerToken = 4

// Estimate returns ceil(runeCount(text) / CharsPerToken).
func Estimate(text string) int64 {
	n := int64(utf8.RuneCountInString(text))
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Usage is the estimated cost of one or more completion calls.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// ForExchange estimates a single request/response exchange.
func ForExchange(system, user, reply string) Usage {
	return Usage{
		InputTokens:  Estimate(system) + Estimate(user),
		OutputTokens: Estimate(reply),
	}
}
