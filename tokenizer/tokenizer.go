// Package tokenizer counts and trims text against model token budgets so the
// synthesis stages never overflow a provider's context window.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Counter counts tokens using a tiktoken encoding.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New creates a Counter. An empty encoding name selects cl100k_base.
func New(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Counter{enc: enc}, nil
}

// ForModel creates a Counter matching a model's tokenizer.
func ForModel(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("encoding for model %s: %w", model, err)
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Trim returns text cut down to at most maxTokens tokens. When trimming
// happens, the text is cut at the nearest earlier paragraph boundary so a
// report is never truncated mid-sentence, and a truncation marker is appended.
func (c *Counter) Trim(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	cut := c.enc.Decode(tokens[:maxTokens])
	if idx := strings.LastIndex(cut, "\n\n"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "\n\n[evidence truncated to fit context budget]"
}

// FitSections trims the largest sections first until the combined token count
// of all sections fits within budget. Section order is preserved. Sections
// already within their fair share are left untouched.
func (c *Counter) FitSections(sections []string, budget int) []string {
	if len(sections) == 0 || budget <= 0 {
		return sections
	}

	counts := make([]int, len(sections))
	total := 0
	for i, s := range sections {
		counts[i] = c.Count(s)
		total += counts[i]
	}
	if total <= budget {
		return sections
	}

	// Everyone keeps at least their fair share; oversized sections absorb
	// the whole reduction.
	share := budget / len(sections)
	overBudget := 0
	for _, n := range counts {
		if n > share {
			overBudget += n - share
		}
	}
	excess := total - budget

	out := make([]string, len(sections))
	for i, s := range sections {
		if counts[i] <= share || overBudget == 0 {
			out[i] = s
			continue
		}
		reduction := excess * (counts[i] - share) / overBudget
		out[i] = c.Trim(s, counts[i]-reduction)
	}
	return out
}
