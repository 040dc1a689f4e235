package llms

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/we11as22/deepresearch/pkg/protocol"
)

// TokenCounter counts tokens with the model's tiktoken encoding. Unknown
// models fall back to cl100k_base, which is close enough for budgeting.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: enc}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encodingCache[model] = enc
	return &TokenCounter{encoding: enc}, nil
}

func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages includes the per-message role overhead of the OpenAI chat
// format.
func (tc *TokenCounter) CountMessages(messages []protocol.Message) int {
	total := 3
	for _, m := range messages {
		total += 3
		total += len(tc.encoding.Encode(string(m.Role), nil, nil))
		total += len(tc.encoding.Encode(m.Content, nil, nil))
	}
	return total
}

// Truncate cuts text to at most maxTokens tokens, decoding back so the
// result is always valid UTF-8.
func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.encoding.Decode(tokens[:maxTokens]) + "..."
}

// FitHistory drops the oldest messages until the rest fit the budget.
func (tc *TokenCounter) FitHistory(messages []protocol.Message, maxTokens int) []protocol.Message {
	for len(messages) > 0 && tc.CountMessages(messages) > maxTokens {
		messages = messages[1:]
	}
	return messages
}

// TruncateTokens is the package-level helper for call sites without a
// model at hand. It falls back to a rune cut when the encoding cannot be
// loaded (an offline build without the embedded vocabulary).
func TruncateTokens(text string, maxTokens int) string {
	tc, err := NewTokenCounter("gpt-4o")
	if err != nil {
		limit := maxTokens * 4
		runes := []rune(text)
		if len(runes) <= limit {
			return text
		}
		return string(runes[:limit]) + "..."
	}
	return tc.Truncate(text, maxTokens)
}
