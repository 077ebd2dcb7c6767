package text

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts cl100k BPE tokens.
type TokenCounter struct {
	codec tokenizer.Codec
}

func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count falls back to the rune count if the text cannot be encoded.
func (t *TokenCounter) Count(s string) int {
	ids, _, err := t.codec.Encode(s)
	if err != nil {
		return utf8.RuneCountInString(s)
	}
	return len(ids)
}
