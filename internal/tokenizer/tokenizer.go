// Package tokenizer counts text tokens the way the remote model will,
// using tiktoken encodings. The Counter interface keeps the rest of the
// pipeline independent of the concrete encoding so tests can substitute a
// deterministic stub.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// FallbackEncoding is used when the model name is not recognised by tiktoken.
const FallbackEncoding = "cl100k_base"

// Counter counts the tokens a piece of text will occupy.
type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ForModel returns a Counter using the encoding registered for model,
// falling back to FallbackEncoding when the model is unrecognised.
func ForModel(model string) (Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(FallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback encoding: %w", err)
		}
	}
	return &tiktokenCounter{enc: enc}, nil
}

// CountFunc adapts a plain function to the Counter interface.
type CountFunc func(text string) int

// Count implements Counter.
func (f CountFunc) Count(text string) int { return f(text) }
