// Package chunker splits masked text into token-bounded chunks for batch
// translation. Splits happen only on placeholder boundaries, so a {{tag_N}}
// token is never cut in half, and a designated continuation placeholder is
// carried over to the next chunk instead of stranding it at a seal point.
package chunker

import (
	"strings"

	"github.com/valpere/batchtran/internal/tags"
	"github.com/valpere/batchtran/internal/tokenizer"
)

// sealFraction is the share of the chunk budget a chunk may fill before it
// is sealed; the remainder is headroom for the model's own accounting.
const sealFraction = 0.9

// Chunk is one translatable fragment with its measured token cost.
type Chunk struct {
	Text   string
	Tokens int
}

// Config controls how text is partitioned.
type Config struct {
	// MaxTokens is the per-chunk token budget. Zero or negative means
	// unlimited: the whole text becomes a single chunk.
	MaxTokens int

	// Continuation names a placeholder that carries context across chunk
	// boundaries. When a chunk about to be sealed ends with it, the
	// placeholder is moved to the start of the next chunk instead.
	// Empty disables the carry-over.
	Continuation string
}

// Splitter partitions masked text into chunks using a token counter.
type Splitter struct {
	counter tokenizer.Counter
	cfg     Config
}

// New creates a Splitter counting tokens with counter.
func New(counter tokenizer.Counter, cfg Config) *Splitter {
	return &Splitter{counter: counter, cfg: cfg}
}

// Split partitions text into chunks. Parts are accumulated greedily while
// the running token count stays within 90% of MaxTokens; the next part that
// would cross the threshold seals the current chunk. A part that alone
// exceeds the threshold becomes its own chunk. The final chunk is always
// flushed even when under threshold.
func (s *Splitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.cfg.MaxTokens <= 0 {
		t := strings.TrimSpace(text)
		return []Chunk{{Text: t, Tokens: s.counter.Count(t)}}
	}

	threshold := float64(s.cfg.MaxTokens) * sealFraction

	var chunks []Chunk
	var current string
	currentTokens := 0

	for _, part := range tags.SplitOnPlaceholders(text) {
		if part == "" {
			continue
		}
		partTokens := s.counter.Count(part)

		if current != "" && float64(currentTokens+partTokens) > threshold {
			head, carry := s.splitCarry(current)
			if head != "" {
				chunks = append(chunks, Chunk{Text: head, Tokens: s.counter.Count(head)})
			}
			current = carry + part
			currentTokens = s.counter.Count(current)
			continue
		}

		current += part
		currentTokens += partTokens
	}

	if t := strings.TrimSpace(current); t != "" {
		chunks = append(chunks, Chunk{Text: t, Tokens: s.counter.Count(t)})
	}

	return chunks
}

// splitCarry trims the chunk being sealed and detaches the continuation
// placeholder from its tail so the caller can prepend it to the next chunk.
func (s *Splitter) splitCarry(chunk string) (head, carry string) {
	head = chunk
	if s.cfg.Continuation != "" && strings.HasSuffix(head, s.cfg.Continuation) {
		head = strings.TrimSuffix(head, s.cfg.Continuation)
		carry = s.cfg.Continuation
	}
	return strings.TrimSpace(head), carry
}
