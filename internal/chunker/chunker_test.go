package chunker_test

import (
	"strings"
	"testing"

	"github.com/valpere/batchtran/internal/chunker"
	"github.com/valpere/batchtran/internal/tokenizer"
)

// runeCounter gives deterministic token counts without a real encoding.
var runeCounter = tokenizer.CountFunc(func(text string) int {
	return len([]rune(text))
})

func TestSplit_ShortText(t *testing.T) {
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 100})
	chunks := s.Split("Hello, world!")

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "Hello, world!" {
		t.Errorf("expected original text back, got %q", chunks[0].Text)
	}
}

func TestSplit_Unlimited(t *testing.T) {
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 0})
	chunks := s.Split(strings.Repeat("word ", 500))

	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk when MaxTokens=0, got %d", len(chunks))
	}
}

func TestSplit_EmptyText(t *testing.T) {
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 100})
	if chunks := s.Split("   "); chunks != nil {
		t.Errorf("expected no chunks for blank text, got %v", chunks)
	}
}

func TestSplit_RespectsThreshold(t *testing.T) {
	// 10 parts of 20 runes separated by placeholders; budget 100 → seal at 90.
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(strings.Repeat("a", 11))
		sb.WriteString("{{tag_1}}") // 9 runes
	}
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 100})
	chunks := s.Split(sb.String())

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if float64(c.Tokens) > 90 {
			t.Errorf("chunk %d exceeds 90%% threshold: %d tokens", i, c.Tokens)
		}
	}
}

func TestSplit_PlaceholderNeverSplit(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 30; i++ {
		sb.WriteString(strings.Repeat("x", 7))
		sb.WriteString("{{tag_")
		sb.WriteString(strings.Repeat("9", 1+i%3)) // ids of varying width
		sb.WriteString("}}")
	}
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 60})
	chunks := s.Split(sb.String())

	for i, c := range chunks {
		// Any brace sequence must form a complete placeholder.
		if strings.Count(c.Text, "{{") != strings.Count(c.Text, "}}") {
			t.Errorf("chunk %d has a torn placeholder: %q", i, c.Text)
		}
		if strings.HasPrefix(c.Text, "}}") || strings.HasSuffix(c.Text, "{{") {
			t.Errorf("chunk %d boundary cuts a placeholder: %q", i, c.Text)
		}
	}
}

func TestSplit_OversizedAtomicPart(t *testing.T) {
	// A single literal part larger than the whole budget still comes out
	// as one (oversized) chunk rather than being torn apart.
	big := strings.Repeat("b", 200)
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 50})
	chunks := s.Split("small{{tag_1}}" + big)

	found := false
	for _, c := range chunks {
		if c.Text == big {
			found = true
		}
	}
	if !found {
		t.Errorf("oversized part should be its own chunk: %v", chunks)
	}
}

func TestSplit_ContinuationCarriedOver(t *testing.T) {
	cont := "{{tag_1}}"
	// First segment fills most of the budget and ends with the continuation
	// placeholder; the next segment forces a seal.
	text := strings.Repeat("a", 70) + cont + strings.Repeat("b", 70)
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 100, Continuation: cont})
	chunks := s.Split(text)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if strings.HasSuffix(chunks[0].Text, cont) {
		t.Errorf("continuation should not end the sealed chunk: %q", chunks[0].Text)
	}
	if !strings.HasPrefix(chunks[1].Text, cont) {
		t.Errorf("continuation should start the next chunk: %q", chunks[1].Text)
	}
}

func TestSplit_NoContinuationConfigured(t *testing.T) {
	cont := "{{tag_1}}"
	text := strings.Repeat("a", 70) + cont + strings.Repeat("b", 70)
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 100})
	chunks := s.Split(text)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, cont) {
		t.Errorf("without carry-over config the placeholder stays put: %q", chunks[0].Text)
	}
}

func TestSplit_FinalChunkFlushed(t *testing.T) {
	text := strings.Repeat("a", 85) + "{{tag_2}}" + "tail"
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 100})
	chunks := s.Split(text)

	last := chunks[len(chunks)-1]
	if !strings.Contains(last.Text, "tail") {
		t.Errorf("trailing text lost: %v", chunks)
	}
}

func TestSplit_AllContentPreserved(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString(strings.Repeat("w", 15))
		sb.WriteString("{{tag_3}}")
	}
	original := sb.String()
	s := chunker.New(runeCounter, chunker.Config{MaxTokens: 80})
	chunks := s.Split(original)

	var rejoined strings.Builder
	for _, c := range chunks {
		rejoined.WriteString(c.Text)
	}
	// Chunks are trimmed, so compare with whitespace ignored.
	if rejoined.String() != original {
		t.Errorf("content lost or reordered after split")
	}
}
