// Package batch packs translation chunks into JSONL batch request files
// under token and request-count budgets. Request custom_ids are globally
// monotonic across all files of a run, so results can be reassembled in
// original order no matter which file a request landed in.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/valpere/batchtran/internal/chunker"
	"github.com/valpere/batchtran/internal/tags"
	"github.com/valpere/batchtran/internal/tokenizer"
)

// TagDictFile is the name of the tag dictionary artifact, written once per run.
const TagDictFile = "tag_dict.json"

// FilePattern names sealed batch files: batch_requests_part_1.jsonl, …
const FilePattern = "batch_requests_part_%d.jsonl"

// Default packing budgets.
const (
	DefaultMaxFileTokens       = 89900
	DefaultMaxFileRequests     = 500
	DefaultMaxCompletionTokens = 1000
	DefaultRequestOverhead     = 100
	DefaultModel               = "gpt-4o"
)

// Message is one chat message of a batch request body.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Body is the generation payload of a batch request. Temperature is fixed
// at zero so repeated runs produce comparable output.
type Body struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// Request is one line of a batch request file.
type Request struct {
	CustomID string `json:"custom_id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Body     Body   `json:"body"`
}

// Config controls request construction and file packing.
type Config struct {
	OutputDir           string
	Model               string
	SystemPrompt        string
	MaxFileTokens       int
	MaxFileRequests     int
	MaxCompletionTokens int
	RequestOverhead     int
}

// Result summarises what Build produced.
type Result struct {
	Files    []string // sealed batch file paths, in order
	Requests int      // total requests across all files
}

// Builder packs chunks into batch files.
type Builder struct {
	cfg     Config
	counter tokenizer.Counter
}

// NewBuilder creates a Builder, filling unset budgets with the defaults.
func NewBuilder(counter tokenizer.Counter, cfg Config) *Builder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxFileTokens <= 0 {
		cfg.MaxFileTokens = DefaultMaxFileTokens
	}
	if cfg.MaxFileRequests <= 0 {
		cfg.MaxFileRequests = DefaultMaxFileRequests
	}
	if cfg.MaxCompletionTokens <= 0 {
		cfg.MaxCompletionTokens = DefaultMaxCompletionTokens
	}
	if cfg.RequestOverhead <= 0 {
		cfg.RequestOverhead = DefaultRequestOverhead
	}
	return &Builder{cfg: cfg, counter: counter}
}

// SystemPrompt returns the fixed translation instruction for language,
// including the steps that keep placeholders and delimiter symbols intact.
func SystemPrompt(language string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a translation assistant. Translate the following text to %s.", language))
	sb.WriteString("The following STEPS must be followed. Whenever you are forming a response, ensure all STEPS have been followed otherwise start over, forming a new response and repeat until the finished response follows all the STEPS. Then send the response.")
	sb.WriteString("STEPS:")
	sb.WriteString("STEP-1: Keep {{tag_x}} tags with numbers as they are.")
	sb.WriteString("STEP-2: You must not miss the data from user's input in your responses especially {{tag_x}} tags, special symbols '{{{', '}}}', '|||' etc.!")
	sb.WriteString("STEP-3: Just translate. No comments or explanations.")
	sb.WriteString("STEP-4: If you can't assist with the request just return the request as an answer.")
	return sb.String()
}

// Build packs chunks into sealed batch files in OutputDir and persists the
// tag dictionary alongside them. A file is sealed when adding the next
// request would exceed the token budget or the request cap; the final,
// possibly partial, file is always sealed.
func (b *Builder) Build(chunks []chunker.Chunk, dict *tags.Dictionary) (*Result, error) {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	systemTokens := b.counter.Count(b.cfg.SystemPrompt)

	result := &Result{}
	var pending []Request
	fileTokens := 0
	fileNum := 1

	seal := func() error {
		if len(pending) == 0 {
			return nil
		}
		path := filepath.Join(b.cfg.OutputDir, fmt.Sprintf(FilePattern, fileNum))
		if err := writeRequests(path, pending); err != nil {
			return err
		}
		result.Files = append(result.Files, path)
		result.Requests += len(pending)
		pending = nil
		fileTokens = 0
		fileNum++
		return nil
	}

	nextID := 1
	for _, chunk := range chunks {
		cost := systemTokens + chunk.Tokens + b.cfg.RequestOverhead

		if len(pending) > 0 && (fileTokens+cost > b.cfg.MaxFileTokens || len(pending) >= b.cfg.MaxFileRequests) {
			if err := seal(); err != nil {
				return nil, err
			}
		}

		pending = append(pending, Request{
			CustomID: fmt.Sprintf("request-%d", nextID),
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body: Body{
				Model: b.cfg.Model,
				Messages: []Message{
					{Role: "system", Content: b.cfg.SystemPrompt},
					{Role: "user", Content: chunk.Text},
				},
				MaxTokens:   b.cfg.MaxCompletionTokens,
				Temperature: 0,
			},
		})
		fileTokens += cost
		nextID++
	}

	if err := seal(); err != nil {
		return nil, err
	}

	if dict != nil {
		if err := dict.Save(filepath.Join(b.cfg.OutputDir, TagDictFile)); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func writeRequests(path string, requests []Request) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, req := range requests {
		if err := enc.Encode(req); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
