package orchestrator_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valpere/batchtran/internal/batch"
	"github.com/valpere/batchtran/internal/chunker"
	"github.com/valpere/batchtran/internal/openai"
	"github.com/valpere/batchtran/internal/orchestrator"
	"github.com/valpere/batchtran/internal/reassembler"
	"github.com/valpere/batchtran/internal/tags"
	"github.com/valpere/batchtran/internal/tokenizer"
)

// echoService acts as a remote that "translates" every request by returning
// the user message content unchanged, completing jobs immediately.
type echoService struct {
	t       *testing.T
	nextID  int
	files   map[string][]byte
	outputs map[string][]byte
	done    []string // batch ids
}

func newEchoService(t *testing.T) *echoService {
	return &echoService{
		t:       t,
		files:   make(map[string][]byte),
		outputs: make(map[string][]byte),
	}
}

func (s *echoService) UploadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s.nextID++
	fileID := fmt.Sprintf("file-%d", s.nextID)
	s.files[fileID] = data
	return fileID, nil
}

func (s *echoService) CreateBatch(ctx context.Context, fileID string) (string, error) {
	s.nextID++
	batchID := fmt.Sprintf("batch-%d", s.nextID)

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(s.files[fileID]))
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		var req batch.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.t.Fatalf("uploaded file holds an invalid request line: %v", err)
		}
		rec := map[string]any{
			"custom_id": req.CustomID,
			"response": map[string]any{
				"body": map[string]any{
					"choices": []any{
						map[string]any{
							"message": map[string]any{
								"role":    "assistant",
								"content": req.Body.Messages[1].Content,
							},
						},
					},
				},
			},
		}
		line, err := json.Marshal(rec)
		if err != nil {
			s.t.Fatal(err)
		}
		out.Write(line)
		out.WriteByte('\n')
	}

	s.outputs["out-"+batchID] = out.Bytes()
	s.done = append(s.done, batchID)
	return batchID, nil
}

func (s *echoService) GetBatch(ctx context.Context, id string) (*openai.Batch, error) {
	return &openai.Batch{ID: id, Status: openai.StatusCompleted, OutputFileID: "out-" + id}, nil
}

func (s *echoService) ListBatches(ctx context.Context) ([]openai.Batch, error) {
	var out []openai.Batch
	for _, id := range s.done {
		out = append(out, openai.Batch{ID: id, Status: openai.StatusCompleted})
	}
	return out, nil
}

func (s *echoService) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return s.outputs[fileID], nil
}

// TestPipeline_EchoRoundTrip drives the full flow (mask, chunk, pack,
// upload, submit, poll, download, merge) against an echoing remote and
// requires the reassembled output to reproduce the input bytes exactly.
func TestPipeline_EchoRoundTrip(t *testing.T) {
	original := "Hello <b>world</b>\n"
	dir := t.TempDir()

	masked, dict := tags.Extract(original)
	if dict.Len() != 3 {
		t.Fatalf("expected ids for <b>, </b> and newline, got %d", dict.Len())
	}

	counter := tokenizer.CountFunc(func(text string) int { return len([]rune(text)) })

	chunks := chunker.New(counter, chunker.Config{MaxTokens: 800}).Split(masked)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(chunks))
	}

	builder := batch.NewBuilder(counter, batch.Config{
		OutputDir:    dir,
		SystemPrompt: batch.SystemPrompt("Ukrainian"),
	})
	built, err := builder.Build(chunks, dict)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	svc := newEchoService(t)
	o := orchestrator.New(svc, nil, fastConfig(dir))
	summary, err := o.Run(context.Background(), built.Files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Completed) != len(built.Files) {
		t.Fatalf("expected %d completed jobs, got %d", len(built.Files), len(summary.Completed))
	}

	loaded, err := tags.Load(filepath.Join(dir, batch.TagDictFile))
	if err != nil {
		t.Fatalf("failed to load persisted dictionary: %v", err)
	}

	merged, err := reassembler.Merge(dir, loaded)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged != original {
		t.Errorf("round trip not byte-exact:\n want %q\n got  %q", original, merged)
	}
}

// TestPipeline_MultiChunkOrder spreads a larger corpus over several chunks
// and files and checks the merged result preserves original order.
func TestPipeline_MultiChunkOrder(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString(fmt.Sprintf("segment %03d<br>", i))
	}
	original := sb.String()
	dir := t.TempDir()

	masked, dict := tags.Extract(original)
	counter := tokenizer.CountFunc(func(text string) int { return len([]rune(text)) })

	chunks := chunker.New(counter, chunker.Config{MaxTokens: 120}).Split(masked)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	builder := batch.NewBuilder(counter, batch.Config{
		OutputDir:       dir,
		SystemPrompt:    "echo",
		MaxFileRequests: 2,
	})
	built, err := builder.Build(chunks, dict)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(built.Files) < 2 {
		t.Fatalf("expected multiple batch files, got %d", len(built.Files))
	}

	svc := newEchoService(t)
	o := orchestrator.New(svc, nil, fastConfig(dir))
	if _, err := o.Run(context.Background(), built.Files); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	merged, err := reassembler.Merge(dir, dict)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged != original {
		t.Errorf("multi-chunk merge lost order or content")
	}
}
