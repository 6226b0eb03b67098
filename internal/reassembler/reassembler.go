// Package reassembler merges the output files of completed batch jobs back
// into a single text: assistant message contents are collected across all
// files, ordered by their numeric custom_id, cleaned, and have their masked
// spans restored, regardless of the order lines appear in the source files.
package reassembler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/valpere/batchtran/internal/postprocess"
	"github.com/valpere/batchtran/internal/tags"
)

// outputRecord is one line of a job output file, reduced to the fields the
// merge reads.
type outputRecord struct {
	CustomID string `json:"custom_id"`
	Response struct {
		Body struct {
			Choices []struct {
				Message struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
}

var reNumericID = regexp.MustCompile(`\d+`)

type fragment struct {
	seq     int
	content string
}

// Merge reads every output_*.jsonl file in dir and returns the reassembled
// text in ascending custom_id order, with tags restored from dict.
func Merge(dir string, dict *tags.Dictionary) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read output directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "output_") && strings.HasSuffix(name, ".jsonl") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var fragments []fragment
	for _, name := range names {
		fs, err := readFragments(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		fragments = append(fragments, fs...)
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].seq < fragments[j].seq
	})

	var sb strings.Builder
	for _, f := range fragments {
		sb.WriteString(dict.Restore(postprocess.Clean(f.content)))
	}
	return sb.String(), nil
}

// MergeToFile writes the merged text to outPath.
func MergeToFile(dir, outPath string, dict *tags.Dictionary) error {
	text, err := Merge(dir, dict)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write merged output: %w", err)
	}
	return nil
}

// readFragments collects assistant message contents from one output file.
// Lines without a custom_id or an assistant choice are skipped.
func readFragments(path string) ([]fragment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var fragments []fragment
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec outputRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("invalid record in %s: %w", path, err)
		}
		seq, ok := numericID(rec.CustomID)
		if !ok {
			continue
		}
		for _, choice := range rec.Response.Body.Choices {
			if choice.Message.Role != "assistant" {
				continue
			}
			fragments = append(fragments, fragment{seq: seq, content: choice.Message.Content})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fragments, nil
}

func numericID(customID string) (int, bool) {
	m := reNumericID.FindString(customID)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
