/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/valpere/batchtran/internal/batch"
	"github.com/valpere/batchtran/internal/chunker"
	"github.com/valpere/batchtran/internal/detector"
	"github.com/valpere/batchtran/internal/lang"
	"github.com/valpere/batchtran/internal/openai"
	"github.com/valpere/batchtran/internal/tags"
	"github.com/valpere/batchtran/internal/tokenizer"
)

// newClient builds the API client from resolved configuration.
func newClient() (*openai.Client, error) {
	apiKey := viper.GetString("api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured (set --api-key, api_key in the config file, or BATCHTRAN_API_KEY)")
	}
	return openai.NewClient(openai.Config{
		APIKey:  apiKey,
		BaseURL: viper.GetString("base_url"),
	}), nil
}

// packResult is what packCorpus leaves on disk and reports back.
type packResult struct {
	Files      []string
	Requests   int
	Dict       *tags.Dictionary
	SourceLang string // detected ISO code, or "" when detection failed
	Excerpt    string
}

// packCorpus reads the input file, masks its markup, splits it into chunks
// and packs them into batch request files under outputDir. The tag
// dictionary is persisted next to the request files.
func packCorpus(inputFile, outputDir, targetLang, model string, chunkTokens int) (*packResult, error) {
	raw, err := os.ReadFile(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	text := string(raw)

	masked, dict := tags.Extract(text)
	fmt.Fprintf(os.Stderr, "Masked %d distinct spans\n", dict.Len())

	sourceLang := ""
	if detected, ok := detector.New().DetectISO(masked); ok {
		sourceLang = detected
		fmt.Fprintf(os.Stderr, "Detected source language: %s\n", sourceLang)
	}

	counter, err := tokenizer.ForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	prompt := batch.SystemPrompt(lang.Resolve(targetLang))

	// The per-request budget covers the system prompt and the request
	// overhead; only the remainder is available to chunk text. A corpus
	// that fits a single request is not split at all.
	budget := chunkTokens - counter.Count(prompt) - batch.DefaultRequestOverhead
	if budget <= 0 {
		return nil, fmt.Errorf("chunk budget of %d tokens is too small to fit the system prompt", chunkTokens)
	}
	if counter.Count(masked) <= chunkTokens {
		budget = 0 // single chunk
	}

	chunks := chunker.New(counter, chunkerConfig(budget)).Split(masked)
	fmt.Fprintf(os.Stderr, "Split corpus into %d chunks\n", len(chunks))

	builder := batch.NewBuilder(counter, batch.Config{
		OutputDir:    outputDir,
		Model:        model,
		SystemPrompt: prompt,
	})
	built, err := builder.Build(chunks, dict)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch files: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Packed %d requests into %d batch files\n", built.Requests, len(built.Files))

	return &packResult{
		Files:      built.Files,
		Requests:   built.Requests,
		Dict:       dict,
		SourceLang: sourceLang,
		Excerpt:    excerpt(text),
	}, nil
}

// chunkerConfig returns the splitter settings for a per-chunk token budget.
// The first masked placeholder is the continuation marker: when a chunk
// about to be sealed ends with it, the marker moves to the next chunk so
// its context is not stranded at the seal point.
func chunkerConfig(budget int) chunker.Config {
	return chunker.Config{
		MaxTokens:    budget,
		Continuation: tags.Placeholder(1),
	}
}

// excerpt returns the first few hundred runes of text for run journaling.
func excerpt(text string) string {
	const limit = 200
	runes := []rune(text)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}
