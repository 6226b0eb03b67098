// Package tags protects non-translatable spans (HTML/XML tags, newlines,
// quotation marks, numeric delimiter tokens) during translation by replacing
// them with numbered placeholders {{tag_1}}, {{tag_2}}, … that the model is
// instructed to preserve. After translation, Restore substitutes the spans
// back.
package tags

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

var (
	// spans that must never reach the translation model: markup tags,
	// newlines, double quotes, and N|||M delimiter tokens
	reSpan = regexp.MustCompile(`<[^>]+>|\n|"|\b\d+\|\|\|\d+\w*`)

	// placeholder reference in masked or translated text
	rePlaceholder = regexp.MustCompile(`\{\{tag_(\d+)\}\}`)
)

// Dictionary maps placeholder ids to the original spans they stand for.
// Ids are sequential starting at 1, assigned in first-occurrence order; a
// span value maps to exactly one id no matter how often it appears.
type Dictionary struct {
	spans []string       // spans[i] is the span for id i+1
	ids   map[string]int // span value -> id
}

// NewDictionary returns an empty Dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{ids: make(map[string]int)}
}

// Len returns the number of distinct spans captured.
func (d *Dictionary) Len() int {
	return len(d.spans)
}

// Span returns the original span for id, or false when id is out of range.
func (d *Dictionary) Span(id int) (string, bool) {
	if id < 1 || id > len(d.spans) {
		return "", false
	}
	return d.spans[id-1], true
}

// Placeholder returns the placeholder literal for id, e.g. "{{tag_3}}".
func Placeholder(id int) string {
	return fmt.Sprintf("{{tag_%d}}", id)
}

// add returns the id for span, assigning the next sequential id on first sight.
func (d *Dictionary) add(span string) int {
	if id, ok := d.ids[span]; ok {
		return id
	}
	d.spans = append(d.spans, span)
	id := len(d.spans)
	d.ids[span] = id
	return id
}

// Extract masks every non-translatable span in text with its placeholder and
// returns the masked text together with the dictionary needed to undo the
// masking. Repeated spans (compared by value, not position) reuse the id
// assigned at their first occurrence.
func Extract(text string) (string, *Dictionary) {
	dict := NewDictionary()
	masked := reSpan.ReplaceAllStringFunc(text, func(span string) string {
		return Placeholder(dict.add(span))
	})
	return masked, dict
}

// Restore substitutes every placeholder in text with its original span.
// Replacement is a single pass keyed on the full {{tag_N}} token, so an id
// that is a numeric prefix of another ("1" vs "10") can never collide.
// Placeholders with unknown ids are left as-is.
func (d *Dictionary) Restore(text string) string {
	return rePlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		sub := rePlaceholder.FindStringSubmatch(match)
		id, err := strconv.Atoi(sub[1])
		if err != nil {
			return match
		}
		span, ok := d.Span(id)
		if !ok {
			return match
		}
		return span
	})
}

// Save writes the dictionary to path as a JSON object keyed by placeholder,
// e.g. {"{{tag_1}}": "<b>"}. One dictionary is persisted per run.
func (d *Dictionary) Save(path string) error {
	m := make(map[string]string, len(d.spans))
	for i, span := range d.spans {
		m[Placeholder(i+1)] = span
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal tag dictionary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tag dictionary: %w", err)
	}
	return nil
}

// Load reads a dictionary previously written by Save.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag dictionary: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse tag dictionary: %w", err)
	}

	dict := NewDictionary()
	dict.spans = make([]string, len(m))
	for key, span := range m {
		sub := rePlaceholder.FindStringSubmatch(key)
		if sub == nil {
			return nil, fmt.Errorf("invalid placeholder key %q", key)
		}
		id, err := strconv.Atoi(sub[1])
		if err != nil || id < 1 || id > len(m) {
			return nil, fmt.Errorf("placeholder id %q out of range", sub[1])
		}
		dict.spans[id-1] = span
		dict.ids[span] = id
	}
	return dict, nil
}

// SplitOnPlaceholders partitions text into alternating literal and
// placeholder parts, preserving order. A placeholder is always returned as
// its own part so callers can treat it as atomic.
func SplitOnPlaceholders(text string) []string {
	var parts []string
	last := 0
	for _, loc := range rePlaceholder.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			parts = append(parts, text[last:loc[0]])
		}
		parts = append(parts, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		parts = append(parts, text[last:])
	}
	return parts
}

// IsPlaceholder reports whether s is exactly one placeholder token.
func IsPlaceholder(s string) bool {
	loc := rePlaceholder.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}
