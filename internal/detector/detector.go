// Package detector identifies the source language of a corpus before it is
// packed into batch requests, so the run journal records what was actually
// translated.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"

	"github.com/valpere/batchtran/internal/tags"
)

// sampleLimit caps how many runes are fed to the detector. Corpora run to
// megabytes and a prefix is enough to identify the language.
const sampleLimit = 4096

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

// Detect reports the language of text. Placeholder tokens left by masking
// are stripped first so they cannot skew detection.
func (d *Detector) Detect(text string) (lingua.Language, bool) {
	s := sample(text)
	if s == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(s)
}

// DetectISO returns the ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

func sample(text string) string {
	var sb strings.Builder
	for _, part := range tags.SplitOnPlaceholders(text) {
		if tags.IsPlaceholder(part) {
			sb.WriteString(" ")
			continue
		}
		sb.WriteString(part)
		if sb.Len() >= sampleLimit*4 {
			break
		}
	}
	runes := []rune(sb.String())
	if len(runes) > sampleLimit {
		runes = runes[:sampleLimit]
	}
	return strings.TrimSpace(string(runes))
}
