// Package lang resolves operator-supplied target language values into the
// English display names used in translation prompts.
package lang

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Resolve turns a language value into an English display name. ISO codes and
// BCP 47 tags ("uk", "pt-BR") are expanded; anything that does not parse is
// assumed to already be a name ("Ukrainian") and is passed through.
func Resolve(value string) string {
	tag, err := language.Parse(value)
	if err != nil {
		return value
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return value
	}
	return name
}

// Code returns the canonical BCP 47 tag for a language value, accepting
// either a tag or an English display name. Used for journaling, where codes
// beat free-form names.
func Code(value string) (string, error) {
	if tag, err := language.Parse(value); err == nil {
		return tag.String(), nil
	}

	// Try matching the value as an English language name.
	want := strings.ToLower(strings.TrimSpace(value))
	namer := display.English.Languages()
	for _, tag := range displayCandidates {
		if strings.ToLower(namer.Name(tag)) == want {
			return tag.String(), nil
		}
	}

	return "", fmt.Errorf("unrecognized language %q", value)
}

// displayCandidates covers the languages the name lookup in Code recognizes.
// Tag values still work for everything x/text can parse.
var displayCandidates = []language.Tag{
	language.English,
	language.Ukrainian,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Portuguese,
	language.Polish,
	language.Czech,
	language.Dutch,
	language.Swedish,
	language.Norwegian,
	language.Danish,
	language.Finnish,
	language.Hungarian,
	language.Romanian,
	language.Bulgarian,
	language.Greek,
	language.Turkish,
	language.Russian,
	language.Arabic,
	language.Hebrew,
	language.Hindi,
	language.Chinese,
	language.Japanese,
	language.Korean,
	language.Vietnamese,
	language.Thai,
	language.Indonesian,
}
