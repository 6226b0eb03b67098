// Package postprocess removes artifacts batch models leave in their output.
//
// It is deliberately minimal: the merge contract is byte-exact restoration
// of untranslated spans, so anything beyond stripping the known escaped-quote
// artifact would corrupt the round trip.
package postprocess

import "regexp"

// escapedQuoteRe matches a literal backslash-quote pair the model sometimes
// emits when echoing quoted source text.
var escapedQuoteRe = regexp.MustCompile(`\\"`)

// Clean strips escaped-quote artifacts from text.
func Clean(text string) string {
	return escapedQuoteRe.ReplaceAllString(text, "")
}
