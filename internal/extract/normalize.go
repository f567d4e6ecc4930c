package extract

import (
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Only the entities that actually appear in provider notification
	// templates are decoded; anything else stays literal.
	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&zwnj;", "",
		"&amp;", "&",
	)
)

// Normalize flattens decoded message text for the heuristics: strips
// HTML tags, decodes the fixed entity set, collapses whitespace runs
// to single spaces and trims.
func Normalize(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = entityReplacer.Replace(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
