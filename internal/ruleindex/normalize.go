package ruleindex

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "for": {}, "from": {}, "in": {},
	"is": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "with": {},
}

// Normalize folds case, strips punctuation and drops stop-words so that
// superficially different but equivalent queries share cache entries.
func Normalize(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(' ')
	}
	fields := strings.Fields(sb.String())
	kept := fields[:0]
	for _, token := range fields {
		if _, ok := stopWords[token]; ok {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}
