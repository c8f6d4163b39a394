package keyword

import (
	"regexp"
	"strings"
)

// Stop words dropped from queries
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "what": true, "how": true, "about": true,
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize splits text into lower-cased runs of letters and digits.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// queryTokens tokenizes a query, removing stop words and duplicates while
// keeping first-seen order.
func queryTokens(query string) []string {
	tokens := Tokenize(query)
	seen := make(map[string]bool, len(tokens))
	filtered := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		filtered = append(filtered, tok)
	}
	return filtered
}

// tokenSet returns the distinct tokens of the given texts.
func tokenSet(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			set[tok] = struct{}{}
		}
	}
	return set
}
