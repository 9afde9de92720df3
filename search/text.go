package search

import "strings"

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "how": true, "should": true,
	"can": true, "i": true, "my": true, "me": true, "does": true, "when": true,
	"which": true, "who": true, "why": true, "or": true, "if": true,
}

// QueryTerms returns the lowercased significant words of text with
// punctuation and stop words removed.
func QueryTerms(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// ContainsAllQueryWords reports whether document contains every significant
// word of query. A query with no significant words matches nothing.
func ContainsAllQueryWords(document, query string) bool {
	queryWords := QueryTerms(query)
	if len(queryWords) == 0 {
		return false
	}

	docWords := QueryTerms(document)
	docWordSet := make(map[string]bool, len(docWords))
	for _, word := range docWords {
		docWordSet[word] = true
	}

	for _, qWord := range queryWords {
		if !docWordSet[qWord] {
			return false
		}
	}

	return true
}
