// Package search implements item and client search over live catalog
// snapshots.
package search

import (
	"regexp"
	"strings"
)

var wordRE = regexp.MustCompile(`[^a-z0-9]+`)

// ParsedQuery is a search query split into inclusion and exclusion terms.
// Phrase is the positive part of the query joined back together; an item
// containing it verbatim gets a ranking bonus.
type ParsedQuery struct {
	Positive []string
	Negative []string
	Phrase   string
}

// ParseQuery lowercases q and splits it into terms. A term starting with "-"
// excludes items containing it; everything else is a positive term. Positive
// terms are further split on non-alphanumeric runs, so "ul/fm" matches items
// containing "ul" and "fm".
func ParseQuery(q string) ParsedQuery {
	var parsed ParsedQuery

	var positiveParts []string
	for _, term := range strings.Fields(strings.ToLower(q)) {
		if strings.HasPrefix(term, "-") && len(term) > 1 {
			parsed.Negative = append(parsed.Negative, term[1:])
			continue
		}
		positiveParts = append(positiveParts, term)
	}

	parsed.Phrase = strings.Join(positiveParts, " ")
	for _, word := range wordRE.Split(parsed.Phrase, -1) {
		if word != "" {
			parsed.Positive = append(parsed.Positive, word)
		}
	}
	return parsed
}
