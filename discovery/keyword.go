package discovery

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sciforge/toolbridge/protocol"
)

// keywordSearch ranks descriptors by case-insensitive token matches against
// name and description. It is the guaranteed-available baseline: zero
// external dependencies, never suspends on I/O.
func keywordSearch(query string, tools []protocol.ToolDescriptor) []Match {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	var matches []Match
	for _, d := range tools {
		name := strings.ToLower(d.Name)
		desc := strings.ToLower(d.Description)

		matched := 0
		nameHit := false
		for _, tok := range tokens {
			inName := strings.Contains(name, tok)
			if inName || strings.Contains(desc, tok) {
				matched++
			}
			if inName {
				nameHit = true
			}
		}
		if matched == 0 {
			continue
		}

		score := float64(matched) / float64(len(tokens))
		if nameHit {
			score += 0.25 // name hits outrank description-only hits
		}
		matches = append(matches, Match{
			Name:        d.Name,
			Description: d.Description,
			Score:       score,
			Method:      MethodKeyword,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})
	return matches
}

// tokenize lowercases the query and splits it on non-alphanumeric runes.
func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
