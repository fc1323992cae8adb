package discovery

import (
	"context"
	"fmt"

	"github.com/sciforge/toolbridge/protocol"
)

// Candidate is one tool offered to the ranker.
type Candidate struct {
	Name        string
	Description string
}

// Ranker asks a language-model capability to order candidates by relevance
// to the query, returning tool names best first. It only ever sees a bounded
// candidate set, never the full registry.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []Candidate, limit int) ([]string, error)
}

// semanticSearch pre-filters the scope through the keyword strategy to bound
// model cost, then lets the ranker select among the filtered candidates only.
func (f *Finder) semanticSearch(ctx context.Context, query string, scope []protocol.ToolDescriptor, limit int) ([]Match, error) {
	prefiltered := keywordSearch(query, scope)
	if len(prefiltered) > prefilterLimit {
		prefiltered = prefiltered[:prefilterLimit]
	}

	candidates := make([]Candidate, 0, prefilterLimit)
	byName := make(map[string]string, prefilterLimit)
	if len(prefiltered) > 0 {
		for _, m := range prefiltered {
			candidates = append(candidates, Candidate{Name: m.Name, Description: m.Description})
			byName[m.Name] = m.Description
		}
	} else {
		// Nothing matched by keyword; give the model a bounded slice of the
		// scope so it can still surface loosely-related tools.
		for i, d := range scope {
			if i >= prefilterLimit {
				break
			}
			candidates = append(candidates, Candidate{Name: d.Name, Description: d.Description})
			byName[d.Name] = d.Description
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	names, err := f.ranker.Rank(ctx, query, candidates, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}

	var matches []Match
	for i, name := range names {
		desc, ok := byName[name]
		if !ok {
			continue // the model may hallucinate names outside the candidate set
		}
		matches = append(matches, Match{
			Name:        name,
			Description: desc,
			Score:       float64(len(names)-i) / float64(len(names)),
			Method:      MethodSemantic,
		})
	}
	return matches, nil
}
