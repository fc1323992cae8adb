// Package discovery implements natural-language tool search over the
// registry using a tiered fallback of matching strategies: keyword matching
// (always available), embedding similarity (when an index has been built),
// and language-model ranking (when a ranker capability is configured).
package discovery

import (
	"context"

	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/registry"
	"github.com/sciforge/toolbridge/types"
)

// Method names a search strategy.
type Method string

const (
	MethodAuto      Method = "auto"
	MethodKeyword   Method = "keyword"
	MethodEmbedding Method = "embedding"
	MethodSemantic  Method = "semantic"
)

// DefaultLimit caps result sets when the caller does not specify one.
const DefaultLimit = 10

// prefilterLimit bounds the candidate set handed to the semantic ranker so
// per-query model cost stays bounded regardless of registry size.
const prefilterLimit = 25

// Match is one discovery hit, tagged with the strategy that produced it.
type Match struct {
	Name        string
	Description string
	Score       float64
	Method      Method
}

// Result is the ordered, deduplicated answer to one query.
type Result struct {
	Matches      []Match
	Method       Method
	TotalMatches int
}

// Finder selects a strategy per query and runs it against the store.
type Finder struct {
	store    *registry.Store
	index    *EmbeddingIndex
	ranker   Ranker
	logger   types.Logger
	advanced bool
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithIndex supplies a prebuilt embedding index, enabling the embedding strategy.
func WithIndex(ix *EmbeddingIndex) FinderOption {
	return func(f *Finder) { f.index = ix }
}

// WithRanker supplies a language-model ranker, enabling the semantic strategy.
func WithRanker(r Ranker) FinderOption {
	return func(f *Finder) { f.ranker = r }
}

// WithAdvancedSearch makes auto mode prefer the richer strategies when they
// are available instead of defaulting to keyword matching.
func WithAdvancedSearch(enabled bool) FinderOption {
	return func(f *Finder) { f.advanced = enabled }
}

// WithLogger provides an option to set a custom logger.
func WithLogger(logger types.Logger) FinderOption {
	return func(f *Finder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFinder creates a Finder over the store.
func NewFinder(store *registry.Store, opts ...FinderOption) *Finder {
	f := &Finder{store: store, logger: logx.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find answers one query. An explicitly requested method that is unavailable
// degrades to keyword matching rather than erroring, as does a runtime
// failure in an external strategy; the keyword path itself never does I/O.
func (f *Finder) Find(ctx context.Context, query string, categories []string, limit int, method Method) (*Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var filter *protocol.ListFilter
	if len(categories) > 0 {
		filter = &protocol.ListFilter{Categories: categories}
	}
	scope := f.store.List(filter)

	chosen := f.choose(method)
	matches, err := f.run(ctx, chosen, query, scope, limit)
	if err != nil {
		f.logger.Warn("search strategy failed, falling back to keyword",
			"method", chosen, "error", err)
		chosen = MethodKeyword
		matches = keywordSearch(query, scope)
	}

	matches = dedupe(matches)
	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	for i := range matches {
		matches[i].Method = chosen
	}

	return &Result{Matches: matches, Method: chosen, TotalMatches: total}, nil
}

// choose picks the strategy for this query. Auto mode defaults to keyword;
// with advanced search enabled it prefers embedding, then semantic, then
// keyword, falling down the list on unavailability. The advanced ordering is
// deliberate: keyword is the guaranteed floor every tier degrades to, not
// the preferred tier (see DESIGN.md).
func (f *Finder) choose(requested Method) Method {
	switch requested {
	case MethodEmbedding:
		if f.index != nil {
			return MethodEmbedding
		}
		f.logger.Debug("embedding search unavailable, using keyword")
		return MethodKeyword
	case MethodSemantic:
		if f.ranker != nil {
			return MethodSemantic
		}
		f.logger.Debug("semantic search unavailable, using keyword")
		return MethodKeyword
	case MethodKeyword:
		return MethodKeyword
	default: // auto
		if !f.advanced {
			return MethodKeyword
		}
		if f.index != nil {
			return MethodEmbedding
		}
		if f.ranker != nil {
			return MethodSemantic
		}
		return MethodKeyword
	}
}

func (f *Finder) run(ctx context.Context, method Method, query string, scope []protocol.ToolDescriptor, limit int) ([]Match, error) {
	switch method {
	case MethodEmbedding:
		return f.index.Search(ctx, query, limit, nameSet(scope))
	case MethodSemantic:
		return f.semanticSearch(ctx, query, scope, limit)
	default:
		return keywordSearch(query, scope), nil
	}
}

// dedupe keeps the first (highest-ranked) match per tool name.
func dedupe(matches []Match) []Match {
	seen := make(map[string]bool, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		out = append(out, m)
	}
	return out
}

func nameSet(tools []protocol.ToolDescriptor) map[string]bool {
	set := make(map[string]bool, len(tools))
	for _, d := range tools {
		set[d.Name] = true
	}
	return set
}
