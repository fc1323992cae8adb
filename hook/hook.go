// Package hook implements the output post-processing pipeline. Rules are an
// explicit priority-sorted list evaluated by one dispatcher; the pipeline is
// fail-open and never turns a successful tool call into a failed one.
package hook

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sciforge/toolbridge/engine"
	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/types"
)

// Type identifies a rule implementation.
type Type string

const (
	// TypeSummarize replaces large text outputs with a shorter synthesized
	// version produced by a summarizer tool.
	TypeSummarize Type = "summarize"
	// TypePersist writes large outputs to the artifact side-channel and
	// returns a small pointer record instead of the raw payload.
	TypePersist Type = "persist"
)

// DefaultNestedTimeout bounds tool calls issued from inside a rule. It must
// stay shorter than the outer call ceiling so a hung nested tool cannot
// block the outer response indefinitely.
const DefaultNestedTimeout = 15 * time.Second

// Conditions are predicates over the pending result that decide whether a
// rule runs for a given call.
type Conditions struct {
	// MinOutputLength enables the rule only when the candidate output is
	// strictly longer than this many characters. Zero disables the check.
	MinOutputLength int `json:"minOutputLength" yaml:"min_output_length"`
	// Tools restricts the rule to the named tools. Empty means all tools.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// Rule is one configured post-processing step.
type Rule struct {
	Name       string                 `json:"name" yaml:"name"`
	Type       Type                   `json:"type" yaml:"type"`
	Conditions Conditions             `json:"conditions" yaml:"conditions"`
	Config     map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	Priority   int                    `json:"priority" yaml:"priority"`
}

// ToolInvoker runs nested tool calls issued by rules (e.g. a summarization
// rule calling a summarizer tool). Implementations route back through the
// execution engine.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool string, args map[string]interface{}) (engine.Output, error)
}

// CallInfo describes the call whose result is being post-processed.
type CallInfo struct {
	Tool string
	Args map[string]interface{}
}

type applyFunc func(ctx context.Context, out engine.Output, call CallInfo) (engine.Output, error)

type boundRule struct {
	Rule
	apply applyFunc
}

// Pipeline evaluates the configured rules against successful results.
type Pipeline struct {
	rules         []boundRule
	logger        types.Logger
	invoker       ToolInvoker
	store         *ArtifactStore
	nestedTimeout time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger provides an option to set a custom logger.
func WithLogger(logger types.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInvoker wires the nested-call path back into the execution engine.
func WithInvoker(inv ToolInvoker) PipelineOption {
	return func(p *Pipeline) { p.invoker = inv }
}

// WithArtifactStore supplies the side-channel used by persist rules.
func WithArtifactStore(store *ArtifactStore) PipelineOption {
	return func(p *Pipeline) { p.store = store }
}

// WithNestedTimeout overrides the ceiling for rule-issued tool calls.
func WithNestedTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.nestedTimeout = d
		}
	}
}

// NewPipeline binds the rule list. Rules execute in ascending priority order;
// ties break by name so the order is deterministic.
func NewPipeline(rules []Rule, opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{
		logger:        logx.Nop(),
		nestedTimeout: DefaultNestedTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, r := range rules {
		var apply applyFunc
		switch r.Type {
		case TypeSummarize:
			s, err := newSummarizeRule(r, p)
			if err != nil {
				return nil, fmt.Errorf("hook rule %q: %w", r.Name, err)
			}
			apply = s
		case TypePersist:
			apply = newPersistRule(r, p)
		default:
			return nil, fmt.Errorf("hook rule %q: unknown type %q", r.Name, r.Type)
		}
		p.rules = append(p.rules, boundRule{Rule: r, apply: apply})
	}

	sort.SliceStable(p.rules, func(i, j int) bool {
		if p.rules[i].Priority != p.rules[j].Priority {
			return p.rules[i].Priority < p.rules[j].Priority
		}
		return p.rules[i].Name < p.rules[j].Name
	})
	return p, nil
}

// Apply runs every matching rule against the result, each receiving the
// previous rule's output as its input. A rule that errors is logged and
// skipped, and the pre-rule value flows on unchanged (fail-open).
func (p *Pipeline) Apply(ctx context.Context, res *engine.Result, call CallInfo) *engine.Result {
	out := res.Output
	for i := range p.rules {
		r := &p.rules[i]
		if !r.matches(out, call) {
			continue
		}
		next, err := r.apply(ctx, out, call)
		if err != nil {
			p.logger.Warn("hook rule failed, passing result through",
				"rule", r.Name, "tool", call.Tool, "error", err)
			continue
		}
		out = next
	}

	final := *res
	final.Output = out
	return &final
}

func (r *boundRule) matches(out engine.Output, call CallInfo) bool {
	if len(r.Conditions.Tools) > 0 {
		found := false
		for _, t := range r.Conditions.Tools {
			if t == call.Tool {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Conditions.MinOutputLength > 0 && len(out.Text()) <= r.Conditions.MinOutputLength {
		return false
	}
	return true
}

// invoke runs a nested tool call under the pipeline's independent timeout.
func (p *Pipeline) invoke(ctx context.Context, tool string, args map[string]interface{}) (engine.Output, error) {
	if p.invoker == nil {
		return engine.Output{}, fmt.Errorf("no tool invoker configured")
	}
	nestedCtx, cancel := context.WithTimeout(ctx, p.nestedTimeout)
	defer cancel()
	return p.invoker.Invoke(nestedCtx, tool, args)
}
