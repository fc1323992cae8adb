package hook

import (
	"context"
	"fmt"
	"strings"

	"github.com/sciforge/toolbridge/engine"
)

// newSummarizeRule builds the size-conditioned summarization rule. Its config
// names the summarizer tool to call:
//
//	config:
//	  tool: summarize_text   # required
//	  instructions: ...      # optional, forwarded to the summarizer
//
// Outputs at or below the rule's length threshold never reach apply, so they
// pass through byte-for-byte.
func newSummarizeRule(r Rule, p *Pipeline) (applyFunc, error) {
	tool, _ := r.Config["tool"].(string)
	if tool == "" {
		return nil, fmt.Errorf("summarize rule requires config.tool (the summarizer tool name)")
	}
	instructions, _ := r.Config["instructions"].(string)

	return func(ctx context.Context, out engine.Output, call CallInfo) (engine.Output, error) {
		args := map[string]interface{}{
			"text": out.Text(),
		}
		if instructions != "" {
			args["instructions"] = instructions
		}

		summary, err := p.invoke(ctx, tool, args)
		if err != nil {
			return engine.Output{}, fmt.Errorf("summarizer %q: %w", tool, err)
		}
		text := strings.TrimSpace(summary.Text())
		if text == "" {
			return engine.Output{}, fmt.Errorf("summarizer %q returned an empty summary", tool)
		}
		return engine.Text(text), nil
	}, nil
}
