package hook

import (
	"context"
	"fmt"

	"github.com/sciforge/toolbridge/engine"
)

// newPersistRule builds the size-conditioned persistence rule: outputs over
// the threshold are written to the artifact side-channel and replaced by a
// small pointer record the client can dereference via artifact/get.
func newPersistRule(r Rule, p *Pipeline) applyFunc {
	return func(ctx context.Context, out engine.Output, call CallInfo) (engine.Output, error) {
		if p.store == nil {
			return engine.Output{}, fmt.Errorf("persist rule has no artifact store configured")
		}

		text := out.Text()
		artifact, err := p.store.Put(ctx, call.Tool, text)
		if err != nil {
			return engine.Output{}, fmt.Errorf("storing artifact: %w", err)
		}

		record := map[string]interface{}{
			"artifactId": artifact.ID,
			"tool":       artifact.Tool,
			"size":       len(text),
			"storedAt":   artifact.CreatedAt,
			"hint":       "output exceeded the inline size limit; fetch the full payload via artifact/get",
		}
		if !artifact.ExpiresAt.IsZero() {
			record["expiresAt"] = artifact.ExpiresAt
		}
		return engine.Structured(record), nil
	}
}
