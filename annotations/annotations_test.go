package annotations_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sciforge/toolbridge/annotations"
	"github.com/sciforge/toolbridge/protocol"
)

func boolPtr(b bool) *bool { return &b }

func TestResolve_DefaultWhenNoOverrides(t *testing.T) {
	t.Parallel()
	r := annotations.NewResolver(annotations.Tables{})

	a := r.Resolve(protocol.ToolDescriptor{Name: "anything"})
	require.True(t, a.ReadOnly)
	require.False(t, a.Destructive)
}

func TestResolve_PrecedenceChain(t *testing.T) {
	t.Parallel()
	r := annotations.NewResolver(annotations.Tables{
		Kinds: map[string]annotations.Override{
			"database-query": {ReadOnly: boolPtr(true), Destructive: boolPtr(false)},
		},
		Categories: map[string]annotations.Override{
			"admin": {ReadOnly: boolPtr(false)},
		},
		Tools: map[string]annotations.Override{
			"drop_dataset": {Destructive: boolPtr(true)},
		},
	})

	d := protocol.ToolDescriptor{Name: "drop_dataset", Category: "admin", Kind: "database-query"}
	a := r.Resolve(d)

	// Each field resolves independently: ReadOnly from the category level,
	// Destructive from the tool level.
	require.False(t, a.ReadOnly)
	require.True(t, a.Destructive)
}

func TestResolve_KindLevelFallback(t *testing.T) {
	t.Parallel()
	r := annotations.NewResolver(annotations.Tables{
		Kinds: map[string]annotations.Override{
			"mutation": {ReadOnly: boolPtr(false), Destructive: boolPtr(true)},
		},
	})

	a := r.Resolve(protocol.ToolDescriptor{Name: "update_record", Kind: "mutation"})
	require.False(t, a.ReadOnly)
	require.True(t, a.Destructive)

	// A tool of another kind still gets the defaults.
	b := r.Resolve(protocol.ToolDescriptor{Name: "get_record", Kind: "query"})
	require.True(t, b.ReadOnly)
	require.False(t, b.Destructive)
}

func TestResolver_InvalidateRecomputes(t *testing.T) {
	t.Parallel()
	r := annotations.NewResolver(annotations.Tables{})

	d := protocol.ToolDescriptor{Name: "tool", Category: "old"}
	require.True(t, r.Resolve(d).ReadOnly)

	// The descriptor moves to a category with an override; the cached value
	// holds until invalidation.
	r.Reload(annotations.Tables{
		Categories: map[string]annotations.Override{
			"new": {ReadOnly: boolPtr(false)},
		},
	})

	d.Category = "new"
	require.False(t, r.Resolve(d).ReadOnly)
}

func TestResolver_CacheServesRepeatLookups(t *testing.T) {
	t.Parallel()
	tables := annotations.Tables{
		Tools: map[string]annotations.Override{
			"tool": {Destructive: boolPtr(true)},
		},
	}
	r := annotations.NewResolver(tables)
	d := protocol.ToolDescriptor{Name: "tool"}

	first := r.Resolve(d)
	second := r.Resolve(d)
	require.Equal(t, first, second)

	r.Invalidate("tool")
	third := r.Resolve(d)
	require.Equal(t, first, third)
}
