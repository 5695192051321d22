package artifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type archivedPlan struct {
	ID      string   `json:"id"`
	Version string   `json:"version"`
	Tags    []string `json:"tags"`
}

func TestArchive_PutLoad(t *testing.T) {
	ctx := context.Background()
	archive := NewArchive(nil)

	in := archivedPlan{ID: "cc-1", Version: "1.0.0", Tags: []string{"q3"}}
	ref, err := archive.Put(ctx, KindCommandCenter, in)
	require.NoError(t, err)

	var out archivedPlan
	kind, err := archive.Load(ctx, ref, &out)
	require.NoError(t, err)
	require.Equal(t, KindCommandCenter, kind)
	require.Equal(t, in, out)
}

func TestArchive_PutIsCanonical(t *testing.T) {
	ctx := context.Background()
	archive := NewArchive(NewMemoryStore())

	a, err := archive.Put(ctx, KindGovernanceRecord, map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	b, err := archive.Put(ctx, KindGovernanceRecord, map[string]any{"a": "x", "b": 1.0})
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := archive.Put(ctx, KindCommandCenter, map[string]any{"a": "x", "b": 1})
	require.NoError(t, err)
	require.NotEqual(t, a, c, "kind is part of the archived bytes")

	require.Equal(t, 2, archive.Store().(*MemoryStore).Len())
}

func TestArchive_Errors(t *testing.T) {
	ctx := context.Background()
	archive := NewArchive(nil)

	_, err := archive.Put(ctx, "", map[string]any{})
	require.Error(t, err)

	_, err = archive.Put(ctx, KindCommandCenter, func() {})
	require.Error(t, err)

	_, err = archive.Load(ctx, Ref([]byte("missing")), nil)
	require.ErrorIs(t, err, ErrNotFound)
}
