package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waivern/orchestrator/store"
	"github.com/waivern/orchestrator/types"
)

// conformance exercises the round-trip laws, idempotence properties, and
// key-sanitization invariants every ArtifactStore backend must satisfy
// (spec §8), independent of which backend is under test.
func conformance(t *testing.T, newStore func(t *testing.T) store.ArtifactStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("save then get round-trips", func(t *testing.T) {
		s := newStore(t)
		msg := types.Message{Content: map[string]any{"x": float64(1)}, Schema: "pii/1"}
		require.NoError(t, s.SaveArtifact(ctx, "run1", "a", msg))

		got, err := s.GetArtifact(ctx, "run1", "a")
		require.NoError(t, err)
		require.Equal(t, msg, got)
	})

	t.Run("get missing returns ArtifactNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetArtifact(ctx, "run1", "missing")
		require.Error(t, err)
		kind, ok := types.KindOf(err)
		require.True(t, ok)
		require.Equal(t, types.ErrArtifactNotFound, kind)
	})

	t.Run("repeated save is idempotent (upsert)", func(t *testing.T) {
		s := newStore(t)
		msg1 := types.Message{Content: "v1", Schema: "s/1"}
		msg2 := types.Message{Content: "v2", Schema: "s/1"}
		require.NoError(t, s.SaveArtifact(ctx, "run1", "a", msg1))
		require.NoError(t, s.SaveArtifact(ctx, "run1", "a", msg2))

		got, err := s.GetArtifact(ctx, "run1", "a")
		require.NoError(t, err)
		require.Equal(t, msg2, got)

		ids, err := s.ListArtifacts(ctx, "run1")
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, ids)
	})

	t.Run("list_artifacts reflects saves and deletes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveArtifact(ctx, "run1", "a", types.Message{Schema: "s/1"}))
		require.NoError(t, s.SaveArtifact(ctx, "run1", "b", types.Message{Schema: "s/1"}))

		ids, err := s.ListArtifacts(ctx, "run1")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"a", "b"}, ids)

		require.NoError(t, s.DeleteArtifact(ctx, "run1", "a"))
		ids, err = s.ListArtifacts(ctx, "run1")
		require.NoError(t, err)
		require.Equal(t, []string{"b"}, ids)
	})

	t.Run("delete of missing key is a no-op", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.DeleteArtifact(ctx, "run1", "never-existed"))
	})

	t.Run("clear_artifacts is idempotent and preserves system metadata", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveArtifact(ctx, "run1", "a", types.Message{Schema: "s/1"}))
		require.NoError(t, s.SaveRunMetadata(ctx, "run1", types.RunMetadata{RunID: "run1", RunbookName: "rb"}))

		require.NoError(t, s.ClearArtifacts(ctx, "run1"))
		require.NoError(t, s.ClearArtifacts(ctx, "run1"))

		ids, err := s.ListArtifacts(ctx, "run1")
		require.NoError(t, err)
		require.Empty(t, ids)

		meta, err := s.LoadRunMetadata(ctx, "run1")
		require.NoError(t, err)
		require.Equal(t, "rb", meta.RunbookName)
	})

	t.Run("hierarchical artifact ids round-trip", func(t *testing.T) {
		s := newStore(t)
		msg := types.Message{Content: "nested", Schema: "s/1"}
		require.NoError(t, s.SaveArtifact(ctx, "run1", "group/child", msg))
		got, err := s.GetArtifact(ctx, "run1", "group/child")
		require.NoError(t, err)
		require.Equal(t, msg, got)
	})

	t.Run("path traversal artifact ids are rejected", func(t *testing.T) {
		s := newStore(t)
		err := s.SaveArtifact(ctx, "run1", "../escape", types.Message{Schema: "s/1"})
		require.Error(t, err)
	})

	t.Run("run metadata round-trips", func(t *testing.T) {
		s := newStore(t)
		meta := types.RunMetadata{RunID: "run1", RunbookName: "rb", Status: types.RunStatusSuccess}
		require.NoError(t, s.SaveRunMetadata(ctx, "run1", meta))
		got, err := s.LoadRunMetadata(ctx, "run1")
		require.NoError(t, err)
		require.Equal(t, meta.RunbookName, got.RunbookName)
		require.Equal(t, meta.Status, got.Status)
	})

	t.Run("execution state round-trips", func(t *testing.T) {
		s := newStore(t)
		state := types.ExecutionState{Nodes: map[string]types.NodeStatus{"a": types.NodeStatusSuccess}}
		require.NoError(t, s.SaveExecutionState(ctx, "run1", state))
		got, err := s.LoadExecutionState(ctx, "run1")
		require.NoError(t, err)
		require.Equal(t, state.Nodes, got.Nodes)
	})

	t.Run("list_runs enumerates known runs", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveArtifact(ctx, "runA", "a", types.Message{Schema: "s/1"}))
		require.NoError(t, s.SaveRunMetadata(ctx, "runB", types.RunMetadata{RunID: "runB"}))

		runs, err := s.ListRuns(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"runA", "runB"}, runs)
	})
}

func TestMemoryStoreConformance(t *testing.T) {
	conformance(t, func(t *testing.T) store.ArtifactStore {
		return store.NewMemory()
	})
}

func TestFilesystemStoreConformance(t *testing.T) {
	conformance(t, func(t *testing.T) store.ArtifactStore {
		dir := t.TempDir()
		return store.NewFilesystem(dir)
	})
}

func TestFilesystemStoreNeverWritesOutsideBase(t *testing.T) {
	dir := t.TempDir()
	s := store.NewFilesystem(dir)
	ctx := context.Background()

	err := s.SaveArtifact(ctx, "run1", "../../escape", types.Message{Schema: "s/1"})
	require.Error(t, err)

	err = s.SaveArtifact(ctx, "../escape-run", "a", types.Message{Schema: "s/1"})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, "escape", e.Name())
	}
}

func TestFilesystemStoreAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	s := store.NewFilesystem(dir)
	ctx := context.Background()

	require.NoError(t, s.SaveArtifact(ctx, "run1", "a", types.Message{Content: "v1", Schema: "s/1"}))

	// No stray temp files should remain in the artifacts directory.
	artifactsDir := filepath.Join(dir, "runs", "run1", "artifacts")
	entries, err := os.ReadDir(artifactsDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp-")
	}
}
