package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/waivern/orchestrator/store"
	"github.com/waivern/orchestrator/types"
)

func TestListWarningThreshold(t *testing.T) {
	if listWarningThreshold != 100 {
		t.Errorf("listWarningThreshold = %d, want 100", listWarningThreshold)
	}
}

func seedMemoryStore(t *testing.T) store.ArtifactStore {
	t.Helper()
	st, err := store.New(context.Background(), store.Config{Type: store.BackendMemory})
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}

	now := time.Now()
	runs := []types.RunMetadata{
		{RunID: "run-a", RunbookName: "quarterly-review", Status: types.RunStatusSuccess, StartedAt: now.Add(-time.Hour)},
		{RunID: "run-b", RunbookName: "quarterly-review", Status: types.RunStatusFailed, StartedAt: now},
	}
	for _, meta := range runs {
		if err := st.SaveRunMetadata(context.Background(), meta.RunID, meta); err != nil {
			t.Fatalf("seed run metadata %q: %v", meta.RunID, err)
		}
	}
	return st
}

func newTestListApp(openStore func() (store.ArtifactStore, error)) *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{ListCommand(openStore)}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func TestListRunsAction_ReturnsSeededRuns(t *testing.T) {
	st := seedMemoryStore(t)
	defer func() { _ = st.Close() }()

	app := newTestListApp(func() (store.ArtifactStore, error) { return st, nil })
	if err := app.Run([]string{"waivern", "list", "runs"}); err != nil {
		t.Fatalf("list runs: %v", err)
	}
}

func TestListRunsAction_StatusFilter(t *testing.T) {
	st := seedMemoryStore(t)
	defer func() { _ = st.Close() }()

	app := newTestListApp(func() (store.ArtifactStore, error) { return st, nil })
	if err := app.Run([]string{"waivern", "list", "runs", "--status", "failed"}); err != nil {
		t.Fatalf("list runs --status failed: %v", err)
	}
}

func TestListRunsAction_OpenStoreError(t *testing.T) {
	app := newTestListApp(func() (store.ArtifactStore, error) {
		return nil, context.DeadlineExceeded
	})
	err := app.Run([]string{"waivern", "list", "runs"})
	if err == nil {
		t.Fatal("expected error when openStore fails")
	}
}

func TestListRunsAction_TUIUnsupported(t *testing.T) {
	st := seedMemoryStore(t)
	defer func() { _ = st.Close() }()

	app := newTestListApp(func() (store.ArtifactStore, error) { return st, nil })
	err := app.Run([]string{"waivern", "list", "runs", "--tui"})
	if err == nil {
		t.Fatal("expected error for --tui on list command")
	}
}
