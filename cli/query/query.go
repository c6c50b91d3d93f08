// Package query implements the read-side data access layer for the
// waivern CLI's list and inspect commands. Every query is backed by a
// store.ArtifactStore — there is no stub or mock data path; what the CLI
// shows is exactly what a run persisted.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/waivern/orchestrator/store"
	"github.com/waivern/orchestrator/types"
)

// RunSummary is the thin, list-level view of a run.
type RunSummary struct {
	RunID       string     `json:"run_id"`
	RunbookName string     `json:"runbook_name"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// ListRunsOptions filters and bounds a ListRuns query.
type ListRunsOptions struct {
	// Status filters to a single types.RunStatus value; empty means no filter.
	Status string
	// Limit caps the number of returned summaries; 0 means no limit.
	Limit int
}

// ListRuns returns a run summary per run recorded in the store, most
// recently started first.
func ListRuns(ctx context.Context, st store.ArtifactStore, opts ListRunsOptions) ([]RunSummary, error) {
	ids, err := st.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		meta, err := st.LoadRunMetadata(ctx, id)
		if err != nil {
			if kind, ok := types.KindOf(err); ok && kind == types.ErrArtifactNotFound {
				continue
			}
			return nil, fmt.Errorf("load run metadata %q: %w", id, err)
		}
		if opts.Status != "" && string(meta.Status) != opts.Status {
			continue
		}
		summaries = append(summaries, RunSummary{
			RunID:       meta.RunID,
			RunbookName: meta.RunbookName,
			Status:      string(meta.Status),
			StartedAt:   meta.StartedAt,
			FinishedAt:  meta.FinishedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})

	if opts.Limit > 0 && len(summaries) > opts.Limit {
		summaries = summaries[:opts.Limit]
	}

	return summaries, nil
}

// RunInspection is the deep, single-run view used by `inspect run`.
type RunInspection struct {
	RunID         string                       `json:"run_id"`
	RunbookName   string                       `json:"runbook_name"`
	Status        string                       `json:"status"`
	StartedAt     time.Time                    `json:"started_at"`
	FinishedAt    *time.Time                   `json:"finished_at,omitempty"`
	Nodes         map[string]types.NodeStatus  `json:"nodes,omitempty"`
	ArtifactCount int                          `json:"artifact_count"`
	Artifacts     []string                     `json:"artifacts,omitempty"`
}

// InspectRun loads a run's metadata, execution state, and artifact
// listing from the store.
func InspectRun(ctx context.Context, st store.ArtifactStore, runID string) (*RunInspection, error) {
	meta, err := st.LoadRunMetadata(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run metadata %q: %w", runID, err)
	}

	inspection := &RunInspection{
		RunID:       meta.RunID,
		RunbookName: meta.RunbookName,
		Status:      string(meta.Status),
		StartedAt:   meta.StartedAt,
		FinishedAt:  meta.FinishedAt,
	}

	if state, err := st.LoadExecutionState(ctx, runID); err == nil {
		inspection.Nodes = state.Nodes
	} else if kind, ok := types.KindOf(err); !ok || kind != types.ErrArtifactNotFound {
		return nil, fmt.Errorf("load execution state %q: %w", runID, err)
	}

	artifacts, err := st.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts %q: %w", runID, err)
	}
	inspection.Artifacts = artifacts
	inspection.ArtifactCount = len(artifacts)

	return inspection, nil
}
