// Package notify defines the run-completion notification boundary.
//
// Notifiers publish a best-effort event once a run reaches a terminal
// RunResult; the executor never blocks on or fails a run because a
// notifier errored. Configuration is supplied by callers; this package
// owns only the publish contract and the event shape.
package notify

import (
	"context"

	"github.com/waivern/orchestrator/types"
)

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	RunID                string          `json:"run_id"`
	RunbookName          string          `json:"runbook_name"`
	Status               types.RunStatus `json:"status"`
	StartTimestamp       string          `json:"start_timestamp"`
	TotalDurationSeconds float64         `json:"total_duration_seconds"`
	ArtifactCount        int             `json:"artifact_count"`
	SkippedCount         int             `json:"skipped_count"`
	ExitCode             int             `json:"exit_code"`
}

// EventFromResult builds a RunCompletedEvent from a finished RunResult.
func EventFromResult(runbookName string, r *types.RunResult) *RunCompletedEvent {
	return &RunCompletedEvent{
		RunID:                r.RunID,
		RunbookName:          runbookName,
		Status:               r.Status,
		StartTimestamp:       r.StartTimestamp.Format("2006-01-02T15:04:05Z07:00"),
		TotalDurationSeconds: r.TotalDurationSeconds,
		ArtifactCount:        len(r.Artifacts),
		SkippedCount:         len(r.Skipped),
		ExitCode:             r.ExitCode(),
	}
}

// Notifier publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Notifier interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases notifier resources.
	Close() error
}
