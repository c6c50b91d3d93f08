package notify

import (
	"testing"
	"time"

	"github.com/waivern/orchestrator/types"
)

func TestEventFromResult(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	result := &types.RunResult{
		RunID:                "run-123",
		StartTimestamp:       started,
		TotalDurationSeconds: 12.5,
		Artifacts: map[string]types.ArtifactResult{
			"raw":       {ArtifactID: "raw", Success: true},
			"processed": {ArtifactID: "processed", Success: true},
		},
		Skipped: []string{"optional_report"},
		Status:  types.RunStatusPartial,
	}

	event := EventFromResult("quarterly-review", result)

	if event.RunID != "run-123" {
		t.Errorf("RunID = %q, want run-123", event.RunID)
	}
	if event.RunbookName != "quarterly-review" {
		t.Errorf("RunbookName = %q, want quarterly-review", event.RunbookName)
	}
	if event.Status != types.RunStatusPartial {
		t.Errorf("Status = %q, want partial", event.Status)
	}
	if event.StartTimestamp != "2026-03-01T09:30:00Z" {
		t.Errorf("StartTimestamp = %q, want 2026-03-01T09:30:00Z", event.StartTimestamp)
	}
	if event.ArtifactCount != 2 {
		t.Errorf("ArtifactCount = %d, want 2", event.ArtifactCount)
	}
	if event.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", event.SkippedCount)
	}
	if event.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 (partial)", event.ExitCode)
	}
}
