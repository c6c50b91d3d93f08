package executor

import (
	"strings"
	"time"

	"github.com/waivern/orchestrator/types"
)

// deriveOrigin classifies a namespaced artifact id per the flattening
// aliasing scheme: a parent artifact is "parent"; a child-expanded one
// is "child:<runbook_name>", with the runbook name read off the
// namespace prefix the planner wrote ("<name>__<hex>__<local_id>").
func deriveOrigin(id string, reversedAliases map[string]string) types.Origin {
	if _, ok := reversedAliases[id]; !ok {
		return types.ParentOrigin
	}
	name := id
	if idx := strings.Index(id, "__"); idx >= 0 {
		name = id[:idx]
	}
	return types.ChildOrigin(name)
}

// buildRunResult assembles the final RunResult from per-node results
// and terminal statuses. Status is success only if every node
// succeeded; partial if every non-success node is either skipped or a
// failed artifact marked optional: true; failed otherwise.
func buildRunResult(runID string, started time.Time, totalSeconds float64, artifacts map[string]types.ArtifactDefinition, results map[string]types.ArtifactResult, status map[string]types.NodeStatus) *types.RunResult {
	skipped := make([]string, 0)
	anyNonOptionalFailure := false
	anyFailure := false

	for id, st := range status {
		switch st {
		case types.NodeStatusSkipped:
			skipped = append(skipped, id)
		case types.NodeStatusFailed:
			anyFailure = true
			if !artifacts[id].Optional {
				anyNonOptionalFailure = true
			}
		}
	}

	runStatus := types.RunStatusSuccess
	switch {
	case anyNonOptionalFailure:
		runStatus = types.RunStatusFailed
	case anyFailure:
		runStatus = types.RunStatusPartial
	}

	return &types.RunResult{
		RunID:                runID,
		StartTimestamp:       started,
		TotalDurationSeconds: totalSeconds,
		Artifacts:            results,
		Skipped:              skipped,
		Status:               runStatus,
	}
}
