package executor

import (
	"fmt"

	"github.com/waivern/orchestrator/types"
)

func upstreamMissingErr(artifactID, inputID string) error {
	return types.NewError(types.ErrArtifactNotFound,
		fmt.Sprintf("artifact %q: upstream artifact %q missing from store", artifactID, inputID))
}

func reuseTargetMissingErr(fromRun, artifact string) error {
	return types.NewError(types.ErrReuseTargetMissing,
		fmt.Sprintf("reuse target %q/%q not found", fromRun, artifact))
}

func schemaViolationErr(artifactID string, want, got types.Schema) error {
	return types.NewError(types.ErrSchemaViolation,
		fmt.Sprintf("artifact %q: producer returned schema %q, plan declared %q", artifactID, got, want))
}

func producerErr(artifactID string, cause error) error {
	return types.NewError(types.ErrProducerError,
		fmt.Sprintf("artifact %q: producer error: %v", artifactID, cause))
}

func producerNotFoundErr(kind, typ string) error {
	return types.NewError(types.ErrProducerNotFound,
		fmt.Sprintf("no %s registered for type %q", kind, typ))
}

func timeoutErr() error {
	return types.NewError(types.ErrTimeout, "run exceeded config.timeout_seconds")
}

func budgetExceededErr() error {
	return types.NewError(types.ErrBudgetExceeded, "run exceeded config.cost_limit")
}
