// Package store implements the run-scoped artifact store: persistence
// for artifacts, execution state, and run metadata, per spec §4.1. The
// store itself holds no current-run state — every operation is keyed by
// a caller-supplied run_id, which is what makes a single store instance
// safe to share as a singleton across concurrent runs.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/waivern/orchestrator/types"
)

// ArtifactStore is the semantic persistence API the executor uses. Every
// call is fallible: backend I/O failures return a StoreError-kinded
// *types.EngineError, and a missing named item returns an
// ArtifactNotFound-kinded one.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, runID, id string, msg types.Message) error
	GetArtifact(ctx context.Context, runID, id string) (types.Message, error)
	ArtifactExists(ctx context.Context, runID, id string) (bool, error)
	DeleteArtifact(ctx context.Context, runID, id string) error
	ListArtifacts(ctx context.Context, runID string) ([]string, error)
	ClearArtifacts(ctx context.Context, runID string) error

	SaveExecutionState(ctx context.Context, runID string, state types.ExecutionState) error
	LoadExecutionState(ctx context.Context, runID string) (types.ExecutionState, error)

	SaveRunMetadata(ctx context.Context, runID string, meta types.RunMetadata) error
	LoadRunMetadata(ctx context.Context, runID string) (types.RunMetadata, error)

	ListRuns(ctx context.Context) ([]string, error)

	// Close releases backend resources (connections, file handles). Safe
	// to call on backends that hold none.
	Close() error
}

// notFound builds an ArtifactNotFound error for a given (runID, id).
func notFound(runID, id string) error {
	return types.NewError(types.ErrArtifactNotFound,
		fmt.Sprintf("artifact %q not found in run %q", id, runID))
}

// storeErr wraps a backend failure as a fatal StoreError.
func storeErr(op string, err error) error {
	return types.NewError(types.ErrStoreError, fmt.Sprintf("%s: %v", op, err))
}

// SanitizeKey validates a run id or artifact id segment before it is
// joined into any backend's namespace (filesystem path, S3 key prefix,
// or Redis key). It rejects empty segments, absolute paths, and ".."
// components so a hierarchical artifact id can never escape its run's
// namespace — this is the generalized form of "the filesystem backend
// never writes outside <base>/runs/<run_id>/".
func SanitizeKey(s string) error {
	if s == "" {
		return fmt.Errorf("key must be non-empty")
	}
	if strings.HasPrefix(s, "/") {
		return fmt.Errorf("key %q must not be absolute", s)
	}
	for _, part := range strings.Split(s, "/") {
		switch part {
		case "":
			return fmt.Errorf("key %q must not contain empty path segments", s)
		case ".", "..":
			return fmt.Errorf("key %q must not contain %q path segments", s, part)
		}
	}
	return nil
}
