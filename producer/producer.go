// Package producer defines the external producer plugin contract: the
// uniform interface the planner and executor use to resolve and invoke
// connectors and processors, per spec §6.
//
// Connectors and processors are out of the engine's scope — this package
// only fixes the shape the core depends on. A connector is a Producer
// invoked with no inputs; a processor is a Producer invoked with an
// ordered list of input messages matching its declared input schemas.
package producer

import (
	"context"

	"github.com/waivern/orchestrator/types"
)

// Context carries everything a producer needs to do its work without
// reaching into the engine's internals.
type Context struct {
	RunID      string
	ArtifactID string
	Properties map[string]any

	// Cancellation is closed when the executor cancels the run (timeout,
	// budget exceeded, or external stop request). Producers should treat
	// it as advisory and stop promptly, but are not required to.
	Cancellation <-chan struct{}

	// SensitiveInputs lists which of Inputs (by index, for processors)
	// were derived from a declaration marked sensitive: true. Connectors
	// always receive an empty slice.
	SensitiveInputs []bool
}

// Producer is the uniform shape both connectors (no inputs) and
// processors (ordered inputs) satisfy.
type Producer interface {
	// Name identifies the producer for logging and error messages.
	Name() string

	// SupportedOutputSchemas lists the schema ids this producer can
	// declare as output. A producer with exactly one entry needs no
	// output_schema override in the artifact definition; one with more
	// than one requires the runbook to disambiguate.
	SupportedOutputSchemas() []types.Schema

	// SupportedInputSchemas lists the accepted input combinations. Each
	// inner slice is one acceptable combination (order-independent — the
	// planner compares as an unordered multiset). Connectors return nil.
	SupportedInputSchemas() [][]types.Schema

	// Produce runs the producer. inputs is nil for connectors and an
	// ordered slice (matching the artifact definition's Inputs order,
	// after any "concatenate" merge has already been applied by the
	// caller) for processors.
	Produce(ctx context.Context, pctx Context, inputs []types.Message) (types.Message, error)
}

// Kind distinguishes the two roles a Producer can be resolved under. The
// factory protocol is keyed by (Kind, Type) exactly as spec §6 describes.
type Kind string

const (
	KindConnector Kind = "connector"
	KindProcessor Kind = "processor"
)

// Factory resolves a producer implementation by kind and type. This is
// the dependency-injection boundary the planner and executor receive
// explicitly at construction — never a global registry.
type Factory interface {
	Resolve(kind Kind, typ string) (Producer, error)
}
