package builtin

import (
	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

// SchemaJSON is the schema id the built-in producers declare when a
// runbook does not need to distinguish between shapes of JSON content.
const SchemaJSON types.Schema = "json"

// DefaultRegistry returns a producer.Registry seeded with the built-in
// connector and processor, so `waivern run` has something to execute
// against before any deployment-specific plugin is registered. Real
// deployments register their own producers on top of (or instead of)
// this set.
func DefaultRegistry() *producer.Registry {
	reg := producer.NewRegistry()
	reg.Register(producer.KindConnector, "file", func() producer.Producer {
		return NewFileConnector(SchemaJSON)
	})
	reg.Register(producer.KindProcessor, "passthrough", func() producer.Producer {
		return NewPassthroughProcessor(SchemaJSON, SchemaJSON)
	})
	return reg
}
