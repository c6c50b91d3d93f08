// Package builtin provides a minimal, dependency-free set of connectors
// and processors so `waivern run` has something to register out of the
// box. Real deployments are expected to register their own producers
// against producer.Registry; these exist to exercise the plugin contract
// end to end without requiring one.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

// FileConnector reads a local JSON file into a Message. Its only property
// is {"path": string}; the output schema is the one given to
// NewFileConnector.
type FileConnector struct {
	schema types.Schema
}

// NewFileConnector constructs a FileConnector declaring outputSchema as
// its only supported output.
func NewFileConnector(outputSchema types.Schema) *FileConnector {
	return &FileConnector{schema: outputSchema}
}

func (c *FileConnector) Name() string { return "file" }

func (c *FileConnector) SupportedOutputSchemas() []types.Schema { return []types.Schema{c.schema} }

func (c *FileConnector) SupportedInputSchemas() [][]types.Schema { return nil }

func (c *FileConnector) Produce(_ context.Context, pctx producer.Context, _ []types.Message) (types.Message, error) {
	path, _ := pctx.Properties["path"].(string)
	if path == "" {
		return types.Message{}, fmt.Errorf("file connector: missing required property %q", "path")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return types.Message{}, fmt.Errorf("file connector: read %q: %w", path, err)
	}

	var content any
	if err := json.Unmarshal(data, &content); err != nil {
		return types.Message{}, fmt.Errorf("file connector: decode %q: %w", path, err)
	}

	return types.Message{Content: content, Schema: c.schema}, nil
}
