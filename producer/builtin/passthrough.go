package builtin

import (
	"context"

	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

// PassthroughProcessor forwards its single input unchanged, relabeled
// under a new output schema. Useful for renaming an artifact's schema
// identity across a runbook boundary without a real transformation.
type PassthroughProcessor struct {
	accepted []types.Schema
	output   types.Schema
}

// NewPassthroughProcessor constructs a processor accepting any one of
// accepted and re-emitting the input content under output.
func NewPassthroughProcessor(output types.Schema, accepted ...types.Schema) *PassthroughProcessor {
	return &PassthroughProcessor{accepted: accepted, output: output}
}

func (p *PassthroughProcessor) Name() string { return "passthrough" }

func (p *PassthroughProcessor) SupportedOutputSchemas() []types.Schema {
	return []types.Schema{p.output}
}

func (p *PassthroughProcessor) SupportedInputSchemas() [][]types.Schema {
	combos := make([][]types.Schema, len(p.accepted))
	for i, s := range p.accepted {
		combos[i] = []types.Schema{s}
	}
	return combos
}

func (p *PassthroughProcessor) Produce(_ context.Context, _ producer.Context, inputs []types.Message) (types.Message, error) {
	if len(inputs) == 0 {
		return types.Message{Schema: p.output}, nil
	}
	return types.Message{Content: inputs[0].Content, Schema: p.output}, nil
}
