// Package producertest provides in-memory Producer implementations for
// planner and executor tests, mirroring the stub pattern the teacher
// uses for its reader interface.
package producertest

import (
	"context"

	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

// Func is a Producer implementation backed entirely by closures, so
// tests can express a connector or processor in a couple of lines.
type Func struct {
	NameValue    string
	OutputSchema types.Schema
	InputCombos  [][]types.Schema
	ProduceFunc  func(ctx context.Context, pctx producer.Context, inputs []types.Message) (types.Message, error)
}

func (f *Func) Name() string { return f.NameValue }

func (f *Func) SupportedOutputSchemas() []types.Schema {
	return []types.Schema{f.OutputSchema}
}

func (f *Func) SupportedInputSchemas() [][]types.Schema {
	return f.InputCombos
}

func (f *Func) Produce(ctx context.Context, pctx producer.Context, inputs []types.Message) (types.Message, error) {
	return f.ProduceFunc(ctx, pctx, inputs)
}

// NewRegistry builds a producer.Registry from a map of "kind/type" to
// constructors, to keep test setup terse.
func NewRegistry(entries map[string]func() producer.Producer) *producer.Registry {
	r := producer.NewRegistry()
	for key, ctor := range entries {
		kind, typ := splitKey(key)
		r.Register(kind, typ, ctor)
	}
	return r
}

func splitKey(key string) (producer.Kind, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return producer.Kind(key[:i]), key[i+1:]
		}
	}
	return producer.Kind(key), ""
}
