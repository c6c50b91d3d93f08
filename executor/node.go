package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

// produceNode runs the single production step for artifact id and
// returns the message it produced. It does not touch scheduler state —
// the caller owns recording the outcome. A panic raised by the producer
// is recovered and returned as a ProducerError.
func (e *Executor) produceNode(ctx context.Context, pctx producer.Context, plan *types.ExecutionPlan, runID, id string) (msg types.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, err = types.Message{}, producerErr(id, fmt.Errorf("panic: %v", r))
		}
	}()

	a := plan.Runbook.Artifacts[id]
	schemas := plan.ArtifactSchemas[id]

	switch a.Method() {
	case types.ProductionSource:
		return e.produceSource(ctx, pctx, a, schemas)
	case types.ProductionProcess:
		return e.produceProcess(ctx, pctx, plan, runID, a, schemas)
	case types.ProductionReuse:
		return e.produceReuse(ctx, a)
	default:
		return types.Message{}, producerErr(id, errors.New("artifact has no recognized production method"))
	}
}

func (e *Executor) produceSource(ctx context.Context, pctx producer.Context, a types.ArtifactDefinition, schemas types.ArtifactSchemas) (types.Message, error) {
	p, err := e.factory.Resolve(producer.KindConnector, a.Source.Type)
	if err != nil {
		return types.Message{}, producerNotFoundErr(string(producer.KindConnector), a.Source.Type)
	}

	pctx.Properties = a.Source.Properties
	out, err := p.Produce(ctx, pctx, nil)
	if err != nil {
		return types.Message{}, producerErr(pctx.ArtifactID, err)
	}
	if out.Schema != schemas.OutputSchema {
		return types.Message{}, schemaViolationErr(pctx.ArtifactID, schemas.OutputSchema, out.Schema)
	}
	return out, nil
}

func (e *Executor) produceProcess(ctx context.Context, pctx producer.Context, plan *types.ExecutionPlan, runID string, a types.ArtifactDefinition, schemas types.ArtifactSchemas) (types.Message, error) {
	inputs := make([]types.Message, 0, len(a.Inputs))
	sensitive := make([]bool, 0, len(a.Inputs))
	for _, ref := range a.Inputs {
		msg, err := e.store.GetArtifact(ctx, runID, ref)
		if err != nil {
			if kind, ok := types.KindOf(err); ok && kind == types.ErrStoreError {
				return types.Message{}, err
			}
			return types.Message{}, upstreamMissingErr(pctx.ArtifactID, ref)
		}
		inputs = append(inputs, msg)
		sensitive = append(sensitive, plan.SensitiveInputs[ref])
	}

	if a.Merge == string(types.MergeConcatenate) {
		inputs, sensitive = concatenateBySchema(inputs, sensitive)
	}

	p, err := e.factory.Resolve(producer.KindProcessor, a.Process.Type)
	if err != nil {
		return types.Message{}, producerNotFoundErr(string(producer.KindProcessor), a.Process.Type)
	}

	pctx.Properties = a.Process.Properties
	pctx.SensitiveInputs = sensitive
	out, err := p.Produce(ctx, pctx, inputs)
	if err != nil {
		return types.Message{}, producerErr(pctx.ArtifactID, err)
	}
	if out.Schema != schemas.OutputSchema {
		return types.Message{}, schemaViolationErr(pctx.ArtifactID, schemas.OutputSchema, out.Schema)
	}
	return out, nil
}

func (e *Executor) produceReuse(ctx context.Context, a types.ArtifactDefinition) (types.Message, error) {
	msg, err := e.store.GetArtifact(ctx, a.Reuse.FromRun, a.Reuse.Artifact)
	if err != nil {
		if kind, ok := types.KindOf(err); ok && kind == types.ErrStoreError {
			return types.Message{}, err
		}
		return types.Message{}, reuseTargetMissingErr(a.Reuse.FromRun, a.Reuse.Artifact)
	}
	return msg, nil
}

// concatenateBySchema groups inputs sharing the same schema into one
// message per group (content sequences concatenated), preserving the
// first-seen order of distinct schemas. A group with a single member is
// passed through as the original message. sensitive[i] tracks whether
// inputs[i] derived from a sensitive declaration; a merged group is
// sensitive if any of its members was.
func concatenateBySchema(inputs []types.Message, sensitive []bool) ([]types.Message, []bool) {
	type group struct {
		schema    types.Schema
		first     types.Message
		members   int
		content   []any
		sensitive bool
	}

	order := make([]types.Schema, 0, len(inputs))
	groups := make(map[types.Schema]*group, len(inputs))

	for i, m := range inputs {
		g, ok := groups[m.Schema]
		if !ok {
			g = &group{schema: m.Schema}
			groups[m.Schema] = g
			order = append(order, m.Schema)
		}
		g.members++
		if g.members == 1 {
			g.first = m
		}
		if seq, ok := m.Content.([]any); ok {
			g.content = append(g.content, seq...)
		} else {
			g.content = append(g.content, m.Content)
		}
		if i < len(sensitive) && sensitive[i] {
			g.sensitive = true
		}
	}

	merged := make([]types.Message, 0, len(order))
	mergedSensitive := make([]bool, 0, len(order))
	for _, schema := range order {
		g := groups[schema]
		if g.members == 1 {
			merged = append(merged, g.first)
		} else {
			merged = append(merged, types.Message{Schema: schema, Content: g.content})
		}
		mergedSensitive = append(mergedSensitive, g.sensitive)
	}
	return merged, mergedSensitive
}
