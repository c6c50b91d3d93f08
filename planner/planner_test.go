package planner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waivern/orchestrator/planner"
	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/producer/producertest"
	"github.com/waivern/orchestrator/types"
)

// memLoader is an in-memory planner.Loader keyed by path, used so child
// runbook expansion can be tested without touching a filesystem.
type memLoader map[string][]byte

func (m memLoader) Load(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, &notFoundError{path}
	}
	return data, nil
}

type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return "no such file: " + e.path }

func connectorProducer(schema types.Schema) func() producer.Producer {
	return func() producer.Producer {
		return &producertest.Func{
			NameValue:    "test-connector",
			OutputSchema: schema,
			ProduceFunc: func(_ context.Context, _ producer.Context, _ []types.Message) (types.Message, error) {
				return types.Message{Schema: schema}, nil
			},
		}
	}
}

func processorProducer(out types.Schema, accepted ...types.Schema) func() producer.Producer {
	return func() producer.Producer {
		return &producertest.Func{
			NameValue:    "test-processor",
			OutputSchema: out,
			InputCombos:  [][]types.Schema{accepted},
			ProduceFunc: func(_ context.Context, _ producer.Context, _ []types.Message) (types.Message, error) {
				return types.Message{Schema: out}, nil
			},
		}
	}
}

func TestPlanLinearPipeline(t *testing.T) {
	rb := &types.Runbook{
		Name: "linear",
		Artifacts: map[string]types.ArtifactDefinition{
			"raw": {Source: &types.SourceSpec{Type: "db"}},
			"clean": {
				Inputs:  types.StringOrList{"raw"},
				Process: &types.ProcessSpec{Type: "cleaner"},
			},
		},
	}

	factory := producertest.NewRegistry(map[string]func() producer.Producer{
		"connector/db":      connectorProducer("raw/1"),
		"processor/cleaner": processorProducer("clean/1", "raw/1"),
	})

	p := planner.New(nil, factory)
	plan, err := p.Plan(rb)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"raw", "clean"}, plan.DAG.Nodes)
	require.Equal(t, []string{"clean"}, plan.DAG.Edges["raw"])
	require.Equal(t, types.Schema("clean/1"), plan.ArtifactSchemas["clean"].OutputSchema)
}

func TestPlanFanOutFanIn(t *testing.T) {
	rb := &types.Runbook{
		Name: "fanin",
		Artifacts: map[string]types.ArtifactDefinition{
			"a": {Source: &types.SourceSpec{Type: "db"}},
			"b": {Source: &types.SourceSpec{Type: "api"}},
			"merged": {
				Inputs:  types.StringOrList{"a", "b"},
				Process: &types.ProcessSpec{Type: "joiner"},
			},
		},
	}
	factory := producertest.NewRegistry(map[string]func() producer.Producer{
		"connector/db":     connectorProducer("a/1"),
		"connector/api":    connectorProducer("b/1"),
		"processor/joiner": processorProducer("merged/1", "a/1", "b/1"),
	})

	p := planner.New(nil, factory)
	plan, err := p.Plan(rb)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, plan.DAG.Predecessors["merged"])
}

func TestPlanChildRunbookExpansion(t *testing.T) {
	childYAML := []byte(`
name: child
inputs:
  source_data:
    input_schema: raw/1
outputs:
  findings: analysis_findings
artifacts:
  analysis_findings:
    inputs: source_data
    process:
      type: analyzer
`)
	rb := &types.Runbook{
		Name:       "parent",
		SourcePath: "/work/parent.yaml",
		Artifacts: map[string]types.ArtifactDefinition{
			"db": {Source: &types.SourceSpec{Type: "db"}},
			"analysis": {
				ChildRunbook: &types.ChildRunbookSpec{
					Path:         "child.yaml",
					InputMapping: map[string]string{"source_data": "db"},
					Output:       "findings",
				},
			},
		},
	}

	loader := memLoader{"/work/child.yaml": childYAML}
	factory := producertest.NewRegistry(map[string]func() producer.Producer{
		"connector/db":       connectorProducer("raw/1"),
		"processor/analyzer": processorProducer("analysis/1", "raw/1"),
	})

	p := planner.New(loader, factory)
	plan, err := p.Plan(rb)
	require.NoError(t, err)

	require.Len(t, plan.DAG.Nodes, 2)
	namespaced, ok := plan.Aliases["analysis"]
	require.True(t, ok)
	require.Contains(t, namespaced, "child__")
	require.Contains(t, namespaced, "__analysis_findings")
	require.Equal(t, "analysis", plan.ReversedAliases[namespaced])
}

func TestPlanCyclicDependencyFails(t *testing.T) {
	rb := &types.Runbook{
		Name: "cyclic",
		Artifacts: map[string]types.ArtifactDefinition{
			"a": {Inputs: types.StringOrList{"b"}, Process: &types.ProcessSpec{Type: "p"}},
			"b": {Inputs: types.StringOrList{"a"}, Process: &types.ProcessSpec{Type: "p"}},
		},
	}
	factory := producertest.NewRegistry(map[string]func() producer.Producer{
		"processor/p": processorProducer("x/1", "x/1"),
	})

	p := planner.New(nil, factory)
	_, err := p.Plan(rb)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrCyclicDependency, kind)
}

func TestPlanSchemaIncompatibleFails(t *testing.T) {
	rb := &types.Runbook{
		Name: "incompatible",
		Artifacts: map[string]types.ArtifactDefinition{
			"raw": {Source: &types.SourceSpec{Type: "db"}},
			"clean": {
				Inputs:  types.StringOrList{"raw"},
				Process: &types.ProcessSpec{Type: "cleaner"},
			},
		},
	}
	factory := producertest.NewRegistry(map[string]func() producer.Producer{
		"connector/db":      connectorProducer("raw/1"),
		"processor/cleaner": processorProducer("clean/1", "other_schema/1"),
	})

	p := planner.New(nil, factory)
	_, err := p.Plan(rb)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrSchemaIncompatible, kind)
}

func TestPlanMissingInputMappingAtPlanTime(t *testing.T) {
	childYAML := []byte(`
name: child
inputs:
  required_input:
    input_schema: raw/1
artifacts:
  out:
    inputs: required_input
    process:
      type: p
outputs:
  result: out
`)
	rb := &types.Runbook{
		Name:       "parent",
		SourcePath: "/work/parent.yaml",
		Artifacts: map[string]types.ArtifactDefinition{
			"child_result": {
				ChildRunbook: &types.ChildRunbookSpec{
					Path:         "child.yaml",
					InputMapping: map[string]string{"placeholder": "db"},
					Output:       "result",
				},
			},
		},
	}

	loader := memLoader{"/work/child.yaml": childYAML}
	factory := producer.NewRegistry()

	p := planner.New(loader, factory)
	_, err := p.Plan(rb)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrMissingInputMapping, kind)
}
