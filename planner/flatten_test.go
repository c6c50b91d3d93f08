package planner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waivern/orchestrator/planner"
	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

func TestPlanChildRunbookNotFound(t *testing.T) {
	rb := &types.Runbook{
		Name:       "parent",
		SourcePath: "/work/parent.yaml",
		Artifacts: map[string]types.ArtifactDefinition{
			"analysis": {
				ChildRunbook: &types.ChildRunbookSpec{
					Path:         "missing.yaml",
					InputMapping: map[string]string{"x": "y"},
					Output:       "out",
				},
			},
		},
	}

	p := planner.New(memLoader{}, producer.NewRegistry())
	_, err := p.Plan(rb)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrChildRunbookNotFound, kind)
}

func TestPlanChildRunbookInvalidPathRejected(t *testing.T) {
	rb := &types.Runbook{
		Name:       "parent",
		SourcePath: "/work/parent.yaml",
		Artifacts: map[string]types.ArtifactDefinition{
			"analysis": {
				ChildRunbook: &types.ChildRunbookSpec{
					Path:         "../escape.yaml",
					InputMapping: map[string]string{"x": "y"},
					Output:       "out",
				},
			},
		},
	}

	p := planner.New(memLoader{}, producer.NewRegistry())
	_, err := p.Plan(rb)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrInvalidPath, kind)
}

func TestPlanCircularRunbookDetected(t *testing.T) {
	a := []byte(`
name: a
inputs:
  x:
    input_schema: s/1
outputs:
  out: node
artifacts:
  node:
    child_runbook:
      path: b.yaml
      input_mapping: {y: x}
      output: out
`)
	b := []byte(`
name: b
inputs:
  y:
    input_schema: s/1
outputs:
  out: node
artifacts:
  node:
    child_runbook:
      path: a.yaml
      input_mapping: {x: y}
      output: out
`)
	rb := &types.Runbook{
		Name:       "root",
		SourcePath: "/work/root.yaml",
		Artifacts: map[string]types.ArtifactDefinition{
			"entry": {
				ChildRunbook: &types.ChildRunbookSpec{
					Path:         "a.yaml",
					InputMapping: map[string]string{"x": "seed"},
					Output:       "out",
				},
			},
			"seed": {Source: &types.SourceSpec{Type: "db"}},
		},
	}

	loader := memLoader{"/work/a.yaml": a, "/work/b.yaml": b}
	p := planner.New(loader, producer.NewRegistry())
	_, err := p.Plan(rb)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrCircularRunbook, kind)
}

func TestPlanSensitiveInputPropagation(t *testing.T) {
	childYAML := []byte(`
name: child
inputs:
  source_data:
    input_schema: raw/1
    sensitive: true
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
	factory := producer.NewRegistry()
	factory.Register(producer.KindConnector, "db", connectorProducer("raw/1"))
	factory.Register(producer.KindProcessor, "analyzer", processorProducer("analysis/1", "raw/1"))

	p := planner.New(loader, factory)
	plan, err := p.Plan(rb)
	require.NoError(t, err)

	target := plan.Aliases["analysis"]
	require.True(t, plan.SensitiveInputs[target])
}
