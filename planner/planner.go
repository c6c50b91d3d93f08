// Package planner implements the first engine stage: parsing a runbook,
// flattening nested child runbooks into one namespace, building the
// dependency DAG, and resolving/validating producer schema compatibility,
// per spec.md §4.2.
package planner

import (
	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

// Planner turns a parsed Runbook into an immutable ExecutionPlan. A
// Planner is stateless and safe for concurrent use; Loader and Factory
// are explicit collaborators passed in at construction, never resolved
// through a package-level singleton.
type Planner struct {
	loader  Loader
	factory producer.Factory
}

// New constructs a Planner. loader resolves child_runbook file contents;
// pass planner.FileLoader{} for real filesystem runbooks. factory
// resolves connector/processor producers by (kind, type).
func New(loader Loader, factory producer.Factory) *Planner {
	if loader == nil {
		loader = FileLoader{}
	}
	return &Planner{loader: loader, factory: factory}
}

// Plan runs stages (a)-(e) of spec.md §4.2 against an already-parsed
// runbook (see Parse) and returns the immutable ExecutionPlan the
// executor consumes.
func (p *Planner) Plan(root *types.Runbook) (*types.ExecutionPlan, error) {
	if err := ValidateShape(root); err != nil {
		return nil, err
	}

	flat, err := flatten(root, p.loader)
	if err != nil {
		return nil, err
	}

	dag, err := buildDAG(flat.artifacts)
	if err != nil {
		return nil, err
	}

	schemas, err := resolveSchemas(dag, flat.artifacts, p.factory)
	if err != nil {
		return nil, err
	}

	flattened := *root
	flattened.Artifacts = flat.artifacts

	return &types.ExecutionPlan{
		Runbook:         &flattened,
		DAG:             dag,
		ArtifactSchemas: schemas,
		Aliases:         flat.aliases,
		ReversedAliases: flat.reversedAliases,
		SensitiveInputs: flat.sensitiveInputs,
	}, nil
}
