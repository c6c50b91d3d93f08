package planner

import (
	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

// resolveSchemas walks the DAG in topological order, resolving each
// node's producer and the schema it declares, and checks every edge (or
// fan-in combination) against the consuming producer's accepted input
// schemas. See spec.md §4.2(d) and Open Question 4 (unordered-multiset
// fan-in match).
func resolveSchemas(dag *types.ExecutionDAG, artifacts map[string]types.ArtifactDefinition, factory producer.Factory) (map[string]types.ArtifactSchemas, error) {
	order, err := topoOrder(dag)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]types.ArtifactSchemas, len(order))
	for _, id := range order {
		a := artifacts[id]
		switch a.Method() {
		case types.ProductionSource:
			p, err := factory.Resolve(producer.KindConnector, a.Source.Type)
			if err != nil {
				return nil, producerNotFoundErr(string(producer.KindConnector), a.Source.Type)
			}
			out, err := pickOutputSchema(id, a, p)
			if err != nil {
				return nil, err
			}
			resolved[id] = types.ArtifactSchemas{OutputSchema: out}

		case types.ProductionProcess:
			p, err := factory.Resolve(producer.KindProcessor, a.Process.Type)
			if err != nil {
				return nil, producerNotFoundErr(string(producer.KindProcessor), a.Process.Type)
			}

			incoming := make([]types.Schema, 0, len(a.Inputs))
			knownIncoming := true
			for _, ref := range a.Inputs {
				schemas, ok := resolved[ref]
				if !ok || schemas.OutputSchema == "" {
					knownIncoming = false
					continue
				}
				incoming = append(incoming, schemas.OutputSchema)
			}

			accepted := p.SupportedInputSchemas()
			if knownIncoming {
				if err := checkCompatibility(id, incoming, accepted); err != nil {
					return nil, err
				}
			}

			out, err := pickOutputSchema(id, a, p)
			if err != nil {
				return nil, err
			}
			resolved[id] = types.ArtifactSchemas{InputSchemas: incoming, OutputSchema: out}

		case types.ProductionReuse:
			// The reused artifact's schema is only known once the
			// referenced run's store is consulted, which happens at
			// execution time; edges sourced from a reuse node are not
			// schema-checked at plan time.
			resolved[id] = types.ArtifactSchemas{}
		}
	}

	return resolved, nil
}

func pickOutputSchema(id string, a types.ArtifactDefinition, p producer.Producer) (types.Schema, error) {
	options := p.SupportedOutputSchemas()
	if a.OutputSchema != "" {
		want := types.Schema(a.OutputSchema)
		for _, o := range options {
			if o == want {
				return want, nil
			}
		}
		return "", ambiguousOutputSchemaErr(id, p.Name(), options)
	}
	if len(options) == 1 {
		return options[0], nil
	}
	return "", ambiguousOutputSchemaErr(id, p.Name(), options)
}

func checkCompatibility(id string, incoming []types.Schema, accepted [][]types.Schema) error {
	switch len(incoming) {
	case 0:
		return nil
	case 1:
		if !producer.Compatible(incoming[0], accepted) {
			return schemaIncompatibleErr("", id, incoming[0])
		}
	default:
		if !producer.CombinationSatisfied(incoming, accepted) {
			return schemaIncompatibleErr("", id, incoming[0])
		}
	}
	return nil
}

// topoOrder returns dag.Nodes in a valid topological order. The DAG is
// already known acyclic (buildDAG rejects cycles before this runs), so
// this always succeeds.
func topoOrder(dag *types.ExecutionDAG) ([]string, error) {
	inDegree := make(map[string]int, len(dag.Nodes))
	for _, id := range dag.Nodes {
		inDegree[id] = len(dag.Predecessors[id])
	}

	var queue []string
	for _, id := range dag.Nodes {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(dag.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range dag.Edges[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(dag.Nodes) {
		return nil, cyclicDependencyErr(dag.Nodes)
	}
	return order, nil
}
