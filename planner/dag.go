package planner

import (
	"sort"

	"github.com/waivern/orchestrator/types"
)

// buildDAG constructs the dependency graph over a flat artifact set: an
// edge u -> v exists iff u appears in v's Inputs. Node order is the sorted
// artifact id order, so iteration is deterministic regardless of Go's map
// ordering. Returns CyclicDependency if the graph is not acyclic.
func buildDAG(artifacts map[string]types.ArtifactDefinition) (*types.ExecutionDAG, error) {
	nodes := make([]string, 0, len(artifacts))
	for id := range artifacts {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	edges := make(map[string][]string, len(nodes))
	predecessors := make(map[string][]string, len(nodes))
	for _, id := range nodes {
		edges[id] = nil
		predecessors[id] = nil
	}

	for _, id := range nodes {
		a := artifacts[id]
		for _, ref := range a.Inputs {
			if _, ok := artifacts[ref]; !ok {
				return nil, danglingReferenceErr(id, ref)
			}
			edges[ref] = append(edges[ref], id)
			predecessors[id] = append(predecessors[id], ref)
		}
	}
	for id := range edges {
		sort.Strings(edges[id])
	}
	for id := range predecessors {
		sort.Strings(predecessors[id])
	}

	dag := &types.ExecutionDAG{Nodes: nodes, Edges: edges, Predecessors: predecessors}
	if cycle := findCycle(dag); cycle != nil {
		return nil, cyclicDependencyErr(cycle)
	}
	return dag, nil
}

// findCycle runs Kahn's algorithm; any node left with unresolved
// in-degree after all zero-in-degree nodes are consumed identifies a
// cycle, which is then traced by following predecessor edges.
func findCycle(dag *types.ExecutionDAG) []string {
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

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dag.Edges[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited == len(dag.Nodes) {
		return nil
	}

	var remaining []string
	for _, id := range dag.Nodes {
		if inDegree[id] > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Strings(remaining)
	return traceCycle(dag, remaining)
}

// traceCycle follows predecessor edges from an arbitrary node still stuck
// with unresolved in-degree until a node repeats, returning that loop.
func traceCycle(dag *types.ExecutionDAG, stuck []string) []string {
	if len(stuck) == 0 {
		return []string{}
	}
	stuckSet := make(map[string]bool, len(stuck))
	for _, id := range stuck {
		stuckSet[id] = true
	}

	start := stuck[0]
	visited := map[string]int{}
	path := []string{}
	current := start
	for {
		if idx, seen := visited[current]; seen {
			return path[idx:]
		}
		visited[current] = len(path)
		path = append(path, current)

		next := ""
		for _, pred := range dag.Predecessors[current] {
			if stuckSet[pred] {
				next = pred
				break
			}
		}
		if next == "" {
			return path
		}
		current = next
	}
}
