package workflow

import (
	"fmt"
)

// GraphEdge is a directed dependency edge between two leaf plans in an
// execution graph.
type GraphEdge struct {
	// From is the plan owning the source output.
	From *Plan

	// To is the plan owning the sink input or parameter.
	To *Plan

	// SourceRef and SinkRef are the parameter references the edge was
	// derived from, scoped to the root composite. They are populated for
	// virtual edges so the caller can materialize them as links.
	SourceRef ParamRef
	SinkRef   ParamRef
}

// ExecutionGraph is the dependency DAG over the flattened set of leaf plans
// in a composite plan. Hard edges come from declared links; virtual edges
// are auto-detected candidates from matching default path values, collected
// separately so the caller can decide to materialize them.
type ExecutionGraph struct {
	// Nodes are the leaf plans in declaration order. A plan with no links
	// at all is still a node, scheduled at its declaration position.
	Nodes []*Plan

	// Edges are the hard dependency edges derived from declared links.
	Edges []GraphEdge

	// VirtualEdges are auto-detected candidate edges. The plans are never
	// mutated by virtual link detection.
	VirtualEdges []GraphEdge

	includeVirtual bool
}

// BuildGraph constructs the execution graph for a composite plan. With
// virtualLinks enabled it additionally auto-detects candidate edges between
// outputs and inputs sharing the same default path value.
//
// The graph must be acyclic (over hard edges, or hard plus virtual edges
// when virtualLinks is enabled); otherwise a GraphCycleError enumerating the
// offending cycles by plan name is returned and no partial graph is usable.
func BuildGraph(composite *CompositePlan, virtualLinks bool) (*ExecutionGraph, error) {
	g := &ExecutionGraph{
		Nodes:          flattenLeafPlans(composite),
		includeVirtual: virtualLinks,
	}

	for _, sl := range composite.collectLinks() {
		sources, err := sl.owner.LeafBindings(sl.link.Source)
		if err != nil {
			return nil, err
		}
		for _, sink := range sl.link.Sinks {
			sinkLeaves, err := sl.owner.LeafBindings(sink)
			if err != nil {
				return nil, err
			}
			for _, src := range sources {
				fromPlan, ok := src.Owner.(*Plan)
				if !ok {
					continue
				}
				for _, leaf := range sinkLeaves {
					toPlan, ok := leaf.Owner.(*Plan)
					if !ok {
						continue
					}
					g.Edges = append(g.Edges, GraphEdge{From: fromPlan, To: toPlan})
				}
			}
		}
	}

	if virtualLinks {
		g.detectVirtualEdges(composite)
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return nil, &GraphCycleError{Cycles: cycles}
	}

	return g, nil
}

// detectVirtualEdges proposes an edge A -> B for every output of A and input
// of B that share the same non-empty default path value. Only declared
// default values are compared, never resolved or overridden ones; changing
// that would alter the reproducibility of previously recorded workflows.
func (g *ExecutionGraph) detectVirtualEdges(composite *CompositePlan) {
	paths := make(map[string][]string, len(g.Nodes))
	collectStepPaths(composite, nil, paths)

	for _, from := range g.Nodes {
		for _, to := range g.Nodes {
			if from.ID == to.ID {
				continue
			}
			for _, out := range from.Outputs {
				outPath := defaultPath(out.DefaultValue)
				if outPath == "" {
					continue
				}
				for _, in := range to.Inputs {
					if defaultPath(in.DefaultValue) != outPath {
						continue
					}
					g.VirtualEdges = append(g.VirtualEdges, GraphEdge{
						From:      from,
						To:        to,
						SourceRef: ParamRef{Steps: paths[from.ID], Param: out.Name},
						SinkRef:   ParamRef{Steps: paths[to.ID], Param: in.Name},
					})
				}
			}
		}
	}
}

// collectStepPaths records the chain of step names from the root composite
// to every leaf plan.
func collectStepPaths(composite *CompositePlan, prefix []string, paths map[string][]string) {
	for _, child := range composite.Plans {
		childPath := append(append([]string(nil), prefix...), child.StepName())
		switch s := child.(type) {
		case *Plan:
			paths[s.ID] = childPath
		case *CompositePlan:
			collectStepPaths(s, childPath, paths)
		}
	}
}

// defaultPath renders a default value for path comparison.
func defaultPath(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// adjacency builds the adjacency list over plan IDs, including virtual edges
// when the graph was built in virtual-links mode. Edge order is declaration
// order, keeping everything downstream deterministic.
func (g *ExecutionGraph) adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		adj[n.ID] = nil
	}
	for _, e := range g.Edges {
		adj[e.From.ID] = append(adj[e.From.ID], e.To.ID)
	}
	if g.includeVirtual {
		for _, e := range g.VirtualEdges {
			adj[e.From.ID] = append(adj[e.From.ID], e.To.ID)
		}
	}
	return adj
}

// DetectCycles finds cycles using depth-first search with three-color
// marking, reconstructing each cycle path by plan name in discovery order.
// Returns an empty slice for an acyclic graph.
func (g *ExecutionGraph) DetectCycles() [][]string {
	adj := g.adjacency()
	names := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		names[n.ID] = n.Name
	}

	// 0 = white (unvisited), 1 = gray (in progress), 2 = black (done)
	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string)
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = 1
		for _, next := range adj[id] {
			switch color[next] {
			case 0:
				parent[next] = id
				dfs(next)
			case 1:
				// Back edge: reconstruct the cycle from the parent chain.
				cycle := []string{names[next]}
				for current := id; current != next; current = parent[current] {
					cycle = append([]string{names[current]}, cycle...)
				}
				cycle = append([]string{names[next]}, cycle...)
				cycles = append(cycles, cycle)
			}
		}
		color[id] = 2
	}

	for _, n := range g.Nodes {
		if color[n.ID] == 0 {
			dfs(n.ID)
		}
	}
	return cycles
}

// TopologicalSort returns the plans in a valid execution order: for every
// edge A -> B, A appears before B. Ties among independent plans break by
// declaration order, so the result is fully deterministic. Fails with a
// GraphCycleError if the graph is not a DAG.
func (g *ExecutionGraph) TopologicalSort() ([]*Plan, error) {
	adj := g.adjacency()

	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for _, targets := range adj {
		for _, t := range targets {
			inDegree[t]++
		}
	}

	emitted := make(map[string]bool, len(g.Nodes))
	result := make([]*Plan, 0, len(g.Nodes))

	// Repeatedly take the first plan in declaration order whose remaining
	// in-degree is zero. Quadratic, but graphs here are small and the
	// declaration-order tie-break matters more than asymptotics.
	for len(result) < len(g.Nodes) {
		progressed := false
		for _, n := range g.Nodes {
			if emitted[n.ID] || inDegree[n.ID] != 0 {
				continue
			}
			emitted[n.ID] = true
			result = append(result, n)
			for _, t := range adj[n.ID] {
				inDegree[t]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, &GraphCycleError{Cycles: g.DetectCycles()}
		}
	}
	return result, nil
}

// ConcurrencyLevels partitions the execution order into levels whose members
// have no path between them and may execute in parallel. The provider is
// free to extract this parallelism or run strictly sequentially.
func (g *ExecutionGraph) ConcurrencyLevels() ([][]*Plan, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	adj := g.adjacency()
	level := make(map[string]int, len(g.Nodes))
	maxLevel := 0
	for _, p := range order {
		for _, t := range adj[p.ID] {
			if level[p.ID]+1 > level[t] {
				level[t] = level[p.ID] + 1
			}
			if level[t] > maxLevel {
				maxLevel = level[t]
			}
		}
	}

	levels := make([][]*Plan, maxLevel+1)
	for _, p := range order {
		levels[level[p.ID]] = append(levels[level[p.ID]], p)
	}
	return levels, nil
}
