package activity

import (
	"fmt"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

// SortOptions controls the ordering and pruning pass over historical
// activities.
type SortOptions struct {
	// Prune removes activities whose every generated path is later produced
	// again by a more recent activity, so superseded work is not reported or
	// re-run.
	Prune bool

	// PruneAncestors additionally removes activities that only existed to
	// feed pruned activities and that no surviving activity depends on.
	// Only meaningful when Prune is set.
	PruneAncestors bool
}

// SortActivities orders historical activities into a valid dependency order:
// an activity producing a path runs before every activity that consumes it.
//
// Activities generating the same path are not independent; a deterministic
// total order is imposed between them by comparing their plan versions along
// the derivation chain, falling back to execution end time when the same
// plan version ran twice. When neither yields an order the operation fails
// rather than guess.
//
// With pruning enabled, activities whose generated paths have all been
// produced again by later activities are dropped from the result.
func SortActivities(activities []*Activity, opts SortOptions) ([]*Activity, error) {
	if len(activities) == 0 {
		return nil, nil
	}

	plansByID := make(map[string]*workflow.Plan, len(activities))
	for _, a := range activities {
		if a.Plan != nil {
			plansByID[a.Plan.ID] = a.Plan
		}
	}

	generators := make(map[string][]*Activity)
	for _, a := range activities {
		for _, path := range a.GenerationPaths() {
			generators[path] = append(generators[path], a)
		}
	}

	adj := make(map[string][]string, len(activities))
	for _, a := range activities {
		adj[a.ID] = nil
	}
	addEdge := func(from, to *Activity) {
		if from.ID != to.ID {
			adj[from.ID] = append(adj[from.ID], to.ID)
		}
	}

	// Serialize same-path generators in their imposed order, then make every
	// consumer depend on every generator of the paths it uses.
	for _, a := range activities {
		for _, path := range a.GenerationPaths() {
			gens := generators[path]
			if len(gens) < 2 || gens[0].ID != a.ID {
				continue
			}
			ordered, err := orderGenerators(gens, plansByID)
			if err != nil {
				return nil, err
			}
			for i := 0; i < len(ordered)-1; i++ {
				addEdge(ordered[i], ordered[i+1])
			}
			generators[path] = ordered
		}
	}
	for _, a := range activities {
		for _, path := range a.UsagePaths() {
			for _, gen := range generators[path] {
				addEdge(gen, a)
			}
		}
	}

	ordered, err := topoSortActivities(activities, adj)
	if err != nil {
		return nil, err
	}

	if !opts.Prune {
		return ordered, nil
	}
	return pruneSuperseded(ordered, adj, opts.PruneAncestors), nil
}

// orderGenerators imposes a deterministic total order on activities that
// generate the same path, oldest first.
func orderGenerators(gens []*Activity, plans map[string]*workflow.Plan) ([]*Activity, error) {
	ordered := append([]*Activity(nil), gens...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0; j-- {
			cmp, err := CompareActivities(ordered[j-1], ordered[j], plans)
			if err != nil {
				return nil, err
			}
			if cmp <= 0 {
				break
			}
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	return ordered, nil
}

// CompareActivities orders two activities generating the same path. Plan
// derivation wins; when both executed the same plan version the later end
// time wins. Two executions of the same plan version ending at the same
// instant cannot be ordered and are an error.
func CompareActivities(a, b *Activity, plans map[string]*workflow.Plan) (int, error) {
	cmp, err := ComparePlans(a.Plan, b.Plan, plans)
	if err != nil {
		return 0, types.WrapError(types.ACTIVITY_UNORDERED,
			fmt.Sprintf("cannot create an order between activities %s and %s", a.ID, b.ID), err)
	}
	if cmp != 0 {
		return cmp, nil
	}
	switch {
	case a.EndedAt.Before(b.EndedAt):
		return -1, nil
	case b.EndedAt.Before(a.EndedAt):
		return 1, nil
	default:
		return 0, types.NewError(types.ACTIVITY_UNORDERED,
			fmt.Sprintf("cannot create an order between activities %s and %s", a.ID, b.ID))
	}
}

// ComparePlans orders two plan versions along the derivation chain: a plan
// derived (transitively) from the other is the newer one. Returns -1 when a
// is older, 1 when b is older, 0 when they are the same version. Plans on
// unrelated lineages cannot be ordered.
func ComparePlans(a, b *workflow.Plan, plans map[string]*workflow.Plan) (int, error) {
	if a == nil || b == nil {
		return 0, types.NewError(types.ACTIVITY_UNORDERED, "cannot compare activities without plan snapshots")
	}
	if a.ID == b.ID {
		return 0, nil
	}
	if derivesFrom(b, a.ID, plans) {
		return -1, nil
	}
	if derivesFrom(a, b.ID, plans) {
		return 1, nil
	}
	return 0, types.NewError(types.ACTIVITY_UNORDERED,
		fmt.Sprintf("plans %q and %q share no derivation chain", a.Name, b.Name))
}

// derivesFrom walks the derivation chain of a plan through the known plan
// set, looking for an ancestor ID.
func derivesFrom(plan *workflow.Plan, ancestorID string, plans map[string]*workflow.Plan) bool {
	seen := make(map[string]bool)
	for current := plan; current != nil && current.DerivedFrom != ""; {
		if current.DerivedFrom == ancestorID {
			return true
		}
		if seen[current.DerivedFrom] {
			return false
		}
		seen[current.DerivedFrom] = true
		current = plans[current.DerivedFrom]
	}
	return false
}

// topoSortActivities orders activities so dependencies come first, breaking
// ties by input order, matching the determinism of the plan graph sort.
func topoSortActivities(activities []*Activity, adj map[string][]string) ([]*Activity, error) {
	inDegree := make(map[string]int, len(activities))
	for _, a := range activities {
		inDegree[a.ID] = 0
	}
	for _, targets := range adj {
		for _, t := range targets {
			inDegree[t]++
		}
	}

	emitted := make(map[string]bool, len(activities))
	result := make([]*Activity, 0, len(activities))
	for len(result) < len(activities) {
		progressed := false
		for _, a := range activities {
			if emitted[a.ID] || inDegree[a.ID] != 0 {
				continue
			}
			emitted[a.ID] = true
			result = append(result, a)
			for _, t := range adj[a.ID] {
				inDegree[t]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, &workflow.GraphCycleError{Cycles: activityCycles(activities, adj)}
		}
	}
	return result, nil
}

// activityCycles reconstructs dependency cycles by activity plan name for
// error reporting.
func activityCycles(activities []*Activity, adj map[string][]string) [][]string {
	names := make(map[string]string, len(activities))
	for _, a := range activities {
		name := a.ID
		if a.Plan != nil {
			name = a.Plan.Name
		}
		names[a.ID] = name
	}

	color := make(map[string]int, len(activities))
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
	for _, a := range activities {
		if color[a.ID] == 0 {
			dfs(a.ID)
		}
	}
	return cycles
}

// pruneSuperseded drops activities whose every generated path is produced
// again by an activity ordered after them. With ancestor pruning, activities
// that fed only pruned work and that no survivor depends on are dropped too.
func pruneSuperseded(ordered []*Activity, adj map[string][]string, pruneAncestors bool) []*Activity {
	position := make(map[string]int, len(ordered))
	for i, a := range ordered {
		position[a.ID] = i
	}

	laterGenerates := func(path string, after int) bool {
		for i := after + 1; i < len(ordered); i++ {
			for _, p := range ordered[i].GenerationPaths() {
				if p == path {
					return true
				}
			}
		}
		return false
	}

	pruned := make(map[string]bool)
	for i, a := range ordered {
		paths := a.GenerationPaths()
		if len(paths) == 0 {
			continue
		}
		superseded := true
		for _, path := range paths {
			if !laterGenerates(path, i) {
				superseded = false
				break
			}
		}
		if superseded {
			pruned[a.ID] = true
		}
	}

	if pruneAncestors {
		// Walk in reverse execution order so consumers are decided before
		// their producers. An activity that fed at least one consumer, all of
		// which are now pruned, only existed for dead work and goes too.
		// Terminal activities with no consumers are kept; their outputs are
		// the point.
		for i := len(ordered) - 1; i >= 0; i-- {
			a := ordered[i]
			if pruned[a.ID] || len(adj[a.ID]) == 0 {
				continue
			}
			unnecessary := true
			for _, consumer := range adj[a.ID] {
				if !pruned[consumer] {
					unnecessary = false
					break
				}
			}
			if unnecessary {
				pruned[a.ID] = true
			}
		}
	}

	result := make([]*Activity, 0, len(ordered))
	for _, a := range ordered {
		if !pruned[a.ID] {
			result = append(result, a)
		}
	}
	return result
}
