package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IterIndexToken is the literal substituted with the 0-based generation
// index in iterated value strings, e.g. "out_{iter_index}.txt".
const IterIndexToken = "{iter_index}"

// iterGroup is one independent iteration dimension: either a single untagged
// parameter, or all parameters sharing one tag (combined positionally).
type iterGroup struct {
	key    string
	params []string
	lists  [][]any
	size   int
}

// ExpandIterations generates the combinatorial set of concrete parametrized
// plans from a base plan or composite and a map of parameter name to value
// list.
//
// Keys are "name" or "name@tag"; dotted names scope into composite children
// ("step1.param"). Untagged parameters combine by full cross-product;
// parameters sharing a tag are zipped positionally and their value lists
// must have equal length. Each generated combination substitutes
// "{iter_index}" in string values with the 0-based generation index, then
// passes through value resolution against a fresh derive of the base, so
// the results share no mutable state. An iteration key that matches no
// parameter or mapping is a usage error.
func ExpandIterations(base Step, values map[string][]any) ([]Step, error) {
	if len(values) == 0 {
		return nil, &WorkflowError{
			Code:    WorkflowErrorMissingIteration,
			Message: "at least one iteration parameter is required",
		}
	}

	groups, err := buildIterGroups(values)
	if err != nil {
		return nil, err
	}

	total := 1
	for _, g := range groups {
		total *= g.size
	}

	plans := make([]Step, 0, total)
	for iter := 0; iter < total; iter++ {
		overrides := make(map[string]any)

		// Decompose the generation index into per-group positions, first
		// group outermost.
		remainder := iter
		radix := total
		for _, g := range groups {
			radix /= g.size
			pos := remainder / radix
			remainder %= radix
			for i, param := range g.params {
				setNestedValue(overrides, param, substituteIterIndex(g.lists[i][pos], iter))
			}
		}

		resolved, report, err := ApplyValues(base, overrides)
		if err != nil {
			return nil, err
		}
		if len(report.Missing) > 0 {
			return nil, &WorkflowError{
				Code:    WorkflowErrorMissingIteration,
				Message: fmt.Sprintf("iteration parameters matched nothing on plan %q: %s",
					base.StepName(), strings.Join(report.Missing, ", ")),
				Step: base.StepName(),
			}
		}
		plans = append(plans, resolved)
	}

	return plans, nil
}

// buildIterGroups parses iteration keys into independent groups in
// deterministic (sorted key) order and validates tag list lengths.
func buildIterGroups(values map[string][]any) ([]*iterGroup, error) {
	byKey := make(map[string]*iterGroup)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var order []string
	for _, k := range keys {
		list := values[k]
		param, tag, tagged := strings.Cut(k, "@")
		if param == "" {
			return nil, &WorkflowError{
				Code:    WorkflowErrorInvalidReference,
				Message: fmt.Sprintf("malformed iteration key %q", k),
			}
		}
		if len(list) == 0 {
			return nil, &WorkflowError{
				Code:    WorkflowErrorMissingIteration,
				Message: fmt.Sprintf("iteration parameter %q has an empty value list", param),
			}
		}

		groupKey := param
		if tagged {
			if tag == "" {
				return nil, &WorkflowError{
					Code:    WorkflowErrorInvalidReference,
					Message: fmt.Sprintf("malformed iteration key %q: empty tag", k),
				}
			}
			groupKey = "@" + tag
		}

		g, exists := byKey[groupKey]
		if !exists {
			g = &iterGroup{key: groupKey, size: len(list)}
			byKey[groupKey] = g
			order = append(order, groupKey)
		}
		if tagged && len(list) != g.size {
			return nil, &WorkflowError{
				Code: WorkflowErrorIterationMismatch,
				Message: fmt.Sprintf("parameter %q has %d values but tag %q expects %d",
					param, len(list), tag, g.size),
			}
		}
		g.params = append(g.params, param)
		g.lists = append(g.lists, list)
	}

	groups := make([]*iterGroup, 0, len(order))
	for _, k := range order {
		groups = append(groups, byKey[k])
	}
	return groups, nil
}

// substituteIterIndex replaces the iteration index token in string values,
// descending into lists. Substitution happens per generated plan, after the
// combination is fixed and before value resolution.
func substituteIterIndex(v any, iter int) any {
	switch val := v.(type) {
	case string:
		return strings.ReplaceAll(val, IterIndexToken, strconv.Itoa(iter))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteIterIndex(item, iter)
		}
		return out
	default:
		return v
	}
}

// setNestedValue inserts a value under a possibly dotted key, building the
// nested step-scoped maps the value resolver expects.
func setNestedValue(overrides map[string]any, dottedKey string, value any) {
	parts := strings.Split(dottedKey, ".")
	current := overrides
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
