package workflow

import (
	"sort"
	"strings"
)

// ResolveReport carries the non-fatal findings of a value resolution pass.
type ResolveReport struct {
	// Missing lists override keys that matched no parameter or mapping
	// anywhere in the tree, in dotted form. A usability safety net against
	// typos, reported as a warning rather than an error.
	Missing []string
}

// overrideEntry is one flattened override: a step scope (empty for flat
// keys), the parameter or mapping key, and the value to apply.
type overrideEntry struct {
	scope   []string
	key     string
	value   any
	dotted  string
	matched bool
}

// ApplyValues applies a dictionary of override values onto a deep-derived
// copy of the given plan or composite; the original is never touched.
//
// Override keys are either flat parameter or mapping names/IDs (flat keys
// apply at the top level or to any descendant with that name; ambiguous
// matches apply to all) or nested dictionaries keyed by child step name,
// which recurse into the matching subtree.
//
// Values are applied in precedence order, lowest to highest, each later
// layer overwriting the actual value set by earlier ones:
//
//  1. the parameter's own default value
//  2. the default value of a mapping targeting the parameter
//  3. an override supplied for a mapping, by mapping name
//  4. an override supplied directly for the parameter, by parameter name
//  5. a value propagated along a link from its source parameter's resolved
//     actual value (links model enforced data flow and always win)
//
// Keys that matched nothing are reported in ResolveReport.Missing.
func ApplyValues(step Step, overrides map[string]any) (Step, *ResolveReport, error) {
	derived := step.Derive()

	entries := flattenOverrides(overrides, nil)

	// Layer 1 is implicit: Actual falls back to the default value.

	// Layer 2: mapping defaults flow to their transitive leaf targets.
	for _, composite := range collectComposites(derived) {
		for _, m := range composite.Mappings {
			if m.DefaultValue == nil {
				continue
			}
			if err := propagateMapping(composite, m, m.DefaultValue); err != nil {
				return nil, nil, err
			}
		}
	}

	// Layer 3: overrides addressed to mappings.
	for _, e := range entries {
		scoped := scopedStep(derived, e.scope)
		if scoped == nil {
			continue
		}
		for _, hit := range findMappings(scoped, e.key) {
			hit.mapping.SetActual(e.value)
			if err := propagateMapping(hit.owner, hit.mapping, e.value); err != nil {
				return nil, nil, err
			}
			e.matched = true
		}
	}

	// Layer 4: overrides addressed directly to parameters.
	for _, e := range entries {
		scoped := scopedStep(derived, e.scope)
		if scoped == nil {
			continue
		}
		for _, target := range findParameters(scoped, e.key) {
			target.SetActual(e.value)
			e.matched = true
		}
	}

	// Layer 5: links propagate source values to sinks, unconditionally.
	if composite, ok := derived.(*CompositePlan); ok {
		if err := applyLinks(composite); err != nil {
			return nil, nil, err
		}
	}

	report := &ResolveReport{}
	for _, e := range entries {
		if !e.matched {
			report.Missing = append(report.Missing, e.dotted)
		}
	}

	return derived, report, nil
}

// flattenOverrides turns a possibly nested override document into a flat,
// deterministically ordered entry list. Nested maps scope their leaf keys by
// child step name.
func flattenOverrides(overrides map[string]any, scope []string) []*overrideEntry {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []*overrideEntry
	for _, k := range keys {
		v := overrides[k]
		if nested, ok := asStringMap(v); ok {
			childScope := append(append([]string(nil), scope...), k)
			entries = append(entries, flattenOverrides(nested, childScope)...)
			continue
		}
		dotted := k
		if len(scope) > 0 {
			dotted = strings.Join(scope, ".") + "." + k
		}
		entries = append(entries, &overrideEntry{
			scope:  append([]string(nil), scope...),
			key:    k,
			value:  v,
			dotted: dotted,
		})
	}
	return entries
}

// asStringMap normalizes the map shapes produced by YAML and JSON decoders.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// scopedStep walks a step-name path from the root. Returns nil when any
// segment does not name a child step.
func scopedStep(root Step, scope []string) Step {
	current := root
	for _, name := range scope {
		composite, ok := current.(*CompositePlan)
		if !ok {
			return nil
		}
		child := composite.FindStep(name)
		if child == nil {
			return nil
		}
		current = child
	}
	return current
}

// collectComposites returns every composite in the tree, depth-first in
// declaration order, outermost first.
func collectComposites(step Step) []*CompositePlan {
	composite, ok := step.(*CompositePlan)
	if !ok {
		return nil
	}
	out := []*CompositePlan{composite}
	for _, child := range composite.Plans {
		out = append(out, collectComposites(child)...)
	}
	return out
}

type mappingHit struct {
	owner   *CompositePlan
	mapping *Mapping
}

// findMappings returns every mapping in the subtree whose name or ID matches,
// in declaration order.
func findMappings(step Step, nameOrID string) []mappingHit {
	var hits []mappingHit
	for _, composite := range collectComposites(step) {
		for _, m := range composite.Mappings {
			if m.Name == nameOrID || m.ID == nameOrID {
				hits = append(hits, mappingHit{owner: composite, mapping: m})
			}
		}
	}
	return hits
}

// findParameters returns every command parameter in the subtree whose name
// or ID matches, in declaration order. Ambiguous matches are intentional:
// a flat override applies to all of them.
func findParameters(step Step, nameOrID string) []ValueTarget {
	switch s := step.(type) {
	case *Plan:
		var out []ValueTarget
		for _, t := range s.Targets() {
			if t.RefName() == nameOrID || t.RefID() == nameOrID {
				out = append(out, t)
			}
		}
		return out
	case *CompositePlan:
		var out []ValueTarget
		for _, child := range s.Plans {
			out = append(out, findParameters(child, nameOrID)...)
		}
		return out
	default:
		return nil
	}
}

// propagateMapping pushes a value onto every transitive leaf target of a
// mapping.
func propagateMapping(owner *CompositePlan, m *Mapping, value any) error {
	for _, ref := range m.MapsTo {
		leaves, err := owner.LeafBindings(ref)
		if err != nil {
			return err
		}
		for _, leaf := range leaves {
			leaf.Target.SetActual(value)
		}
	}
	return nil
}

// applyLinks propagates each link's source value to its sinks in
// declaration order. Link sources are always command outputs, so no link
// value depends on another link's write; order only matters when several
// links feed the same sink, and there the first declared link wins.
func applyLinks(composite *CompositePlan) error {
	written := make(map[string]bool)
	for _, sl := range composite.collectLinks() {
		srcLeaves, err := sl.owner.LeafBindings(sl.link.Source)
		if err != nil {
			return err
		}
		if len(srcLeaves) == 0 {
			return &WorkflowError{
				Code:    WorkflowErrorInvalidLink,
				Message: "link source resolves to no parameters: " + sl.link.Source.String(),
			}
		}
		value := srcLeaves[0].Target.Actual()

		for _, sink := range sl.link.Sinks {
			leaves, err := sl.owner.LeafBindings(sink)
			if err != nil {
				return err
			}
			for _, leaf := range leaves {
				if written[leaf.Target.RefID()] {
					continue
				}
				written[leaf.Target.RefID()] = true
				leaf.Target.SetActual(value)
			}
		}
	}
	return nil
}
