package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// positionalRe matches a single positional reference token, e.g. "@step2",
// "@input1", "@output3", "@param2", or "@mapping1".
var positionalRe = regexp.MustCompile(`^@(step|input|output|param|mapping)([1-9][0-9]*)$`)

// ResolveReference parses a reference expression against a composite plan
// root and returns a canonical symbolic reference with the target verified
// to exist.
//
// Supported forms:
//   - absolute: "step.param", with dotted nesting for composites inside
//     composites ("outer.inner.param"); step and parameter segments accept
//     both names and stable IDs
//   - positional: "@step<N>" selects the Nth child plan (1-indexed,
//     declaration order); "@input<N>", "@output<N>", "@param<N>" select the
//     Nth input/output/parameter of the referenced step; "@mapping<N>"
//     selects the Nth mapping of a composite
//   - a bare name resolves as a mapping on the root composite
//
// Positional and named segments may be mixed ("step1.@output1"). The
// resolver is purely structural: it performs no value computation, and it
// fails with a reference_not_found error naming the missing segment.
func ResolveReference(root *CompositePlan, expr string) (ParamRef, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ParamRef{}, &WorkflowError{
			Code:    WorkflowErrorInvalidReference,
			Message: "reference expression cannot be empty",
		}
	}

	segments := strings.Split(expr, ".")

	var steps []string
	current := Step(root)

	for i, segment := range segments {
		last := i == len(segments)-1

		kind, index, positional := parsePositional(segment)

		if !last {
			// Interior segments select steps.
			composite, ok := current.(*CompositePlan)
			if !ok {
				return ParamRef{}, &WorkflowError{
					Code:    WorkflowErrorInvalidReference,
					Message: fmt.Sprintf("step %q is not a composite plan, cannot resolve %q", current.StepName(), expr),
				}
			}
			var child Step
			if positional {
				if kind != "step" {
					return ParamRef{}, &WorkflowError{
						Code:    WorkflowErrorInvalidReference,
						Message: fmt.Sprintf("%q cannot select a step in %q", segment, expr),
					}
				}
				child, ok = composite.StepAt(index)
				if !ok {
					return ParamRef{}, &WorkflowError{
						Code:    WorkflowErrorReferenceNotFound,
						Message: fmt.Sprintf("step %q not found in composite plan %q", segment, composite.Name),
						Step:    composite.Name,
					}
				}
			} else {
				child = composite.FindStep(segment)
				if child == nil {
					return ParamRef{}, &WorkflowError{
						Code:    WorkflowErrorReferenceNotFound,
						Message: fmt.Sprintf("step %q not found in composite plan %q", segment, composite.Name),
						Step:    composite.Name,
					}
				}
			}
			steps = append(steps, child.StepName())
			current = child
			continue
		}

		// Final segment selects the parameter or mapping.
		target, err := resolveFinalSegment(current, segment, kind, index, positional)
		if err != nil {
			return ParamRef{}, err
		}
		return ParamRef{Steps: steps, Param: target}, nil
	}

	// Unreachable: the loop always returns on the final segment.
	return ParamRef{}, &WorkflowError{
		Code:    WorkflowErrorInvalidReference,
		Message: fmt.Sprintf("could not resolve reference %q", expr),
	}
}

// resolveFinalSegment resolves the terminal segment of a reference
// expression to a parameter or mapping name on the current step.
func resolveFinalSegment(current Step, segment, kind string, index int, positional bool) (string, error) {
	switch s := current.(type) {
	case *Plan:
		if positional {
			var name string
			var ok bool
			switch kind {
			case "input":
				var in *CommandInput
				if in, ok = s.InputAt(index); ok {
					name = in.Name
				}
			case "output":
				var out *CommandOutput
				if out, ok = s.OutputAt(index); ok {
					name = out.Name
				}
			case "param":
				var p *CommandParameter
				if p, ok = s.ParameterAt(index); ok {
					name = p.Name
				}
			default:
				return "", &WorkflowError{
					Code:    WorkflowErrorInvalidReference,
					Message: fmt.Sprintf("%q cannot select a parameter on step %q", segment, s.Name),
					Step:    s.Name,
				}
			}
			if !ok {
				return "", &WorkflowError{
					Code:    WorkflowErrorReferenceNotFound,
					Message: fmt.Sprintf("parameter %q not found on step %q", segment, s.Name),
					Step:    s.Name,
				}
			}
			return name, nil
		}
		if t := s.FindTarget(segment); t != nil {
			return t.RefName(), nil
		}
		return "", &WorkflowError{
			Code:    WorkflowErrorReferenceNotFound,
			Message: fmt.Sprintf("parameter %q not found on step %q", segment, s.Name),
			Step:    s.Name,
		}

	case *CompositePlan:
		if positional {
			if kind != "mapping" {
				return "", &WorkflowError{
					Code:    WorkflowErrorInvalidReference,
					Message: fmt.Sprintf("%q cannot select a mapping on composite plan %q", segment, s.Name),
					Step:    s.Name,
				}
			}
			m, ok := s.MappingAt(index)
			if !ok {
				return "", &WorkflowError{
					Code:    WorkflowErrorReferenceNotFound,
					Message: fmt.Sprintf("mapping %q not found on composite plan %q", segment, s.Name),
					Step:    s.Name,
				}
			}
			return m.Name, nil
		}
		if m := s.FindMapping(segment); m != nil {
			return m.Name, nil
		}
		return "", &WorkflowError{
			Code:    WorkflowErrorReferenceNotFound,
			Message: fmt.Sprintf("mapping %q not found on composite plan %q", segment, s.Name),
			Step:    s.Name,
		}

	default:
		return "", &WorkflowError{
			Code:    WorkflowErrorInvalidReference,
			Message: fmt.Sprintf("unknown step kind for %q", segment),
		}
	}
}

// ParseMappingTargets parses a ","-combined fan-out target list, e.g.
// "step1.a,step2.b": every listed reference becomes a target of one mapping.
func ParseMappingTargets(root *CompositePlan, expr string) ([]ParamRef, error) {
	parts := strings.Split(expr, ",")
	refs := make([]ParamRef, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, &WorkflowError{
				Code:    WorkflowErrorInvalidReference,
				Message: fmt.Sprintf("empty reference in target list %q", expr),
			}
		}
		ref, err := ResolveReference(root, part)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ParseMappingExpression parses a "--map name=target[,target...]" style
// expression into the mapping name and its resolved targets.
func ParseMappingExpression(root *CompositePlan, expr string) (string, []ParamRef, error) {
	name, targets, found := strings.Cut(expr, "=")
	if !found || name == "" || targets == "" {
		return "", nil, &WorkflowError{
			Code:    WorkflowErrorInvalidReference,
			Message: fmt.Sprintf("malformed mapping expression %q, expected name=target[,target...]", expr),
		}
	}
	refs, err := ParseMappingTargets(root, targets)
	if err != nil {
		return "", nil, err
	}
	return name, refs, nil
}

// ParseLinkExpression parses a "--link source=sink[,sink...]" style
// expression into resolved source and sink references.
func ParseLinkExpression(root *CompositePlan, expr string) (ParamRef, []ParamRef, error) {
	source, sinks, found := strings.Cut(expr, "=")
	if !found || source == "" || sinks == "" {
		return ParamRef{}, nil, &WorkflowError{
			Code:    WorkflowErrorInvalidReference,
			Message: fmt.Sprintf("malformed link expression %q, expected source=sink[,sink...]", expr),
		}
	}
	sourceRef, err := ResolveReference(root, strings.TrimSpace(source))
	if err != nil {
		return ParamRef{}, nil, err
	}
	sinkRefs, err := ParseMappingTargets(root, sinks)
	if err != nil {
		return ParamRef{}, nil, err
	}
	return sourceRef, sinkRefs, nil
}

// parsePositional splits a positional token into its kind and 1-based index.
func parsePositional(segment string) (kind string, index int, ok bool) {
	m := positionalRe.FindStringSubmatch(segment)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}
