package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/lineage-dev/lineage/internal/types"
)

// ParamRef is a symbolic reference to a parameter or mapping inside a plan
// tree: a chain of step names from the enclosing composite down to the
// owning step, plus the parameter (or mapping) name. References are symbolic
// rather than pointers so that deriving a composite never needs pointer
// rebinding and the structure serializes cleanly.
type ParamRef struct {
	// Steps is the chain of child step names from the owning composite.
	// Empty when the reference targets a mapping on the composite itself.
	Steps []string `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Param is the parameter or mapping name (or stable ID).
	Param string `json:"param" yaml:"param"`
}

// String renders the reference in dotted form, e.g. "step1.input-1".
func (r ParamRef) String() string {
	if len(r.Steps) == 0 {
		return r.Param
	}
	return strings.Join(r.Steps, ".") + "." + r.Param
}

// Mapping is a named parameter exposed on a CompositePlan that fans out to
// one or more parameters on descendant steps. A mapping may itself target
// another mapping on a nested composite; such chains resolve transitively.
type Mapping struct {
	// ID is the stable identifier of the mapping.
	ID string `json:"id" yaml:"id"`

	// Name is unique on the owning composite.
	Name string `json:"name" yaml:"name"`

	// DefaultValue overrides the targeted parameters' own defaults.
	DefaultValue any `json:"default_value,omitempty" yaml:"default_value,omitempty"`

	// ActualValue is the override winner after value resolution.
	ActualValue any `json:"actual_value,omitempty" yaml:"actual_value,omitempty"`

	// Description provides additional context for the mapping.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// MapsTo is the ordered set of references this mapping fans out to.
	MapsTo []ParamRef `json:"maps_to" yaml:"maps_to"`
}

// RefID returns the stable identifier of the mapping.
func (m *Mapping) RefID() string { return m.ID }

// RefName returns the mapping name.
func (m *Mapping) RefName() string { return m.Name }

// Default returns the mapping's default value.
func (m *Mapping) Default() any { return m.DefaultValue }

// Actual returns the resolved value, falling back to the default.
func (m *Mapping) Actual() any {
	if m.ActualValue != nil {
		return m.ActualValue
	}
	return m.DefaultValue
}

// SetActual overrides the resolved value.
func (m *Mapping) SetActual(v any) { m.ActualValue = v }

// Link is a forced data-flow edge from one output parameter to one or more
// input or plain parameters on other steps. A linked value is always
// propagated regardless of other overrides.
type Link struct {
	// Source must resolve to a command output, or to a mapping whose leaf
	// targets are all outputs.
	Source ParamRef `json:"source" yaml:"source"`

	// Sinks must resolve to command inputs or plain parameters.
	Sinks []ParamRef `json:"sinks" yaml:"sinks"`
}

// CompositePlan is a named group of child Plans and CompositePlans plus
// Mappings (parameter exposure) and Links (forced data-flow edges). Its own
// parameters are exactly its mappings; it has no command of its own.
//
// The children must form a DAG once links are resolved into the execution
// graph; this is enforced at mutation time by AddLink and LinkAll.
type CompositePlan struct {
	// ID is the stable identifier of this composite version.
	ID string `json:"id" yaml:"id"`

	// Name is unique among active plans.
	Name string `json:"name" yaml:"name"`

	// Description provides additional context about the workflow.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Keywords tag the composite for discovery.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Plans is the ordered list of child steps.
	Plans []Step `json:"plans" yaml:"plans"`

	// Mappings are the composite's exposed parameters.
	Mappings []*Mapping `json:"mappings,omitempty" yaml:"mappings,omitempty"`

	// Links are the forced data-flow edges between child parameters.
	Links []*Link `json:"links,omitempty" yaml:"links,omitempty"`

	// DerivedFrom is the ID of the prior version, set by Derive.
	DerivedFrom string `json:"derived_from,omitempty" yaml:"derived_from,omitempty"`

	// InvalidatedAt is the soft-delete timestamp; nil means active.
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty" yaml:"invalidated_at,omitempty"`

	// DateCreated is the timestamp when this version was created.
	DateCreated time.Time `json:"date_created" yaml:"date_created"`
}

// NewCompositePlan groups the given steps into a composite. Child step names
// must be unique; a duplicate name is a structural violation and aborts the
// compose.
func NewCompositePlan(name string, steps ...Step) (*CompositePlan, error) {
	if name == "" {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: "composite plan must have a name",
		}
	}
	if len(steps) == 0 {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: fmt.Sprintf("composite plan %q must contain at least one step", name),
		}
	}

	seen := make(map[string]bool)
	for _, s := range steps {
		if seen[s.StepName()] {
			return nil, &WorkflowError{
				Code:    WorkflowErrorDuplicateName,
				Message: fmt.Sprintf("duplicate step name %q in composite plan %q", s.StepName(), name),
				Step:    s.StepName(),
			}
		}
		seen[s.StepName()] = true
	}

	return &CompositePlan{
		ID:          types.NewID().String(),
		Name:        name,
		Plans:       steps,
		DateCreated: time.Now(),
	}, nil
}

// StepID returns the composite ID.
func (c *CompositePlan) StepID() string { return c.ID }

// StepName returns the composite name.
func (c *CompositePlan) StepName() string { return c.Name }

// StepDescription returns the composite description.
func (c *CompositePlan) StepDescription() string { return c.Description }

// IsActive reports whether the composite has not been soft-deleted.
func (c *CompositePlan) IsActive() bool { return c.InvalidatedAt == nil }

// Invalidate marks the composite as soft-deleted.
func (c *CompositePlan) Invalidate() {
	now := time.Now()
	c.InvalidatedAt = &now
}

// Derive returns a deep copy of the composite with a fresh identity. Every
// child step is derived as well, so the result shares no mutable state with
// the original. Mappings and links carry over unchanged: they reference
// steps by name, which deriving preserves.
func (c *CompositePlan) Derive() Step {
	return c.deriveComposite()
}

func (c *CompositePlan) deriveComposite() *CompositePlan {
	out := *c
	out.ID = types.NewID().String()
	out.DerivedFrom = c.ID
	out.DateCreated = time.Now()
	out.InvalidatedAt = nil

	out.Keywords = append([]string(nil), c.Keywords...)

	out.Plans = make([]Step, len(c.Plans))
	for i, child := range c.Plans {
		out.Plans[i] = child.Derive()
	}

	out.Mappings = make([]*Mapping, len(c.Mappings))
	for i, m := range c.Mappings {
		mc := *m
		mc.MapsTo = append([]ParamRef(nil), m.MapsTo...)
		out.Mappings[i] = &mc
	}

	out.Links = make([]*Link, len(c.Links))
	for i, l := range c.Links {
		lc := *l
		lc.Sinks = append([]ParamRef(nil), l.Sinks...)
		out.Links[i] = &lc
	}

	return &out
}

// Targets returns the composite's exposed parameters, i.e. its mappings, in
// declaration order.
func (c *CompositePlan) Targets() []ValueTarget {
	targets := make([]ValueTarget, 0, len(c.Mappings))
	for _, m := range c.Mappings {
		targets = append(targets, m)
	}
	return targets
}

// FindMapping looks up a mapping by name or ID. Returns nil if not found.
func (c *CompositePlan) FindMapping(nameOrID string) *Mapping {
	for _, m := range c.Mappings {
		if m.Name == nameOrID || m.ID == nameOrID {
			return m
		}
	}
	return nil
}

// FindStep looks up a direct child step by name or ID. Returns nil if not
// found.
func (c *CompositePlan) FindStep(nameOrID string) Step {
	for _, s := range c.Plans {
		if s.StepName() == nameOrID || s.StepID() == nameOrID {
			return s
		}
	}
	return nil
}

// StepAt returns the nth child step (1-indexed, declaration order).
func (c *CompositePlan) StepAt(n int) (Step, bool) {
	if n < 1 || n > len(c.Plans) {
		return nil, false
	}
	return c.Plans[n-1], true
}

// MappingAt returns the nth mapping (1-indexed, declaration order).
func (c *CompositePlan) MappingAt(n int) (*Mapping, bool) {
	if n < 1 || n > len(c.Mappings) {
		return nil, false
	}
	return c.Mappings[n-1], true
}

// Binding couples a resolved reference target with its owning step.
type Binding struct {
	// Owner is the step the target lives on: a leaf Plan for command
	// parameters, the composite itself for mappings.
	Owner Step

	// Target is the resolved parameter or mapping.
	Target ValueTarget
}

// ResolveRef resolves a symbolic reference against this composite to the
// step and parameter (or mapping) it names. Resolution fails with a
// reference_not_found error naming the missing segment.
func (c *CompositePlan) ResolveRef(ref ParamRef) (*Binding, error) {
	if len(ref.Steps) == 0 {
		if m := c.FindMapping(ref.Param); m != nil {
			return &Binding{Owner: c, Target: m}, nil
		}
		return nil, &WorkflowError{
			Code:    WorkflowErrorReferenceNotFound,
			Message: fmt.Sprintf("mapping %q not found on composite plan %q", ref.Param, c.Name),
			Step:    c.Name,
		}
	}

	child := c.FindStep(ref.Steps[0])
	if child == nil {
		return nil, &WorkflowError{
			Code:    WorkflowErrorReferenceNotFound,
			Message: fmt.Sprintf("step %q not found in composite plan %q", ref.Steps[0], c.Name),
			Step:    c.Name,
		}
	}

	switch s := child.(type) {
	case *CompositePlan:
		return s.ResolveRef(ParamRef{Steps: ref.Steps[1:], Param: ref.Param})
	case *Plan:
		if len(ref.Steps) > 1 {
			return nil, &WorkflowError{
				Code:    WorkflowErrorInvalidReference,
				Message: fmt.Sprintf("step %q is not a composite plan, cannot resolve %q", s.Name, ref.String()),
				Step:    s.Name,
			}
		}
		if t := s.FindTarget(ref.Param); t != nil {
			return &Binding{Owner: s, Target: t}, nil
		}
		return nil, &WorkflowError{
			Code:    WorkflowErrorReferenceNotFound,
			Message: fmt.Sprintf("parameter %q not found on step %q", ref.Param, s.Name),
			Step:    s.Name,
		}
	default:
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidReference,
			Message: fmt.Sprintf("unknown step kind for %q", ref.Steps[0]),
		}
	}
}

// LeafBindings resolves a reference down to concrete leaf plan parameters,
// following mapping fan-out transitively. The result preserves the
// declaration order of mapping targets.
func (c *CompositePlan) LeafBindings(ref ParamRef) ([]*Binding, error) {
	b, err := c.ResolveRef(ref)
	if err != nil {
		return nil, err
	}
	return c.expandBinding(b)
}

func (c *CompositePlan) expandBinding(b *Binding) ([]*Binding, error) {
	m, ok := b.Target.(*Mapping)
	if !ok {
		return []*Binding{b}, nil
	}

	owner, ok := b.Owner.(*CompositePlan)
	if !ok {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidReference,
			Message: fmt.Sprintf("mapping %q is not owned by a composite plan", m.Name),
		}
	}

	var leaves []*Binding
	for _, targetRef := range m.MapsTo {
		nested, err := owner.ResolveRef(targetRef)
		if err != nil {
			return nil, err
		}
		expanded, err := owner.expandBinding(nested)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, expanded...)
	}
	return leaves, nil
}

// AddMapping exposes a named parameter on the composite, fanning out to the
// given descendant targets. Every target must resolve; the mapping name must
// be unique on the composite.
func (c *CompositePlan) AddMapping(name string, defaultValue any, description string, targets []ParamRef) (*Mapping, error) {
	if name == "" {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: fmt.Sprintf("mapping on composite plan %q must have a name", c.Name),
			Step:    c.Name,
		}
	}
	if c.FindMapping(name) != nil {
		return nil, &WorkflowError{
			Code:    WorkflowErrorDuplicateName,
			Message: fmt.Sprintf("mapping %q already exists on composite plan %q", name, c.Name),
			Step:    c.Name,
		}
	}
	if len(targets) == 0 {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: fmt.Sprintf("mapping %q must target at least one parameter", name),
			Step:    c.Name,
		}
	}

	for _, ref := range targets {
		if _, err := c.ResolveRef(ref); err != nil {
			return nil, err
		}
	}

	m := &Mapping{
		ID:           fmt.Sprintf("%s/mappings/%d", c.ID, len(c.Mappings)+1),
		Name:         name,
		DefaultValue: defaultValue,
		Description:  description,
		MapsTo:       targets,
	}
	c.Mappings = append(c.Mappings, m)
	return m, nil
}

// AddLink adds a forced data-flow edge. The source must resolve to command
// outputs (directly or through mappings), every sink to command inputs or
// plain parameters. The resulting execution graph must stay acyclic; on a
// cycle the link is not added and a GraphCycleError is returned.
func (c *CompositePlan) AddLink(source ParamRef, sinks []ParamRef) (*Link, error) {
	if len(sinks) == 0 {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidLink,
			Message: "link must have at least one sink",
			Step:    c.Name,
		}
	}

	sourceLeaves, err := c.LeafBindings(source)
	if err != nil {
		return nil, err
	}
	for _, leaf := range sourceLeaves {
		if _, ok := leaf.Target.(*CommandOutput); !ok {
			return nil, &WorkflowError{
				Code:    WorkflowErrorInvalidLink,
				Message: fmt.Sprintf("link source %q must be a command output", source.String()),
				Step:    c.Name,
			}
		}
	}

	for _, sink := range sinks {
		leaves, err := c.LeafBindings(sink)
		if err != nil {
			return nil, err
		}
		for _, leaf := range leaves {
			switch leaf.Target.(type) {
			case *CommandInput, *CommandParameter:
			default:
				return nil, &WorkflowError{
					Code:    WorkflowErrorInvalidLink,
					Message: fmt.Sprintf("link sink %q must be a command input or parameter", sink.String()),
					Step:    c.Name,
				}
			}
		}
	}

	link := &Link{Source: source, Sinks: sinks}
	c.Links = append(c.Links, link)

	// Mutation-time acyclicity check; roll back on a cycle.
	if _, err := BuildGraph(c, false); err != nil {
		c.Links = c.Links[:len(c.Links)-1]
		return nil, err
	}

	return link, nil
}

// LinkAll materializes every auto-detected virtual link (matching default
// path values between outputs and inputs) as a hard link. The composite is
// left untouched if the resulting graph would contain a cycle.
func (c *CompositePlan) LinkAll() ([]*Link, error) {
	g, err := BuildGraph(c, true)
	if err != nil {
		return nil, err
	}

	before := len(c.Links)
	var added []*Link
	for _, edge := range g.VirtualEdges {
		link := &Link{Source: edge.SourceRef, Sinks: []ParamRef{edge.SinkRef}}
		c.Links = append(c.Links, link)
		added = append(added, link)
	}

	if _, err := BuildGraph(c, false); err != nil {
		c.Links = c.Links[:before]
		return nil, err
	}
	return added, nil
}

// collectLinks gathers the links of this composite and every nested
// composite, depth-first in declaration order. Each link is paired with the
// composite that owns it so its references resolve in the right scope.
func (c *CompositePlan) collectLinks() []scopedLink {
	var links []scopedLink
	for _, child := range c.Plans {
		if nested, ok := child.(*CompositePlan); ok {
			links = append(links, nested.collectLinks()...)
		}
	}
	for _, l := range c.Links {
		links = append(links, scopedLink{owner: c, link: l})
	}
	return links
}

type scopedLink struct {
	owner *CompositePlan
	link  *Link
}
