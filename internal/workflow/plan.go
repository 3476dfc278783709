package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lineage-dev/lineage/internal/types"
)

// Plan is the immutable template of a single command invocation: the base
// command, its ordered inputs, outputs, and plain parameters, and the exit
// codes considered successful.
//
// A Plan is created by the builder from a recorded command invocation, or
// synthesized by value resolution and iteration expansion. Once persisted it
// is never mutated in place: edits go through Derive, which produces a new
// identity linked to the prior version via DerivedFrom. Deletion is logical
// (InvalidatedAt), never physical, so reruns can still find old versions.
type Plan struct {
	// ID is the stable identifier of this plan version.
	ID string `json:"id" yaml:"id"`

	// Name is unique among active plans.
	Name string `json:"name" yaml:"name"`

	// Description provides additional context about what the plan does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Keywords tag the plan for discovery.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Command is the base executable invocation, e.g. "python script.py".
	Command string `json:"command" yaml:"command"`

	// Inputs, Outputs, and Parameters are the ordered parameter lists.
	// Their shape is immutable after first persistence.
	Inputs     []*CommandInput     `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []*CommandOutput    `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Parameters []*CommandParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// SuccessCodes are the exit codes considered success. Defaults to {0}.
	SuccessCodes []int `json:"success_codes,omitempty" yaml:"success_codes,omitempty"`

	// DerivedFrom is the ID of the prior plan version, set by Derive.
	DerivedFrom string `json:"derived_from,omitempty" yaml:"derived_from,omitempty"`

	// InvalidatedAt is the soft-delete timestamp; nil means active.
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty" yaml:"invalidated_at,omitempty"`

	// DateCreated is the timestamp when this plan version was created.
	DateCreated time.Time `json:"date_created" yaml:"date_created"`
}

// StepID returns the plan ID.
func (p *Plan) StepID() string { return p.ID }

// StepName returns the plan name.
func (p *Plan) StepName() string { return p.Name }

// StepDescription returns the plan description.
func (p *Plan) StepDescription() string { return p.Description }

// IsActive reports whether the plan has not been soft-deleted.
func (p *Plan) IsActive() bool { return p.InvalidatedAt == nil }

// Derive returns a deep copy of the plan with a fresh ID, DerivedFrom set to
// the prior ID, and all parameter IDs rebased onto the new plan ID.
func (p *Plan) Derive() Step {
	return p.derive()
}

func (p *Plan) derive() *Plan {
	out := *p
	out.ID = types.NewID().String()
	out.DerivedFrom = p.ID
	out.DateCreated = time.Now()
	out.InvalidatedAt = nil

	out.Keywords = append([]string(nil), p.Keywords...)
	out.SuccessCodes = append([]int(nil), p.SuccessCodes...)

	out.Inputs = make([]*CommandInput, len(p.Inputs))
	for i, in := range p.Inputs {
		c := *in
		c.ParameterBase = in.copyBase(out.ID, "inputs", i+1)
		c.EncodingFormat = append([]string(nil), in.EncodingFormat...)
		out.Inputs[i] = &c
	}
	out.Outputs = make([]*CommandOutput, len(p.Outputs))
	for i, o := range p.Outputs {
		c := *o
		c.ParameterBase = o.copyBase(out.ID, "outputs", i+1)
		out.Outputs[i] = &c
	}
	out.Parameters = make([]*CommandParameter, len(p.Parameters))
	for i, pr := range p.Parameters {
		c := *pr
		c.ParameterBase = pr.copyBase(out.ID, "parameters", i+1)
		out.Parameters[i] = &c
	}

	return &out
}

// Invalidate marks the plan as soft-deleted.
func (p *Plan) Invalidate() {
	now := time.Now()
	p.InvalidatedAt = &now
}

// Targets returns every value-carrying parameter of the plan in declaration
// order: inputs, then outputs, then plain parameters.
func (p *Plan) Targets() []ValueTarget {
	targets := make([]ValueTarget, 0, len(p.Inputs)+len(p.Outputs)+len(p.Parameters))
	for _, in := range p.Inputs {
		targets = append(targets, in)
	}
	for _, o := range p.Outputs {
		targets = append(targets, o)
	}
	for _, pr := range p.Parameters {
		targets = append(targets, pr)
	}
	return targets
}

// FindTarget looks up a parameter by name or ID. Returns nil if not found.
func (p *Plan) FindTarget(nameOrID string) ValueTarget {
	for _, t := range p.Targets() {
		if t.RefName() == nameOrID || t.RefID() == nameOrID {
			return t
		}
	}
	return nil
}

// InputAt returns the nth input (1-indexed, declaration order).
func (p *Plan) InputAt(n int) (*CommandInput, bool) {
	if n < 1 || n > len(p.Inputs) {
		return nil, false
	}
	return p.Inputs[n-1], true
}

// OutputAt returns the nth output (1-indexed, declaration order).
func (p *Plan) OutputAt(n int) (*CommandOutput, bool) {
	if n < 1 || n > len(p.Outputs) {
		return nil, false
	}
	return p.Outputs[n-1], true
}

// ParameterAt returns the nth plain parameter (1-indexed, declaration order).
func (p *Plan) ParameterAt(n int) (*CommandParameter, bool) {
	if n < 1 || n > len(p.Parameters) {
		return nil, false
	}
	return p.Parameters[n-1], true
}

// IsSuccessCode reports whether the given exit code counts as success.
func (p *Plan) IsSuccessCode(code int) bool {
	if len(p.SuccessCodes) == 0 {
		return code == 0
	}
	for _, c := range p.SuccessCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ToArgv assembles the command line for the plan: the base command followed
// by every positioned parameter in position order, rendered with its prefix.
// Parameters bound to a stream or without a position do not appear in argv.
func (p *Plan) ToArgv() []string {
	argv := strings.Fields(p.Command)

	type slot struct {
		position int
		base     *ParameterBase
	}
	var slots []slot
	for _, in := range p.Inputs {
		if in.Position != nil && in.MappedTo == "" {
			slots = append(slots, slot{*in.Position, &in.ParameterBase})
		}
	}
	for _, o := range p.Outputs {
		if o.Position != nil && o.MappedTo == "" {
			slots = append(slots, slot{*o.Position, &o.ParameterBase})
		}
	}
	for _, pr := range p.Parameters {
		if pr.Position != nil {
			slots = append(slots, slot{*pr.Position, &pr.ParameterBase})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].position < slots[j].position })

	for _, s := range slots {
		argv = append(argv, s.base.render()...)
	}
	return argv
}

// EditOptions describes the non-structural changes Edit may apply to a plan.
// Structural shape (the number and identity of inputs, outputs, and
// parameters) never changes after first persistence.
type EditOptions struct {
	// Name renames the plan when non-nil.
	Name *string

	// Description replaces the plan description when non-nil.
	Description *string

	// RenameParameters maps current parameter names to new names.
	RenameParameters map[string]string

	// DescribeParameters maps parameter names to new descriptions.
	DescribeParameters map[string]string

	// SetDefaults maps parameter names to new default values.
	SetDefaults map[string]any
}

// Edit applies non-structural changes to a derived copy of the plan and
// returns the new version. Unknown parameter names abort the edit with a
// parameter_not_found error naming the offender.
func (p *Plan) Edit(opts EditOptions) (*Plan, error) {
	derived := p.derive()

	if opts.Name != nil {
		derived.Name = *opts.Name
	}
	if opts.Description != nil {
		derived.Description = *opts.Description
	}

	for _, name := range sortedKeys(opts.SetDefaults) {
		target := derived.FindTarget(name)
		if target == nil {
			return nil, &WorkflowError{
				Code:    WorkflowErrorParameterNotFound,
				Message: fmt.Sprintf("parameter %q not found on plan %q", name, p.Name),
				Step:    p.Name,
			}
		}
		switch t := target.(type) {
		case *CommandInput:
			t.DefaultValue = opts.SetDefaults[name]
		case *CommandOutput:
			t.DefaultValue = opts.SetDefaults[name]
		case *CommandParameter:
			t.DefaultValue = opts.SetDefaults[name]
		}
	}

	for _, name := range sortedStringKeys(opts.DescribeParameters) {
		if err := derived.describeParameter(name, opts.DescribeParameters[name]); err != nil {
			return nil, err
		}
	}

	for _, name := range sortedStringKeys(opts.RenameParameters) {
		if err := derived.renameParameter(name, opts.RenameParameters[name]); err != nil {
			return nil, err
		}
	}

	if err := derived.validateUniqueNames(); err != nil {
		return nil, err
	}
	return derived, nil
}

func (p *Plan) renameParameter(name, newName string) error {
	target := p.FindTarget(name)
	if target == nil {
		return &WorkflowError{
			Code:    WorkflowErrorParameterNotFound,
			Message: fmt.Sprintf("parameter %q not found on plan %q", name, p.Name),
			Step:    p.Name,
		}
	}
	switch t := target.(type) {
	case *CommandInput:
		t.Name = newName
	case *CommandOutput:
		t.Name = newName
	case *CommandParameter:
		t.Name = newName
	}
	return nil
}

func (p *Plan) describeParameter(name, description string) error {
	target := p.FindTarget(name)
	if target == nil {
		return &WorkflowError{
			Code:    WorkflowErrorParameterNotFound,
			Message: fmt.Sprintf("parameter %q not found on plan %q", name, p.Name),
			Step:    p.Name,
		}
	}
	switch t := target.(type) {
	case *CommandInput:
		t.Description = description
	case *CommandOutput:
		t.Description = description
	case *CommandParameter:
		t.Description = description
	}
	return nil
}

// validateUniqueNames checks that parameter names are unique within the plan.
func (p *Plan) validateUniqueNames() error {
	seen := make(map[string]bool)
	for _, t := range p.Targets() {
		name := t.RefName()
		if seen[name] {
			return &WorkflowError{
				Code:    WorkflowErrorDuplicateName,
				Message: fmt.Sprintf("duplicate parameter name %q on plan %q", name, p.Name),
				Step:    p.Name,
			}
		}
		seen[name] = true
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
