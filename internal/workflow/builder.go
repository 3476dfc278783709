package workflow

import (
	"fmt"
	"time"

	"github.com/lineage-dev/lineage/internal/types"
)

// PlanBuilder provides a fluent API for constructing plans from a recorded
// command invocation. It accumulates errors during building and reports them
// all at Build() time.
type PlanBuilder struct {
	plan   *Plan
	errors []error
}

// NewPlan creates a new PlanBuilder for the given plan name and base command.
func NewPlan(name, command string) *PlanBuilder {
	return &PlanBuilder{
		plan: &Plan{
			ID:           types.NewID().String(),
			Name:         name,
			Command:      command,
			SuccessCodes: []int{0},
			DateCreated:  time.Now(),
		},
	}
}

// WithDescription sets the description for the plan.
func (pb *PlanBuilder) WithDescription(desc string) *PlanBuilder {
	pb.plan.Description = desc
	return pb
}

// WithKeywords sets the discovery keywords for the plan.
func (pb *PlanBuilder) WithKeywords(keywords ...string) *PlanBuilder {
	pb.plan.Keywords = keywords
	return pb
}

// WithSuccessCodes replaces the exit codes considered successful.
func (pb *PlanBuilder) WithSuccessCodes(codes ...int) *PlanBuilder {
	if len(codes) == 0 {
		pb.errors = append(pb.errors, fmt.Errorf("success codes cannot be empty"))
		return pb
	}
	pb.plan.SuccessCodes = codes
	return pb
}

// AddInput adds a command input to the plan. Name may be empty, in which
// case a name is generated at Build() time.
func (pb *PlanBuilder) AddInput(input *CommandInput) *PlanBuilder {
	if input == nil {
		pb.errors = append(pb.errors, fmt.Errorf("cannot add nil input"))
		return pb
	}
	pb.plan.Inputs = append(pb.plan.Inputs, input)
	return pb
}

// AddOutput adds a command output to the plan.
func (pb *PlanBuilder) AddOutput(output *CommandOutput) *PlanBuilder {
	if output == nil {
		pb.errors = append(pb.errors, fmt.Errorf("cannot add nil output"))
		return pb
	}
	pb.plan.Outputs = append(pb.plan.Outputs, output)
	return pb
}

// AddParameter adds a plain command parameter to the plan.
func (pb *PlanBuilder) AddParameter(param *CommandParameter) *PlanBuilder {
	if param == nil {
		pb.errors = append(pb.errors, fmt.Errorf("cannot add nil parameter"))
		return pb
	}
	pb.plan.Parameters = append(pb.plan.Parameters, param)
	return pb
}

// Build assigns parameter IDs and generated names, validates name
// uniqueness, and returns the constructed plan or accumulated errors.
func (pb *PlanBuilder) Build() (*Plan, error) {
	if pb.plan.Name == "" {
		pb.errors = append(pb.errors, fmt.Errorf("plan must have a name"))
	}
	if pb.plan.Command == "" {
		pb.errors = append(pb.errors, fmt.Errorf("plan must have a command"))
	}

	for i, in := range pb.plan.Inputs {
		in.ID = parameterID(pb.plan.ID, "inputs", i+1)
		if in.Name == "" {
			in.Name = fmt.Sprintf("input-%d", i+1)
		}
	}
	for i, o := range pb.plan.Outputs {
		o.ID = parameterID(pb.plan.ID, "outputs", i+1)
		if o.Name == "" {
			o.Name = fmt.Sprintf("output-%d", i+1)
		}
	}
	for i, p := range pb.plan.Parameters {
		p.ID = parameterID(pb.plan.ID, "parameters", i+1)
		if p.Name == "" {
			p.Name = fmt.Sprintf("parameter-%d", i+1)
		}
	}

	if err := pb.plan.validateUniqueNames(); err != nil {
		pb.errors = append(pb.errors, err)
	}

	if len(pb.errors) > 0 {
		return nil, fmt.Errorf("plan validation failed with %d error(s): %v", len(pb.errors), pb.errors)
	}
	return pb.plan, nil
}
