package workflow

import (
	"fmt"
)

// IOStream identifies a standard stream a parameter is bound to.
type IOStream string

const (
	StreamStdin  IOStream = "stdin"
	StreamStdout IOStream = "stdout"
	StreamStderr IOStream = "stderr"
)

// ValueTarget is anything that can carry a resolved value: command inputs,
// command outputs, plain command parameters, and composite plan mappings.
// The expression resolver, the execution graph builder, and the value
// resolver operate only through this interface.
type ValueTarget interface {
	// RefID returns the stable identifier of the target.
	RefID() string

	// RefName returns the human-readable name of the target, unique within
	// the owning plan or composite.
	RefName() string

	// Default returns the declared default value.
	Default() any

	// Actual returns the resolved value, falling back to the default when
	// no override has been applied.
	Actual() any

	// SetActual overrides the resolved value.
	SetActual(v any)
}

// ParameterBase holds the fields shared by command inputs, outputs, and
// plain parameters.
type ParameterBase struct {
	// ID is the stable identifier, derived from the owning plan ID and the
	// parameter's slot within it.
	ID string `json:"id" yaml:"id"`

	// Name is the human label, unique within the owning plan.
	// Auto-generated when absent.
	Name string `json:"name" yaml:"name"`

	// DefaultValue is the value recorded at plan creation time.
	DefaultValue any `json:"default_value" yaml:"default_value"`

	// ActualValue is the override winner after value resolution.
	// Nil means no override was applied and the default is in effect.
	ActualValue any `json:"actual_value,omitempty" yaml:"actual_value,omitempty"`

	// Position is the ordinal for command-line reconstruction.
	// Nil for non-positional parameters.
	Position *int `json:"position,omitempty" yaml:"position,omitempty"`

	// Prefix is prepended when rendering the parameter, e.g. "--flag=".
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Description provides additional context for the parameter.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// RefID returns the stable identifier of the parameter.
func (p *ParameterBase) RefID() string { return p.ID }

// RefName returns the parameter name.
func (p *ParameterBase) RefName() string { return p.Name }

// Default returns the declared default value.
func (p *ParameterBase) Default() any { return p.DefaultValue }

// Actual returns the resolved value, falling back to the default.
func (p *ParameterBase) Actual() any {
	if p.ActualValue != nil {
		return p.ActualValue
	}
	return p.DefaultValue
}

// SetActual overrides the resolved value.
func (p *ParameterBase) SetActual(v any) { p.ActualValue = v }

// CommandInput is a parameter consumed by a plan, typically a file or
// directory path.
type CommandInput struct {
	ParameterBase `yaml:",inline"`

	// MappedTo is the optional stream binding (stdin).
	MappedTo IOStream `json:"mapped_to,omitempty" yaml:"mapped_to,omitempty"`

	// EncodingFormat tags the input type, distinguishing files, directories,
	// and plain values.
	EncodingFormat []string `json:"encoding_format,omitempty" yaml:"encoding_format,omitempty"`
}

// CommandOutput is a parameter produced by a plan.
type CommandOutput struct {
	ParameterBase `yaml:",inline"`

	// MappedTo is the optional stream binding (stdout or stderr).
	MappedTo IOStream `json:"mapped_to,omitempty" yaml:"mapped_to,omitempty"`

	// CreateFolder indicates the parent directory must be created before
	// execution.
	CreateFolder bool `json:"create_folder,omitempty" yaml:"create_folder,omitempty"`
}

// CommandParameter is a plain command-line parameter with no data-flow role.
type CommandParameter struct {
	ParameterBase `yaml:",inline"`
}

// copyBase returns a deep copy of the base fields with the ID rebased onto
// a new owning plan ID.
func (p *ParameterBase) copyBase(planID, kind string, slot int) ParameterBase {
	out := *p
	out.ID = parameterID(planID, kind, slot)
	if p.Position != nil {
		pos := *p.Position
		out.Position = &pos
	}
	return out
}

// parameterID derives the stable parameter identifier from the owning plan
// ID, the parameter kind, and its slot within the plan.
func parameterID(planID, kind string, slot int) string {
	return fmt.Sprintf("%s/%s/%d", planID, kind, slot)
}

// render returns the command-line fragment for the parameter value.
// A prefix ending in "=" or in a non-space character is fused with the
// value; otherwise prefix and value become separate argv entries.
func (p *ParameterBase) render() []string {
	value := fmt.Sprintf("%v", p.Actual())
	if p.Prefix == "" {
		return []string{value}
	}
	last := p.Prefix[len(p.Prefix)-1]
	if last == ' ' {
		return []string{p.Prefix[:len(p.Prefix)-1], value}
	}
	return []string{p.Prefix + value}
}
