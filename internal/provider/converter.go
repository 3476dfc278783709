package provider

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

// Converter renders a finalized plan tree into an external workflow format.
// Converters read the tree only; they never mutate it.
type Converter interface {
	// Format returns the registry key of the output format.
	Format() string

	// Convert renders the step. Relative paths are resolved against
	// basedir when it is non-empty.
	Convert(step workflow.Step, basedir string) ([]byte, error)
}

// ConverterRegistry holds workflow format converters by format name.
type ConverterRegistry struct {
	mu         sync.RWMutex
	converters map[string]Converter
}

// NewConverterRegistry creates a registry with the built-in formats.
func NewConverterRegistry() *ConverterRegistry {
	r := &ConverterRegistry{converters: make(map[string]Converter)}
	r.Register(&yamlConverter{})
	return r
}

// Register adds a converter, replacing any existing one for the format.
func (r *ConverterRegistry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[c.Format()] = c
}

// Convert renders a step in the named format.
func (r *ConverterRegistry) Convert(step workflow.Step, basedir, format string) ([]byte, error) {
	r.mu.RLock()
	c, ok := r.converters[format]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.PROVIDER_NOT_FOUND,
			fmt.Sprintf("no workflow converter for format %q", format))
	}
	return c.Convert(step, basedir)
}

// Formats returns the registered format names, sorted.
func (r *ConverterRegistry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]string, 0, len(r.converters))
	for f := range r.converters {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// exportParameter is one parameter in the exported document.
type exportParameter struct {
	Name    string `yaml:"name"`
	Value   any    `yaml:"value,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
	Default any    `yaml:"default,omitempty"`
}

// exportStep is one plan or nested workflow in the exported document.
type exportStep struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Command     string            `yaml:"command,omitempty"`
	Inputs      []exportParameter `yaml:"inputs,omitempty"`
	Outputs     []exportParameter `yaml:"outputs,omitempty"`
	Parameters  []exportParameter `yaml:"parameters,omitempty"`
	Steps       []exportStep      `yaml:"steps,omitempty"`
	Mappings    []exportParameter `yaml:"mappings,omitempty"`
	Links       []string          `yaml:"links,omitempty"`
}

// yamlConverter renders the plan tree as a portable YAML document.
type yamlConverter struct{}

func (c *yamlConverter) Format() string { return "yaml" }

func (c *yamlConverter) Convert(step workflow.Step, basedir string) ([]byte, error) {
	doc := exportStepTree(step, basedir)
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, types.WrapError(types.PROVIDER_FAILED, "failed to render workflow", err)
	}
	return out, nil
}

func exportStepTree(step workflow.Step, basedir string) exportStep {
	switch s := step.(type) {
	case *workflow.Plan:
		doc := exportStep{
			Name:        s.Name,
			Description: s.Description,
			Command:     s.Command,
		}
		for _, in := range s.Inputs {
			doc.Inputs = append(doc.Inputs, exportParameter{
				Name:    in.Name,
				Value:   resolvePath(in.Actual(), basedir),
				Prefix:  in.Prefix,
				Default: in.DefaultValue,
			})
		}
		for _, out := range s.Outputs {
			doc.Outputs = append(doc.Outputs, exportParameter{
				Name:    out.Name,
				Value:   resolvePath(out.Actual(), basedir),
				Prefix:  out.Prefix,
				Default: out.DefaultValue,
			})
		}
		for _, param := range s.Parameters {
			doc.Parameters = append(doc.Parameters, exportParameter{
				Name:    param.Name,
				Value:   param.Actual(),
				Prefix:  param.Prefix,
				Default: param.DefaultValue,
			})
		}
		return doc
	case *workflow.CompositePlan:
		doc := exportStep{
			Name:        s.Name,
			Description: s.Description,
		}
		for _, child := range s.Plans {
			doc.Steps = append(doc.Steps, exportStepTree(child, basedir))
		}
		for _, m := range s.Mappings {
			doc.Mappings = append(doc.Mappings, exportParameter{
				Name:    m.Name,
				Value:   m.Actual(),
				Default: m.DefaultValue,
			})
		}
		for _, l := range s.Links {
			for _, sink := range l.Sinks {
				doc.Links = append(doc.Links, l.Source.String()+" -> "+sink.String())
			}
		}
		return doc
	default:
		return exportStep{Name: step.StepName()}
	}
}

// resolvePath joins string values onto basedir when they look like relative
// paths. Non-string values pass through untouched.
func resolvePath(v any, basedir string) any {
	s, ok := v.(string)
	if !ok || basedir == "" || s == "" || filepath.IsAbs(s) {
		return v
	}
	return filepath.Join(basedir, s)
}
