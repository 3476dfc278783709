package workflow

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadValues loads a YAML override document from disk. The document is a
// flat mapping of parameter names to values, with arbitrary nesting by step
// name for composite plans.
func ReadValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values file %s: %w", path, err)
	}
	return ParseValues(data)
}

// ParseValues parses a YAML override document.
func ParseValues(data []byte) (map[string]any, error) {
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse values document: %w", err)
	}
	return values, nil
}

// ExportValues serializes a resolved plan or composite back into the
// override document format: parameter name to resolved actual value, nested
// by step name for composites. Re-applying the exported document to the
// original unresolved plan reproduces identical actual values for every
// parameter, which export tooling relies on.
func ExportValues(step Step) map[string]any {
	out := make(map[string]any)
	switch s := step.(type) {
	case *Plan:
		for _, t := range s.Targets() {
			out[t.RefName()] = t.Actual()
		}
	case *CompositePlan:
		for _, child := range s.Plans {
			out[child.StepName()] = ExportValues(child)
		}
	}
	return out
}

// WriteValues writes the override document for a resolved step as YAML.
func WriteValues(step Step, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ExportValues(step)); err != nil {
		return fmt.Errorf("failed to encode values document: %w", err)
	}
	return enc.Close()
}
