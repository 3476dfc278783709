package workflow

// Step is the uniform interface over Plan and CompositePlan. Graph and
// resolution algorithms operate only through this interface; leaf-specific
// behavior (command-line assembly) lives on Plan.
type Step interface {
	// StepID returns the stable identifier of the step.
	StepID() string

	// StepName returns the unique name of the step.
	StepName() string

	// StepDescription returns the human-readable description.
	StepDescription() string

	// Derive returns a deep copy with a fresh identity whose DerivedFrom
	// points at this step. Persisted steps are never mutated in place.
	Derive() Step
}

// flattenLeafPlans walks a step tree depth-first in declaration order and
// returns every leaf Plan.
func flattenLeafPlans(step Step) []*Plan {
	switch s := step.(type) {
	case *Plan:
		return []*Plan{s}
	case *CompositePlan:
		var leaves []*Plan
		for _, child := range s.Plans {
			leaves = append(leaves, flattenLeafPlans(child)...)
		}
		return leaves
	default:
		return nil
	}
}
