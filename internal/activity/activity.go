// Package activity records plan executions as immutable provenance and
// orders historical executions by the paths they produce and consume.
package activity

import (
	"fmt"
	"time"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

// Usage is one path consumed by an execution, with the resolved value the
// plan ran against.
type Usage struct {
	Path  string `json:"path" yaml:"path"`
	Value string `json:"value" yaml:"value"`
}

// Generation is one path produced by an execution.
type Generation struct {
	Path  string `json:"path" yaml:"path"`
	Value string `json:"value" yaml:"value"`
}

// Activity is the immutable record of one past plan execution: the exact
// plan version that ran, when it ran, who ran it, and the concrete paths it
// consumed and produced. Activities are created at execution time and never
// mutated afterwards.
type Activity struct {
	ID string `json:"id" yaml:"id"`

	// Plan is a snapshot of the plan version executed, not a reference to
	// the mutable latest version of its lineage.
	Plan *workflow.Plan `json:"plan" yaml:"plan"`

	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time `json:"ended_at" yaml:"ended_at"`

	// Agent identifies who or what triggered the execution.
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`

	// Usages and Generations are ordered as the plan declares them.
	Usages      []Usage      `json:"usages,omitempty" yaml:"usages,omitempty"`
	Generations []Generation `json:"generations,omitempty" yaml:"generations,omitempty"`
}

// NewActivity snapshots a resolved plan into an execution record. Usages
// come from the plan's inputs and generations from its outputs, using each
// parameter's resolved actual value as the path.
func NewActivity(plan *workflow.Plan, startedAt, endedAt time.Time, agent string) *Activity {
	a := &Activity{
		ID:        types.NewID().String(),
		Plan:      plan,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Agent:     agent,
	}
	for _, in := range plan.Inputs {
		path := fmt.Sprintf("%v", in.Actual())
		a.Usages = append(a.Usages, Usage{Path: path, Value: path})
	}
	for _, out := range plan.Outputs {
		path := fmt.Sprintf("%v", out.Actual())
		a.Generations = append(a.Generations, Generation{Path: path, Value: path})
	}
	return a
}

// UsagePaths returns the consumed paths in declaration order.
func (a *Activity) UsagePaths() []string {
	paths := make([]string, len(a.Usages))
	for i, u := range a.Usages {
		paths[i] = u.Path
	}
	return paths
}

// GenerationPaths returns the produced paths in declaration order.
func (a *Activity) GenerationPaths() []string {
	paths := make([]string, len(a.Generations))
	for i, g := range a.Generations {
		paths[i] = g.Path
	}
	return paths
}

// Collection groups the activities produced by one multi-plan execution.
type Collection struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	Activities  []*Activity `json:"activities" yaml:"activities"`
	DateCreated time.Time   `json:"date_created" yaml:"date_created"`
}

// NewCollection groups activities under a fresh identity.
func NewCollection(name string, activities ...*Activity) *Collection {
	return &Collection{
		ID:          types.NewID().String(),
		Name:        name,
		Activities:  activities,
		DateCreated: time.Now(),
	}
}
