// Package provider defines the execution boundary: resolved plans go in,
// execution records come out. The core hands providers an ordered plan list
// and never looks at how much parallelism they extract beyond that order.
package provider

import (
	"context"
	"time"

	"github.com/lineage-dev/lineage/internal/activity"
	"github.com/lineage-dev/lineage/internal/workflow"
)

// ExecuteOptions carries the execution environment for one provider call.
type ExecuteOptions struct {
	// WorkDir is the directory plans execute in. Empty means the current
	// directory.
	WorkDir string

	// Options are provider-specific settings passed through from config.
	Options map[string]string
}

// RunResult is the outcome of executing one plan.
type RunResult struct {
	Plan      *workflow.Plan
	StartedAt time.Time
	EndedAt   time.Time

	// OutputPaths are the paths the execution produced or modified.
	OutputPaths []string
}

// ExecutionResult groups the per-plan outcomes of one provider call, in
// execution order.
type ExecutionResult struct {
	Runs []RunResult
}

// ModifiedPaths returns every output path across all runs, in run order.
func (r *ExecutionResult) ModifiedPaths() []string {
	var paths []string
	for _, run := range r.Runs {
		paths = append(paths, run.OutputPaths...)
	}
	return paths
}

// Activities converts the runs into immutable execution records attributed
// to the given agent.
func (r *ExecutionResult) Activities(agent string) []*activity.Activity {
	activities := make([]*activity.Activity, len(r.Runs))
	for i, run := range r.Runs {
		activities[i] = activity.NewActivity(run.Plan, run.StartedAt, run.EndedAt, agent)
	}
	return activities
}

// Provider executes resolved plans. The plan list is already in a valid
// execution order; a provider must respect that partial order but may run
// independent plans concurrently.
type Provider interface {
	// Name returns the registry key of the provider.
	Name() string

	// Execute runs the plans and reports per-plan outcomes. The plans are
	// fully resolved; the provider must not mutate them.
	Execute(ctx context.Context, plans []*workflow.Plan, opts ExecuteOptions) (*ExecutionResult, error)
}
