package provider

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lineage-dev/lineage/internal/workflow"
)

// DryRunProvider resolves and reports what would execute without running
// anything. Output paths come from each plan's resolved output values.
type DryRunProvider struct {
	logger *slog.Logger
}

// DryRunOption configures a DryRunProvider.
type DryRunOption func(*DryRunProvider)

// WithLogger sets the logger the provider reports planned commands on.
func WithLogger(logger *slog.Logger) DryRunOption {
	return func(p *DryRunProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewDryRunProvider creates a dry-run provider.
func NewDryRunProvider(opts ...DryRunOption) *DryRunProvider {
	p := &DryRunProvider{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *DryRunProvider) Name() string { return "dry-run" }

// Execute implements Provider. Each plan is reported in order with the
// command line it would run; nothing touches the filesystem.
func (p *DryRunProvider) Execute(ctx context.Context, plans []*workflow.Plan, opts ExecuteOptions) (*ExecutionResult, error) {
	result := &ExecutionResult{Runs: make([]RunResult, 0, len(plans))}

	for i, plan := range plans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		argv := plan.ToArgv()
		p.logger.Info("dry run",
			"step", i+1,
			"plan", plan.Name,
			"command", strings.Join(argv, " "),
			"workdir", opts.WorkDir)

		now := time.Now()
		result.Runs = append(result.Runs, RunResult{
			Plan:        plan,
			StartedAt:   now,
			EndedAt:     now,
			OutputPaths: outputPaths(plan, opts.WorkDir),
		})
	}
	return result, nil
}

func outputPaths(plan *workflow.Plan, workDir string) []string {
	var paths []string
	for _, out := range plan.Outputs {
		path := fmt.Sprintf("%v", out.Actual())
		if path == "" || path == "<nil>" {
			continue
		}
		if workDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		paths = append(paths, path)
	}
	return paths
}
