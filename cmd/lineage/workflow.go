package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lineage-dev/lineage/internal/activity"
	"github.com/lineage-dev/lineage/internal/provider"
	"github.com/lineage-dev/lineage/internal/transfer"
	"github.com/lineage-dev/lineage/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Compose, execute, and export workflows",
}

var workflowComposeFlags struct {
	description string
	mappings    []string
	defaults    []string
	links       []string
	linkAll     bool
}

var workflowComposeCmd = &cobra.Command{
	Use:   "compose <name> <step>...",
	Short: "Compose recorded plans and workflows into a new workflow",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		steps := make([]workflow.Step, 0, len(args)-1)
		for _, ref := range args[1:] {
			step, err := lookupStep(cmd, ref)
			if err != nil {
				return err
			}
			steps = append(steps, step)
		}

		composite, err := workflow.NewCompositePlan(name, steps...)
		if err != nil {
			return err
		}
		composite.Description = workflowComposeFlags.description

		defaults, err := parseKeyValues(workflowComposeFlags.defaults)
		if err != nil {
			return err
		}
		for _, expr := range workflowComposeFlags.mappings {
			mapName, targets, err := workflow.ParseMappingExpression(composite, expr)
			if err != nil {
				return err
			}
			var defaultValue any
			if v, ok := defaults[mapName]; ok {
				defaultValue = v
				delete(defaults, mapName)
			}
			if _, err := composite.AddMapping(mapName, defaultValue, "", targets); err != nil {
				return err
			}
		}
		if len(defaults) > 0 {
			keys := make([]string, 0, len(defaults))
			for k := range defaults {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return fmt.Errorf("--default given for unknown mappings: %s", strings.Join(keys, ", "))
		}

		for _, expr := range workflowComposeFlags.links {
			source, sinks, err := workflow.ParseLinkExpression(composite, expr)
			if err != nil {
				return err
			}
			if _, err := composite.AddLink(source, sinks); err != nil {
				return err
			}
		}
		if workflowComposeFlags.linkAll {
			added, err := composite.LinkAll()
			if err != nil {
				return err
			}
			for _, link := range added {
				currentApp.logger.Info("linked matching defaults",
					"source", link.Source.String(),
					"sinks", len(link.Sinks))
			}
		}

		if err := currentApp.composites.Create(cmd.Context(), composite); err != nil {
			return err
		}

		currentApp.logger.Info("workflow composed", "name", name, "id", composite.ID, "steps", len(steps))
		return printWorkflow(cmd.OutOrStdout(), composite)
	},
}

var workflowListAll bool

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		composites, err := currentApp.composites.List(cmd.Context(), workflowListAll)
		if err != nil {
			return err
		}
		sort.Slice(composites, func(i, j int) bool { return composites[i].Name < composites[j].Name })

		w := cmd.OutOrStdout()
		if globalFlags.OutputFormat == "json" {
			return printJSON(w, composites)
		}
		for _, c := range composites {
			status := ""
			if !c.IsActive() {
				status = " (removed)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d steps%s\n", c.Name, c.ID, len(c.Plans), status)
		}
		return nil
	},
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow>",
	Short: "Show a workflow's steps, mappings, and links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		composite, err := lookupWorkflow(cmd, args[0])
		if err != nil {
			return err
		}
		return printWorkflow(cmd.OutOrStdout(), composite)
	},
}

var workflowRemoveCmd = &cobra.Command{
	Use:   "remove <workflow>",
	Short: "Invalidate a workflow so it no longer resolves by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		composite, err := lookupWorkflow(cmd, args[0])
		if err != nil {
			return err
		}
		if err := currentApp.composites.Invalidate(cmd.Context(), composite.ID); err != nil {
			return err
		}
		currentApp.logger.Info("workflow removed", "name", composite.Name, "id", composite.ID)
		return nil
	},
}

var workflowValuesCmd = &cobra.Command{
	Use:   "values <workflow>",
	Short: "Print a workflow's current values as an editable document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := lookupStep(cmd, args[0])
		if err != nil {
			return err
		}
		return workflow.WriteValues(step, cmd.OutOrStdout())
	},
}

var workflowExecuteFlags struct {
	valuesFile string
	sets       []string
	provider   string
	workDir    string
	agent      string
	dryRun     bool
	stage      bool
}

var workflowExecuteCmd = &cobra.Command{
	Use:   "execute <workflow>",
	Short: "Re-parametrize and execute a workflow or plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := lookupStep(cmd, args[0])
		if err != nil {
			return err
		}

		overrides, err := collectOverrides(workflowExecuteFlags.valuesFile, workflowExecuteFlags.sets)
		if err != nil {
			return err
		}
		resolved, report, err := workflow.ApplyValues(step, overrides)
		if err != nil {
			return err
		}
		for _, key := range report.Missing {
			currentApp.logger.Warn("value matched no parameter or mapping", "key", key)
		}

		plans, err := executionOrder(resolved)
		if err != nil {
			return err
		}

		opts := runOptions{
			provider: workflowExecuteFlags.provider,
			workDir:  workflowExecuteFlags.workDir,
			agent:    workflowExecuteFlags.agent,
			dryRun:   workflowExecuteFlags.dryRun,
		}

		if workflowExecuteFlags.stage {
			if err := stageInputs(cmd, plans, opts.workDir); err != nil {
				return err
			}
		}

		result, err := runPlans(cmd, plans, opts)
		if err != nil {
			return err
		}
		return recordRuns(cmd, resolved.StepName(), opts.agent, result)
	},
}

var workflowIterateFlags struct {
	valuesFile string
	iters      []string
	sets       []string
	provider   string
	workDir    string
	agent      string
	dryRun     bool
}

var workflowIterateCmd = &cobra.Command{
	Use:   "iterate <workflow>",
	Short: "Execute a workflow once per combination of iterated values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := lookupStep(cmd, args[0])
		if err != nil {
			return err
		}

		iterations, err := collectIterations(workflowIterateFlags.valuesFile, workflowIterateFlags.iters)
		if err != nil {
			return err
		}

		overrides, err := collectOverrides("", workflowIterateFlags.sets)
		if err != nil {
			return err
		}
		if len(overrides) > 0 {
			resolved, report, err := workflow.ApplyValues(step, overrides)
			if err != nil {
				return err
			}
			for _, key := range report.Missing {
				currentApp.logger.Warn("value matched no parameter or mapping", "key", key)
			}
			step = resolved
		}

		expanded, err := workflow.ExpandIterations(step, iterations)
		if err != nil {
			return err
		}
		currentApp.logger.Info("iteration expanded", "workflow", step.StepName(), "runs", len(expanded))

		opts := runOptions{
			provider: workflowIterateFlags.provider,
			workDir:  workflowIterateFlags.workDir,
			agent:    workflowIterateFlags.agent,
			dryRun:   workflowIterateFlags.dryRun,
		}

		var plans []*workflow.Plan
		for _, iteration := range expanded {
			ordered, err := executionOrder(iteration)
			if err != nil {
				return err
			}
			plans = append(plans, ordered...)
		}

		result, err := runPlans(cmd, plans, opts)
		if err != nil {
			return err
		}
		return recordRuns(cmd, step.StepName(), opts.agent, result)
	},
}

var workflowExportFlags struct {
	format  string
	basedir string
	output  string
}

var workflowExportCmd = &cobra.Command{
	Use:   "export <workflow>",
	Short: "Export a workflow to an interchange format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := lookupStep(cmd, args[0])
		if err != nil {
			return err
		}
		data, err := currentApp.converters.Convert(step, workflowExportFlags.basedir, workflowExportFlags.format)
		if err != nil {
			return err
		}
		if workflowExportFlags.output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(workflowExportFlags.output, data, 0o644)
	},
}

// lookupWorkflow resolves a CLI argument to a composite plan, by active
// lineage name first and exact version ID second.
func lookupWorkflow(cmd *cobra.Command, nameOrID string) (*workflow.CompositePlan, error) {
	composite, err := currentApp.composites.GetByName(cmd.Context(), nameOrID)
	if err == nil {
		return composite, nil
	}
	return currentApp.composites.GetByID(cmd.Context(), nameOrID)
}

// lookupStep resolves a CLI argument to either a workflow or a plan, in
// that order, so both compose into and execute from the same namespace.
func lookupStep(cmd *cobra.Command, nameOrID string) (workflow.Step, error) {
	if composite, err := lookupWorkflow(cmd, nameOrID); err == nil {
		return composite, nil
	}
	plan, err := lookupPlan(cmd, nameOrID)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// collectOverrides merges a values file with --set pairs, the pairs
// winning on conflicts.
func collectOverrides(valuesFile string, sets []string) (map[string]any, error) {
	overrides := map[string]any{}
	if valuesFile != "" {
		fromFile, err := workflow.ReadValues(valuesFile)
		if err != nil {
			return nil, err
		}
		overrides = fromFile
	}
	pairs, err := parseKeyValues(sets)
	if err != nil {
		return nil, err
	}
	for k, v := range pairs {
		overrides[k] = v
	}
	return overrides, nil
}

// collectIterations merges a values file of lists with --iter pairs of
// comma-separated lists. Keys may carry an @tag suffix to zip instead of
// combining.
func collectIterations(valuesFile string, iters []string) (map[string][]any, error) {
	iterations := map[string][]any{}
	if valuesFile != "" {
		fromFile, err := workflow.ReadValues(valuesFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			list, ok := v.([]any)
			if !ok {
				list = []any{v}
			}
			iterations[k] = list
		}
	}
	for _, arg := range iters {
		key, rest, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed --iter %q, expected name[@tag]=v1[,v2...]", arg)
		}
		parts := strings.Split(rest, ",")
		list := make([]any, len(parts))
		for i, p := range parts {
			list[i] = p
		}
		iterations[key] = list
	}
	if len(iterations) == 0 {
		return nil, fmt.Errorf("nothing to iterate over, give --iter or a values file of lists")
	}
	return iterations, nil
}

// stageInputs copies every input file of the plans about to run into the
// working directory, so executions see local copies of remote or scattered
// data.
func stageInputs(cmd *cobra.Command, plans []*workflow.Plan, workDir string) error {
	if workDir == "" {
		workDir = currentApp.cfg.Provider.WorkDir
	}
	if workDir == "" {
		return fmt.Errorf("--stage needs a working directory, give --workdir")
	}

	var items []transfer.Item
	for _, plan := range plans {
		for _, input := range plan.Inputs {
			source := fmt.Sprintf("%v", input.Actual())
			if source == "" || source == "<nil>" {
				continue
			}
			items = append(items, transfer.Item{
				Source:      source,
				Destination: filepath.Join(workDir, filepath.Base(source)),
			})
		}
	}
	if len(items) == 0 {
		return nil
	}

	pool := transfer.NewPool(
		transfer.WithWorkers(currentApp.cfg.Transfer.Workers),
		transfer.WithLogger(currentApp.logger),
	)
	_, err := pool.Copy(cmd.Context(), items)
	return err
}

// executionOrder flattens a step into its plans in dependency order.
func executionOrder(step workflow.Step) ([]*workflow.Plan, error) {
	switch s := step.(type) {
	case *workflow.CompositePlan:
		graph, err := workflow.BuildGraph(s, false)
		if err != nil {
			return nil, err
		}
		return graph.TopologicalSort()
	case *workflow.Plan:
		return []*workflow.Plan{s}, nil
	default:
		return nil, fmt.Errorf("unsupported step type %T", step)
	}
}

// runOptions carry the per-invocation execution settings shared by the
// execute and iterate commands.
type runOptions struct {
	provider string
	workDir  string
	agent    string
	dryRun   bool
}

func runPlans(cmd *cobra.Command, plans []*workflow.Plan, opts runOptions) (*provider.ExecutionResult, error) {
	providerName := opts.provider
	if opts.dryRun {
		providerName = "dry-run"
	}
	if providerName == "" {
		providerName = currentApp.cfg.Provider.Name
	}
	prov, err := currentApp.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	workDir := opts.workDir
	if workDir == "" {
		workDir = currentApp.cfg.Provider.WorkDir
	}

	currentApp.logger.Info("executing plans",
		"provider", prov.Name(), "plans", len(plans), "workdir", workDir)

	return prov.Execute(cmd.Context(), plans, provider.ExecuteOptions{
		WorkDir: workDir,
		Options: currentApp.cfg.Provider.Options,
	})
}

// recordRuns persists one activity per executed plan, grouped into a
// collection named after the workflow and the moment of execution.
func recordRuns(cmd *cobra.Command, name, agent string, result *provider.ExecutionResult) error {
	if agent == "" {
		agent = os.Getenv("USER")
	}

	activities := result.Activities(agent)
	collection := activity.NewCollection(
		fmt.Sprintf("%s %s", name, time.Now().Format(time.RFC3339)),
		activities...,
	)
	if err := currentApp.activities.CreateCollection(cmd.Context(), collection); err != nil {
		return err
	}

	currentApp.logger.Info("execution recorded",
		"collection", collection.ID, "activities", len(activities))

	w := cmd.OutOrStdout()
	if globalFlags.OutputFormat == "json" {
		return printJSON(w, collection)
	}
	for _, a := range activities {
		fmt.Fprintf(w, "%s\t%s\n", a.Plan.Name, a.ID)
		for _, g := range a.Generations {
			fmt.Fprintf(w, "  generated %s\n", g.Path)
		}
	}
	return nil
}

func printWorkflow(w io.Writer, composite *workflow.CompositePlan) error {
	if globalFlags.OutputFormat == "json" {
		return printJSON(w, composite)
	}

	fmt.Fprintf(w, "Name:        %s\n", composite.Name)
	fmt.Fprintf(w, "ID:          %s\n", composite.ID)
	if composite.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", composite.Description)
	}
	if composite.DerivedFrom != "" {
		fmt.Fprintf(w, "Derived from: %s\n", composite.DerivedFrom)
	}
	fmt.Fprintln(w, "Steps:")
	for _, step := range composite.Plans {
		kind := "plan"
		if _, ok := step.(*workflow.CompositePlan); ok {
			kind = "workflow"
		}
		fmt.Fprintf(w, "  %s (%s)\n", step.StepName(), kind)
	}
	if len(composite.Mappings) > 0 {
		fmt.Fprintln(w, "Mappings:")
		for _, m := range composite.Mappings {
			targets := make([]string, len(m.MapsTo))
			for i, t := range m.MapsTo {
				targets[i] = t.String()
			}
			fmt.Fprintf(w, "  %s = %v -> %s\n", m.Name, m.Actual(), strings.Join(targets, ", "))
		}
	}
	if len(composite.Links) > 0 {
		fmt.Fprintln(w, "Links:")
		for _, l := range composite.Links {
			sinks := make([]string, len(l.Sinks))
			for i, s := range l.Sinks {
				sinks[i] = s.String()
			}
			fmt.Fprintf(w, "  %s -> %s\n", l.Source.String(), strings.Join(sinks, ", "))
		}
	}
	return nil
}

func init() {
	workflowComposeCmd.Flags().StringVar(&workflowComposeFlags.description, "description", "", "Workflow description")
	workflowComposeCmd.Flags().StringArrayVar(&workflowComposeFlags.mappings, "map", nil, "Mapping as name=target[,target...] (repeatable)")
	workflowComposeCmd.Flags().StringArrayVar(&workflowComposeFlags.defaults, "default", nil, "Mapping default as name=value (repeatable)")
	workflowComposeCmd.Flags().StringArrayVar(&workflowComposeFlags.links, "link", nil, "Link as source=sink[,sink...] (repeatable)")
	workflowComposeCmd.Flags().BoolVar(&workflowComposeFlags.linkAll, "link-all", false, "Link outputs to inputs with matching default values")

	workflowListCmd.Flags().BoolVarP(&workflowListAll, "all", "a", false, "Include removed and superseded versions")

	workflowExecuteCmd.Flags().StringVarP(&workflowExecuteFlags.valuesFile, "values", "f", "", "YAML file of parameter values")
	workflowExecuteCmd.Flags().StringArrayVar(&workflowExecuteFlags.sets, "set", nil, "Value override as key=value (repeatable)")
	workflowExecuteCmd.Flags().StringVarP(&workflowExecuteFlags.provider, "provider", "p", "", "Execution provider")
	workflowExecuteCmd.Flags().StringVarP(&workflowExecuteFlags.workDir, "workdir", "w", "", "Directory to execute in")
	workflowExecuteCmd.Flags().StringVar(&workflowExecuteFlags.agent, "agent", "", "Agent recorded on the resulting activities")
	workflowExecuteCmd.Flags().BoolVar(&workflowExecuteFlags.dryRun, "dry-run", false, "Print what would run without executing")
	workflowExecuteCmd.Flags().BoolVar(&workflowExecuteFlags.stage, "stage", false, "Copy input files into the working directory first")

	workflowIterateCmd.Flags().StringVarP(&workflowIterateFlags.valuesFile, "values", "f", "", "YAML file of value lists to iterate")
	workflowIterateCmd.Flags().StringArrayVar(&workflowIterateFlags.iters, "iter", nil, "Iteration as name[@tag]=v1[,v2...] (repeatable)")
	workflowIterateCmd.Flags().StringArrayVar(&workflowIterateFlags.sets, "set", nil, "Fixed value override as key=value (repeatable)")
	workflowIterateCmd.Flags().StringVarP(&workflowIterateFlags.provider, "provider", "p", "", "Execution provider")
	workflowIterateCmd.Flags().StringVarP(&workflowIterateFlags.workDir, "workdir", "w", "", "Directory to execute in")
	workflowIterateCmd.Flags().StringVar(&workflowIterateFlags.agent, "agent", "", "Agent recorded on the resulting activities")
	workflowIterateCmd.Flags().BoolVar(&workflowIterateFlags.dryRun, "dry-run", false, "Print what would run without executing")

	workflowExportCmd.Flags().StringVar(&workflowExportFlags.format, "format", "yaml", "Export format")
	workflowExportCmd.Flags().StringVar(&workflowExportFlags.basedir, "basedir", "", "Base directory relative paths resolve against")
	workflowExportCmd.Flags().StringVarP(&workflowExportFlags.output, "output", "O", "", "Write to file instead of stdout")

	workflowCmd.AddCommand(workflowComposeCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowRemoveCmd)
	workflowCmd.AddCommand(workflowValuesCmd)
	workflowCmd.AddCommand(workflowExecuteCmd)
	workflowCmd.AddCommand(workflowIterateCmd)
	workflowCmd.AddCommand(workflowExportCmd)
}
