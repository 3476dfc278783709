package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lineage-dev/lineage/internal/workflow"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Record and manage plans",
	Long: `A plan is the template of a single command invocation: the base
command, its inputs, outputs, and parameters. Plans are versioned; edits
derive a new version instead of changing the recorded one.`,
}

var planRecordFlags struct {
	command      string
	description  string
	keywords     []string
	successCodes []int
	inputs       []string
	outputs      []string
	parameters   []string
}

var planRecordCmd = &cobra.Command{
	Use:   "record <name>",
	Short: "Record a new plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		builder := workflow.NewPlan(args[0], planRecordFlags.command).
			WithDescription(planRecordFlags.description).
			WithKeywords(planRecordFlags.keywords...)
		if len(planRecordFlags.successCodes) > 0 {
			builder = builder.WithSuccessCodes(planRecordFlags.successCodes...)
		}

		for _, arg := range planRecordFlags.inputs {
			base, err := parseParameterSpec(arg)
			if err != nil {
				return err
			}
			builder = builder.AddInput(&workflow.CommandInput{ParameterBase: base})
		}
		for _, arg := range planRecordFlags.outputs {
			base, err := parseParameterSpec(arg)
			if err != nil {
				return err
			}
			builder = builder.AddOutput(&workflow.CommandOutput{ParameterBase: base})
		}
		for _, arg := range planRecordFlags.parameters {
			base, err := parseParameterSpec(arg)
			if err != nil {
				return err
			}
			builder = builder.AddParameter(&workflow.CommandParameter{ParameterBase: base})
		}

		plan, err := builder.Build()
		if err != nil {
			return err
		}
		if err := currentApp.plans.Create(cmd.Context(), plan); err != nil {
			return err
		}

		currentApp.logger.Info("recorded plan", "name", plan.Name, "id", plan.ID)
		return printPlan(cmd.OutOrStdout(), plan)
	},
}

var planListAll bool

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if planListAll {
			plans, err := currentApp.plans.List(cmd.Context(), true)
			if err != nil {
				return err
			}
			return printPlanList(cmd.OutOrStdout(), plans)
		}

		newest, err := currentApp.plans.GetNewestPlansByNames(cmd.Context())
		if err != nil {
			return err
		}
		plans := make([]*workflow.Plan, 0, len(newest))
		for _, p := range newest {
			plans = append(plans, p)
		}
		sortPlansByName(plans)
		return printPlanList(cmd.OutOrStdout(), plans)
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <name-or-id>",
	Short: "Show a plan in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := lookupPlan(cmd, args[0])
		if err != nil {
			return err
		}
		return printPlan(cmd.OutOrStdout(), plan)
	},
}

var planEditFlags struct {
	name           string
	description    string
	renameParams   []string
	describeParams []string
	setDefaults    []string
}

var planEditCmd = &cobra.Command{
	Use:   "edit <name-or-id>",
	Short: "Edit a plan, deriving a new version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := lookupPlan(cmd, args[0])
		if err != nil {
			return err
		}

		opts := workflow.EditOptions{}
		if cmd.Flags().Changed("name") {
			opts.Name = &planEditFlags.name
		}
		if cmd.Flags().Changed("description") {
			opts.Description = &planEditFlags.description
		}
		if len(planEditFlags.renameParams) > 0 {
			renames, err := parseKeyValues(planEditFlags.renameParams)
			if err != nil {
				return err
			}
			opts.RenameParameters = renames
		}
		if len(planEditFlags.describeParams) > 0 {
			descriptions, err := parseKeyValues(planEditFlags.describeParams)
			if err != nil {
				return err
			}
			opts.DescribeParameters = descriptions
		}
		if len(planEditFlags.setDefaults) > 0 {
			defaults, err := parseKeyValues(planEditFlags.setDefaults)
			if err != nil {
				return err
			}
			opts.SetDefaults = make(map[string]any, len(defaults))
			for k, v := range defaults {
				opts.SetDefaults[k] = v
			}
		}

		edited, err := plan.Edit(opts)
		if err != nil {
			return err
		}
		if err := currentApp.plans.Create(cmd.Context(), edited); err != nil {
			return err
		}

		currentApp.logger.Info("derived plan version",
			"name", edited.Name, "id", edited.ID, "from", plan.ID)
		return printPlan(cmd.OutOrStdout(), edited)
	},
}

var planRemoveCmd = &cobra.Command{
	Use:   "remove <name-or-id>",
	Short: "Remove a plan (soft delete; recorded executions stay valid)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := lookupPlan(cmd, args[0])
		if err != nil {
			return err
		}
		if err := currentApp.plans.Invalidate(cmd.Context(), plan.ID); err != nil {
			return err
		}
		currentApp.logger.Info("removed plan", "name", plan.Name, "id", plan.ID)
		return nil
	},
}

// lookupPlan resolves a CLI argument to a plan, trying the name of an
// active lineage first and falling back to an exact version ID.
func lookupPlan(cmd *cobra.Command, nameOrID string) (*workflow.Plan, error) {
	plan, err := currentApp.plans.GetByName(cmd.Context(), nameOrID)
	if err == nil {
		return plan, nil
	}
	return currentApp.plans.GetByID(cmd.Context(), nameOrID)
}

// parseParameterSpec parses "name=default", "name=default:prefix", or a bare
// "name" into a parameter base.
func parseParameterSpec(arg string) (workflow.ParameterBase, error) {
	name, rest, hasValue := strings.Cut(arg, "=")
	if name == "" {
		return workflow.ParameterBase{}, fmt.Errorf("parameter spec %q has no name", arg)
	}
	base := workflow.ParameterBase{Name: name}
	if !hasValue {
		return base, nil
	}
	value, prefix, hasPrefix := strings.Cut(rest, ":")
	base.DefaultValue = value
	if hasPrefix {
		base.Prefix = prefix
	}
	return base, nil
}

func sortPlansByName(plans []*workflow.Plan) {
	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
}

func printPlan(w io.Writer, plan *workflow.Plan) error {
	if globalFlags.OutputFormat == "json" {
		return printJSON(w, plan)
	}

	fmt.Fprintf(w, "Name:        %s\n", plan.Name)
	fmt.Fprintf(w, "ID:          %s\n", plan.ID)
	if plan.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", plan.Description)
	}
	fmt.Fprintf(w, "Command:     %s\n", strings.Join(plan.ToArgv(), " "))
	if plan.DerivedFrom != "" {
		fmt.Fprintf(w, "Derived from: %s\n", plan.DerivedFrom)
	}
	printParamSection(w, "Inputs", len(plan.Inputs), func(i int) (string, any) {
		return plan.Inputs[i].Name, plan.Inputs[i].Actual()
	})
	printParamSection(w, "Outputs", len(plan.Outputs), func(i int) (string, any) {
		return plan.Outputs[i].Name, plan.Outputs[i].Actual()
	})
	printParamSection(w, "Parameters", len(plan.Parameters), func(i int) (string, any) {
		return plan.Parameters[i].Name, plan.Parameters[i].Actual()
	})
	return nil
}

func printParamSection(w io.Writer, title string, n int, at func(int) (string, any)) {
	if n == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for i := 0; i < n; i++ {
		name, value := at(i)
		fmt.Fprintf(w, "  %s = %v\n", name, value)
	}
}

func printPlanList(w io.Writer, plans []*workflow.Plan) error {
	if globalFlags.OutputFormat == "json" {
		return printJSON(w, plans)
	}
	for _, p := range plans {
		status := ""
		if !p.IsActive() {
			status = " (removed)"
		}
		fmt.Fprintf(w, "%s\t%s%s\n", p.Name, p.ID, status)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	planRecordCmd.Flags().StringVarP(&planRecordFlags.command, "command", "c", "", "Base command the plan runs (required)")
	planRecordCmd.Flags().StringVar(&planRecordFlags.description, "description", "", "Plan description")
	planRecordCmd.Flags().StringSliceVar(&planRecordFlags.keywords, "keyword", nil, "Keyword tag (repeatable)")
	planRecordCmd.Flags().IntSliceVar(&planRecordFlags.successCodes, "success-code", nil, "Exit code considered success (repeatable)")
	planRecordCmd.Flags().StringArrayVar(&planRecordFlags.inputs, "input", nil, "Input as name=default[:prefix] (repeatable)")
	planRecordCmd.Flags().StringArrayVar(&planRecordFlags.outputs, "output", nil, "Output as name=default[:prefix] (repeatable)")
	planRecordCmd.Flags().StringArrayVar(&planRecordFlags.parameters, "param", nil, "Parameter as name=default[:prefix] (repeatable)")
	planRecordCmd.MarkFlagRequired("command")

	planListCmd.Flags().BoolVarP(&planListAll, "all", "a", false, "Include removed and superseded versions")

	planEditCmd.Flags().StringVar(&planEditFlags.name, "name", "", "New plan name")
	planEditCmd.Flags().StringVar(&planEditFlags.description, "description", "", "New plan description")
	planEditCmd.Flags().StringArrayVar(&planEditFlags.renameParams, "rename-param", nil, "Rename a parameter as old=new (repeatable)")
	planEditCmd.Flags().StringArrayVar(&planEditFlags.describeParams, "describe-param", nil, "Describe a parameter as name=description (repeatable)")
	planEditCmd.Flags().StringArrayVar(&planEditFlags.setDefaults, "set", nil, "Set a default value as name=value (repeatable)")

	planCmd.AddCommand(planRecordCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planEditCmd)
	planCmd.AddCommand(planRemoveCmd)
}
