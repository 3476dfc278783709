package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lineage-dev/lineage/internal/activity"
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	Aliases: []string{"act"},
	Short:   "Inspect the recorded execution history",
}

var activityListFlags struct {
	plan           string
	ordered        bool
	prune          bool
	pruneAncestors bool
}

var activityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded executions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			activities []*activity.Activity
			err        error
		)
		if activityListFlags.plan != "" {
			plan, lookupErr := lookupPlan(cmd, activityListFlags.plan)
			if lookupErr != nil {
				return lookupErr
			}
			activities, err = currentApp.activities.ListByPlan(cmd.Context(), plan.ID)
		} else {
			activities, err = currentApp.activities.List(cmd.Context())
		}
		if err != nil {
			return err
		}

		prune := activityListFlags.prune || activityListFlags.pruneAncestors
		if activityListFlags.ordered || prune {
			activities, err = activity.SortActivities(activities, activity.SortOptions{
				Prune:          prune,
				PruneAncestors: activityListFlags.pruneAncestors,
			})
			if err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		if globalFlags.OutputFormat == "json" {
			return printJSON(w, activities)
		}
		for _, a := range activities {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Plan.Name, a.EndedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var activityShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one execution record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp.activities.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printActivity(cmd.OutOrStdout(), a)
	},
}

var activityCollectionCmd = &cobra.Command{
	Use:   "collection <id>",
	Short: "Show the activities recorded by one execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentApp.activities.GetCollection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if globalFlags.OutputFormat == "json" {
			return printJSON(w, c)
		}
		fmt.Fprintf(w, "Collection: %s\n", c.ID)
		if c.Name != "" {
			fmt.Fprintf(w, "Name:       %s\n", c.Name)
		}
		fmt.Fprintf(w, "Recorded:   %s\n", c.DateCreated.Format(time.RFC3339))
		for _, a := range c.Activities {
			fmt.Fprintf(w, "  %s\t%s\n", a.ID, a.Plan.Name)
		}
		return nil
	},
}

func printActivity(w io.Writer, a *activity.Activity) error {
	if globalFlags.OutputFormat == "json" {
		return printJSON(w, a)
	}

	fmt.Fprintf(w, "Activity: %s\n", a.ID)
	fmt.Fprintf(w, "Plan:     %s (%s)\n", a.Plan.Name, a.Plan.ID)
	fmt.Fprintf(w, "Command:  %s\n", strings.Join(a.Plan.ToArgv(), " "))
	if a.Agent != "" {
		fmt.Fprintf(w, "Agent:    %s\n", a.Agent)
	}
	fmt.Fprintf(w, "Started:  %s\n", a.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Ended:    %s\n", a.EndedAt.Format(time.RFC3339))
	if len(a.Usages) > 0 {
		fmt.Fprintln(w, "Used:")
		for _, u := range a.Usages {
			fmt.Fprintf(w, "  %s\n", u.Path)
		}
	}
	if len(a.Generations) > 0 {
		fmt.Fprintln(w, "Generated:")
		for _, g := range a.Generations {
			fmt.Fprintf(w, "  %s\n", g.Path)
		}
	}
	return nil
}

func init() {
	activityListCmd.Flags().StringVar(&activityListFlags.plan, "plan", "", "Only executions of this plan")
	activityListCmd.Flags().BoolVar(&activityListFlags.ordered, "ordered", false, "Order by data-flow dependencies instead of recording time")
	activityListCmd.Flags().BoolVar(&activityListFlags.prune, "prune", false, "Drop activities whose outputs were regenerated later")
	activityListCmd.Flags().BoolVar(&activityListFlags.pruneAncestors, "prune-ancestors", false, "Additionally drop activities that only fed pruned ones")

	activityCmd.AddCommand(activityListCmd)
	activityCmd.AddCommand(activityShowCmd)
	activityCmd.AddCommand(activityCollectionCmd)
}
