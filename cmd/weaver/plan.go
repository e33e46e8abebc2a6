package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan the weave and print a summary",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().Bool("steps", false, "list every binding")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	s := loadSettings()
	logger := setupLogger(s)
	plan, err := loadPlan(s, logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, plan.Summary())
	if list, _ := cmd.Flags().GetBool("steps"); list {
		for i, b := range plan.Queue.Bindings() {
			fmt.Fprintf(out, "%5d %s\n", i, b)
		}
	}
	return nil
}
