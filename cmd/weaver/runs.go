package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"leaflet-weaver/pkg/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journalled runs",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().String("journal", "", "SQLite run journal")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, "journal")
	s := loadSettings()
	logger := setupLogger(s)
	if s.Journal == "" {
		return fmt.Errorf("--journal is required")
	}
	ctx := context.Background()
	jr, err := journal.Open(ctx, s.Journal, logger.WithPrefix("journal"))
	if err != nil {
		return err
	}
	defer jr.Close()

	runs, err := jr.Runs(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tJOB\tSTEPS\tCLEANINGS\tSTATUS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			r.ID, r.Job, r.Completed, r.Steps, r.Cleanings, r.Status, humanize.Time(r.StartedAt))
	}
	return tw.Flush()
}
