package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"leaflet-weaver/pkg/gcode"
	"leaflet-weaver/pkg/scheduler"
	"leaflet-weaver/pkg/weave"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Execute the weave against a simulated machine and report totals",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().Int("clean-every", 0, "request a cleaning after every N steps (0 disables)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	s := loadSettings()
	logger := setupLogger(s)
	plan, err := loadPlan(s, logger)
	if err != nil {
		return err
	}

	m := gcode.NewMachine(plan.GCodeOptions(), logger.WithPrefix("machine"))
	seq, cleaner, err := plan.Rig(m, logger.WithPrefix("cleaning"))
	if err != nil {
		return err
	}

	every, _ := cmd.Flags().GetInt("clean-every")
	var sched *scheduler.Scheduler
	sched, err = scheduler.New(plan.Queue, seq, cleaner, scheduler.Options{
		Logger: logger.WithPrefix("scheduler"),
		Observer: scheduler.Observer{
			OnStep: func(i int, _ weave.Step, _ time.Duration) {
				if every > 0 && (i+1)%every == 0 {
					sched.RequestCleaning()
				}
			},
		},
	})
	if err != nil {
		return err
	}
	if err := sched.Run(context.Background()); err != nil {
		return err
	}
	if err := seq.Park(); err != nil {
		return err
	}

	st := m.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, plan.Summary())
	fmt.Fprintf(out, "lines:      %s\n", humanize.Comma(int64(st.Lines)))
	fmt.Fprintf(out, "moves:      %s\n", humanize.Comma(int64(st.Moves)))
	fmt.Fprintf(out, "fibers:     %d\n", st.Cycles)
	fmt.Fprintf(out, "cleanings:  %d\n", sched.Cleanings())
	fmt.Fprintf(out, "travel:     %.1f mm\n", st.Travel)
	fmt.Fprintf(out, "deposit:    %.1f mm\n", st.Deposit)
	fmt.Fprintf(out, "dwell:      %s\n", st.Dwell)
	fmt.Fprintf(out, "estimate:   %s\n", st.Duration.Round(time.Second))
	return nil
}
