package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"leaflet-weaver/pkg/log"
)

var gcodeCmd = &cobra.Command{
	Use:   "gcode",
	Short: "Write the planned weave as a G-code program",
	RunE:  runGCode,
}

func init() {
	gcodeCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	gcodeCmd.Flags().Int("start", 0, "first queue step to emit")
	rootCmd.AddCommand(gcodeCmd)
}

func runGCode(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, "output")
	s := loadSettings()
	logger := setupLogger(s)
	plan, err := loadPlan(s, logger)
	if err != nil {
		return err
	}
	start, _ := cmd.Flags().GetInt("start")

	w := cmd.OutOrStdout()
	if s.Output != "" && s.Output != "-" {
		f, err := os.Create(s.Output)
		if err != nil {
			return fmt.Errorf("gcode: %w", err)
		}
		defer f.Close()
		w = f
	}
	lines, err := plan.WriteGCode(w, start)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{"lines": lines, "output": s.Output}).Info("program written")
	return nil
}
