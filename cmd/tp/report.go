package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/report"
	"github.com/tourplanner/tp/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "data",
	Short:   "Print tour reports",
}

var reportTourCmd = &cobra.Command{
	Use:   "tour <tour-id>",
	Short: "Report one tour with all its logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		tour, err := a.planner.GetTour(ctx, parseID(args[0], "tour"))
		if err != nil {
			fatalf("%v", err)
		}
		writeReport(cmd, func(w io.Writer) error { return report.WriteTour(w, tour) })
	},
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Report log averages for every tour",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		tours, err := a.planner.ExportTours(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		writeReport(cmd, func(w io.Writer) error { return report.WriteSummary(w, tours) })
	},
}

// writeReport writes to --output, or stdout when unset.
func writeReport(cmd *cobra.Command, write func(io.Writer) error) {
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		if err := write(os.Stdout); err != nil {
			fatalf("%v", err)
		}
		return
	}

	f, err := os.Create(out)
	if err != nil {
		fatalf("failed to create %s: %v", out, err)
	}
	// Files never get color codes.
	ui.Init(true)
	err = write(f)
	ui.Init(noColor)
	if err != nil {
		_ = f.Close()
		fatalf("%v", err)
	}
	if err := f.Close(); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%s Report written to %s\n", ui.RenderPass("✓"), out)
}

func init() {
	reportCmd.PersistentFlags().StringP("output", "o", "", "Write the report to a file")
	reportCmd.AddCommand(reportTourCmd, reportSummaryCmd)
	rootCmd.AddCommand(reportCmd)
}
