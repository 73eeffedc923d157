package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/loadtest"
	"github.com/tourplanner/tp/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Load test search and route sync on a scratch database",
	Long: `Populate a temporary database and measure search latency under
concurrent clients, then submit concurrent edits through the route sync
engine with a simulated routing provider and check that no edit was lost.

Your own database and the routing provider are not touched.

Examples:
  tp bench
  tp bench --tours 5000 --clients 50 --editors 20 --latency 50ms`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		tours, _ := cmd.Flags().GetInt("tours")
		logsPerTour, _ := cmd.Flags().GetInt("logs")
		clients, _ := cmd.Flags().GetInt("clients")
		queries, _ := cmd.Flags().GetInt("queries")
		editors, _ := cmd.Flags().GetInt("editors")
		edits, _ := cmd.Flags().GetInt("edits")
		latency, _ := cmd.Flags().GetDuration("latency")

		if tours <= 0 || clients <= 0 || queries <= 0 || editors <= 0 || edits <= 0 {
			fatalf("--tours, --clients, --queries, --editors and --edits must be positive")
		}
		if logsPerTour < 0 {
			fatalf("--logs must not be negative")
		}

		dir, err := os.MkdirTemp("", "tp-bench-")
		if err != nil {
			fatalf("%v", err)
		}
		defer os.RemoveAll(dir)

		fmt.Printf("%s Creating %d tours with %d logs each...\n", ui.RenderAccent("→"), tours, logsPerTour)
		start := time.Now()
		td, err := loadtest.CreateTestDatabase(filepath.Join(dir, "bench.db"), tours, logsPerTour)
		if err != nil {
			fatalf("%v", err)
		}
		defer td.Close()
		fmt.Printf("  done in %v\n\n", time.Since(start).Round(time.Millisecond))

		fmt.Printf("%s Search: %d clients x %d queries\n", ui.RenderAccent("→"), clients, queries)
		stats, err := td.RunConcurrentSearches(clients, queries)
		if err != nil {
			fatalf("%v", err)
		}
		stats.PrintStats(os.Stdout)
		fmt.Println()

		fmt.Printf("%s Route sync: %d editors x %d edits, %v provider latency\n", ui.RenderAccent("→"), editors, edits, latency)
		report, err := td.RunConcurrentEdits(loadtest.SimulatedRouter{Latency: latency}, editors, edits)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("  Edits:   %d in %v\n", report.Edits, report.Elapsed.Round(time.Millisecond))
		fmt.Printf("  Synced:  %d, failed %d, skipped %d\n", report.Synced, report.Failed, report.Skipped)
		if report.Latency != nil {
			fmt.Printf("  Per-edit P50 %v, P95 %v, max %v\n", report.Latency.P50, report.Latency.P95, report.Latency.Max)
		}
		if report.Lost > 0 {
			_ = td.Close()
			_ = os.RemoveAll(dir)
			fmt.Fprintf(os.Stderr, "%s %d tours lost their last edit\n", ui.RenderFail("✗"), report.Lost)
			os.Exit(1)
		}
		fmt.Printf("%s No edits lost\n", ui.RenderPass("✓"))
	},
}

func init() {
	benchCmd.Flags().Int("tours", 1000, "Number of tours to generate")
	benchCmd.Flags().Int("logs", 3, "Logs per tour")
	benchCmd.Flags().Int("clients", 20, "Concurrent search clients")
	benchCmd.Flags().Int("queries", 25, "Queries per client")
	benchCmd.Flags().Int("editors", 10, "Concurrent editors")
	benchCmd.Flags().Int("edits", 20, "Edits per editor")
	benchCmd.Flags().Duration("latency", 20*time.Millisecond, "Simulated provider latency")
	rootCmd.AddCommand(benchCmd)
}
