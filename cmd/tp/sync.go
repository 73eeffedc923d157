package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Route lookup maintenance",
}

var syncBacklogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Look up routes for tours that have none yet",
	Long: `Look up the route of every tour that has a start and a destination but
no route, for example after an import or an offline edit. Failures are
logged and do not stop the run.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		warnNoAPIKey()
		a := mustOpenApp()
		defer a.Close()

		pending, err := a.db.UnsyncedRoutableTours(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if len(pending) == 0 {
			fmt.Println(ui.RenderMuted("All routable tours have a route."))
			return
		}

		fmt.Printf("%s Looking up %d routes...\n", ui.RenderAccent("→"), len(pending))
		start := time.Now()
		synced, err := a.planner.InitializeBacklog(ctx)
		if err != nil {
			fatalf("%v", err)
		}

		mark := ui.RenderPass("✓")
		if synced < len(pending) {
			mark = ui.RenderWarn("!")
		}
		fmt.Printf("%s %d/%d routes synced in %v\n", mark, synced, len(pending), time.Since(start).Round(time.Millisecond))
		if synced < len(pending) && cfg.Log.File != "" {
			fmt.Println(ui.RenderMuted("  See " + cfg.Log.File + " for failures."))
		}
	},
}

var syncCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the routing provider is reachable",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		warnNoAPIKey()
		a := mustOpenApp()
		defer a.Close()

		ctx, cancelTimeout := context.WithTimeout(ctx, cfg.Routing.Timeout)
		defer cancelTimeout()
		if !a.router.TestConnectivity(ctx) {
			fmt.Fprintf(os.Stderr, "%s %s is not reachable or rejected the request\n", ui.RenderFail("✗"), cfg.Routing.BaseURL)
			os.Exit(1)
		}
		fmt.Printf("%s %s is reachable\n", ui.RenderPass("✓"), cfg.Routing.BaseURL)
	},
}

func init() {
	syncCmd.AddCommand(syncBacklogCmd, syncCheckCmd)
	rootCmd.AddCommand(syncCmd)
}
