package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/daemon"
	"github.com/tourplanner/tp/internal/dashboard"
	"github.com/tourplanner/tp/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run the dashboard and the import inbox",
	Long: `Start the WebSocket dashboard and watch the inbox directory for tour files.

Files dropped into the inbox (.json, .yaml, .yml, .jsonl in the export format) are
imported as new tours, their routes are looked up, and the file is moved to
processed/ or failed/.

WebSocket messages include:
- sync_outcome: a route lookup finished (synced, skipped or failed)
- tour_update: tours were imported
- stats: tour and route statistics
- backlog_complete: a backlog run finished

Endpoints:
  ws://localhost:8080/ws          live events
  http://localhost:8080/health    health check
  http://localhost:8080/api/tours?q=text&scope=all

Example usage:
  tp serve                     # dashboard on dashboard.port, inbox on inbox.dir
  tp serve --port 9000 --no-inbox`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		inboxDir := cfg.Inbox.Dir
		if cmd.Flags().Changed("inbox") {
			inboxDir, _ = cmd.Flags().GetString("inbox")
		}
		noInbox, _ := cmd.Flags().GetBool("no-inbox")
		retry, _ := cmd.Flags().GetDuration("retry")

		warnNoAPIKey()
		a := mustOpenApp()
		defer a.Close()

		server := dashboard.NewServer(&dashboard.Config{
			Addr:     fmt.Sprintf(":%d", port),
			Searcher: a.planner,
			Sync:     a.engine,
			Logger:   logs.Logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, logs.Logger("dashboard"))
		a.engine.Subscribe(handler)

		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}

		refreshStats := func() {
			tours, err := a.planner.ListTours(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to load tours: %v\n", err)
				return
			}
			handler.UpdateStats(tours)
		}
		refreshStats()

		// SIGHUP starts a new log file, for logrotate-style setups.
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-hup:
					if err := logs.Rotate(); err != nil {
						fmt.Fprintf(os.Stderr, "Warning: failed to rotate log: %v\n", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		fmt.Printf("%s Dashboard on http://localhost:%d (ws://localhost:%d/ws)\n", ui.RenderPass("✓"), port, port)

		var wg sync.WaitGroup
		if cfg.Sync.BacklogOnStart {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pending, err := a.db.UnsyncedRoutableTours(ctx)
				if err != nil || len(pending) == 0 {
					return
				}
				start := time.Now()
				synced, err := a.planner.InitializeBacklog(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Warning: backlog failed: %v\n", err)
					return
				}
				handler.OnBacklogComplete(len(pending), synced, time.Since(start))
			}()
		}

		daemonErr := make(chan error, 1)
		if noInbox {
			daemonErr <- nil
		} else {
			d, err := daemon.New(a.planner, inboxDir, &daemon.Config{
				DebounceInterval: cfg.Inbox.Debounce,
				BacklogInterval:  retry,
				SyncRoutes:       true,
				Logger:           logs.Logger("inbox"),
				OnImport: func(ev daemon.ImportEvent) {
					for _, t := range ev.Tours {
						handler.OnTourChanged("imported", t.ID, t)
					}
					if ev.Err != nil {
						fmt.Fprintf(os.Stderr, "%s import of %s failed: %v\n", ui.RenderFail("✗"), ev.Path, ev.Err)
					} else {
						fmt.Printf("%s Imported %d tours from %s\n", ui.RenderPass("✓"), ev.Result.Imported, ev.Path)
					}
				},
			})
			if err != nil {
				_ = server.Stop()
				fatalf("%v", err)
			}
			fmt.Printf("%s Watching %s for tour files\n", ui.RenderPass("✓"), d.Dir())
			go func() { daemonErr <- d.Start(ctx) }()
		}

		fmt.Println("\nPress Ctrl+C to stop...")

		var runErr error
		select {
		case <-ctx.Done():
			runErr = <-daemonErr
		case runErr = <-daemonErr:
			if runErr == nil {
				<-ctx.Done()
			}
		}

		fmt.Println("\nShutting down...")
		wg.Wait()
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		if runErr != nil {
			fatalf("inbox: %v", runErr)
		}
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default: dashboard.port)")
	serveCmd.Flags().String("inbox", "", "Inbox directory (default: inbox.dir)")
	serveCmd.Flags().Bool("no-inbox", false, "Do not watch the inbox")
	serveCmd.Flags().Duration("retry", 10*time.Minute, "Interval for retrying routes that failed (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
