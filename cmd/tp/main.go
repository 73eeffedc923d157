// Command tp is the tour planner CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tourplanner/tp/internal/config"
	"github.com/tourplanner/tp/internal/logging"
	"github.com/tourplanner/tp/internal/planner"
	"github.com/tourplanner/tp/internal/routesync"
	"github.com/tourplanner/tp/internal/routing"
	"github.com/tourplanner/tp/internal/store"
	"github.com/tourplanner/tp/internal/ui"
)

var (
	configFile string
	dbPath     string
	debug      bool
	noColor    bool

	cfg  *config.Config
	v    *viper.Viper
	logs = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "tp",
	Short: "Plan tours, keep their routes in sync and log how they went",
	Long: `tp manages tours between two places and the logs of how they went.

Whenever a tour's start, destination or transport type changes, its route
(distance, estimated time and geometry) is looked up from OpenRouteService
and stored with the tour.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)

		var err error
		cfg, v, err = config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			cfg.Database.Path = dbPath
		}
		if debug {
			cfg.Log.Debug = true
		}

		logs = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Debug:      cfg.Log.Debug,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logs.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: "+config.DefaultFile()+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tours", Title: "Tours:"},
		&cobra.Group{ID: "logs", Title: "Tour logs:"},
		&cobra.Group{ID: "sync", Title: "Routes:"},
		&cobra.Group{ID: "data", Title: "Import, export and reports:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired components for one command invocation.
type app struct {
	db      *store.DB
	router  *routing.Client
	engine  *routesync.Engine
	planner *planner.Service
}

func openApp() (*app, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	router := routing.NewClient(routing.Config{
		BaseURL: cfg.Routing.BaseURL,
		APIKey:  cfg.Routing.APIKey,
		Country: cfg.Routing.Country,
		Timeout: cfg.Routing.Timeout,
		Logger:  logs.Logger("routing"),
		Debug:   cfg.Log.Debug,
	})
	engine := routesync.New(router, db, logs.Logger("sync"),
		routesync.WithBacklogWorkers(cfg.Sync.BacklogWorkers),
		routesync.WithNotFound(store.ErrNotFound),
	)

	return &app{
		db:      db,
		router:  router,
		engine:  engine,
		planner: planner.New(db, engine, logs.Logger("planner")),
	}, nil
}

// Close waits for pending saves before closing the database.
func (a *app) Close() {
	a.engine.Wait()
	_ = a.db.Close()
}

// mustOpenApp is openApp for Run handlers.
func mustOpenApp() *app {
	a, err := openApp()
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func parseID(s, what string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fatalf("invalid %s id %q", what, s)
	}
	return id
}

func warnNoAPIKey() {
	if !cfg.HasAPIKey() {
		fmt.Fprintf(os.Stderr, "%s no routing api key configured (set %s_ROUTING_API_KEY); routes cannot be looked up\n",
			ui.RenderWarn("Warning:"), config.EnvPrefix)
	}
}
