package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/config"
	"github.com/tourplanner/tp/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Show or write the configuration",
	Long: `Settings are read, in increasing priority, from built-in defaults, the
config file (tourplanner.toml in the working directory or ` + config.ConfigDir() + `),
a .env file in the working directory and ` + config.EnvPrefix + `_* environment
variables such as ` + config.EnvPrefix + `_ROUTING_API_KEY.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		path := configFile
		if path == "" {
			path = config.DefaultFile()
		}
		if err := config.WriteDefault(v, path, force); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		file := cfg.File
		if file == "" {
			file = ui.RenderMuted("(none, using defaults)")
		}
		fmt.Println(ui.KeyValues([][2]string{
			{"config file", file},
			{config.KeyDatabasePath, cfg.Database.Path},
			{config.KeyRoutingBaseURL, cfg.Routing.BaseURL},
			{config.KeyRoutingAPIKey, maskKey(cfg.Routing.APIKey)},
			{config.KeyRoutingCountry, cfg.Routing.Country},
			{config.KeyRoutingTimeout, cfg.Routing.Timeout.String()},
			{config.KeySyncBacklogOnOpen, strconv.FormatBool(cfg.Sync.BacklogOnStart)},
			{config.KeySyncWorkers, strconv.Itoa(cfg.Sync.BacklogWorkers)},
			{config.KeyLogFile, orDash(cfg.Log.File)},
			{config.KeyLogDebug, strconv.FormatBool(cfg.Log.Debug)},
			{config.KeyDashboardPort, strconv.Itoa(cfg.Dashboard.Port)},
			{config.KeyInboxDir, cfg.Inbox.Dir},
			{config.KeyInboxDebounce, cfg.Inbox.Debounce.String()},
		}))
	},
}

// maskKey keeps the last four characters of an api key.
func maskKey(k string) string {
	if k == "" {
		return "-"
	}
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
