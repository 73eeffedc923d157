package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// fileSection maps TOML section names to key/value pairs.
type fileSection map[string]any

// WriteDefault writes the current settings of v (defaults unless
// overridden) to path as TOML. The api key is written empty unless it was
// set explicitly. An existing file is only replaced when force is set.
func WriteDefault(v *viper.Viper, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	doc := map[string]fileSection{
		"database": {"path": v.GetString(KeyDatabasePath)},
		"routing": {
			"base_url": v.GetString(KeyRoutingBaseURL),
			"api_key":  v.GetString(KeyRoutingAPIKey),
			"country":  v.GetString(KeyRoutingCountry),
			"timeout":  v.GetDuration(KeyRoutingTimeout).String(),
		},
		"sync": {
			"backlog_on_start": v.GetBool(KeySyncBacklogOnOpen),
			"backlog_workers":  v.GetInt(KeySyncWorkers),
		},
		"log": {
			"file":         v.GetString(KeyLogFile),
			"max_size_mb":  v.GetInt(KeyLogMaxSizeMB),
			"max_backups":  v.GetInt(KeyLogMaxBackups),
			"max_age_days": v.GetInt(KeyLogMaxAgeDays),
			"debug":        v.GetBool(KeyLogDebug),
		},
		"dashboard": {"port": v.GetInt(KeyDashboardPort)},
		"inbox": {
			"dir":      v.GetString(KeyInboxDir),
			"debounce": v.GetDuration(KeyInboxDebounce).String(),
		},
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# tourplanner configuration")
	fmt.Fprintln(f, "# Environment variables override these values, e.g. TOURPLANNER_ROUTING_API_KEY.")
	fmt.Fprintln(f)
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}

// DefaultFile returns the path config init writes to.
func DefaultFile() string {
	return filepath.Join(ConfigDir(), "tourplanner.toml")
}
