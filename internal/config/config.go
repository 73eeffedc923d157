// Package config loads tourplanner settings.
//
// Settings are resolved in this order, later sources winning:
//
//  1. built-in defaults
//  2. config file (tourplanner.toml or .yaml in the user config dir, or --config)
//  3. .env file in the working directory (values become environment variables)
//  4. environment variables prefixed TOURPLANNER_, with "." replaced by "_"
//     (e.g. TOURPLANNER_ROUTING_API_KEY)
//  5. flags bound by the CLI
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TOURPLANNER"

// Keys used with viper.
const (
	KeyDatabasePath      = "database.path"
	KeyRoutingBaseURL    = "routing.base_url"
	KeyRoutingAPIKey     = "routing.api_key"
	KeyRoutingCountry    = "routing.country"
	KeyRoutingTimeout    = "routing.timeout"
	KeySyncBacklogOnOpen = "sync.backlog_on_start"
	KeySyncWorkers       = "sync.backlog_workers"
	KeyLogFile           = "log.file"
	KeyLogMaxSizeMB      = "log.max_size_mb"
	KeyLogMaxBackups     = "log.max_backups"
	KeyLogMaxAgeDays     = "log.max_age_days"
	KeyLogDebug          = "log.debug"
	KeyDashboardPort     = "dashboard.port"
	KeyInboxDir          = "inbox.dir"
	KeyInboxDebounce     = "inbox.debounce"
)

// Config is the resolved configuration.
type Config struct {
	Database  DatabaseConfig
	Routing   RoutingConfig
	Sync      SyncConfig
	Log       LogConfig
	Dashboard DashboardConfig
	Inbox     InboxConfig

	// File is the config file that was read, empty when none was found.
	File string
}

type DatabaseConfig struct {
	Path string
}

type RoutingConfig struct {
	BaseURL string
	APIKey  string
	Country string
	Timeout time.Duration
}

type SyncConfig struct {
	BacklogOnStart bool
	BacklogWorkers int
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Debug      bool
}

type DashboardConfig struct {
	Port int
}

type InboxConfig struct {
	Dir      string
	Debounce time.Duration
}

// ConfigDir returns the directory searched for tourplanner.toml.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tourplanner")
	}
	return ".tourplanner"
}

// DataDir returns the directory holding the database, logs and inbox.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tourplanner")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "tourplanner")
	}
	return ".tourplanner"
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	data := DataDir()
	v.SetDefault(KeyDatabasePath, filepath.Join(data, "tours.db"))
	v.SetDefault(KeyRoutingBaseURL, "https://api.openrouteservice.org")
	v.SetDefault(KeyRoutingAPIKey, "")
	v.SetDefault(KeyRoutingCountry, "AT")
	v.SetDefault(KeyRoutingTimeout, "15s")
	v.SetDefault(KeySyncBacklogOnOpen, true)
	v.SetDefault(KeySyncWorkers, 4)
	v.SetDefault(KeyLogFile, filepath.Join(data, "tourplanner.log"))
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
	v.SetDefault(KeyLogDebug, false)
	v.SetDefault(KeyDashboardPort, 8080)
	v.SetDefault(KeyInboxDir, filepath.Join(data, "inbox"))
	v.SetDefault(KeyInboxDebounce, "500ms")
}

// NewViper returns a viper instance with defaults, config file search paths
// and environment binding set up, but nothing read yet.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tourplanner")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Read reads the config file (if any) into v. A missing file in the search
// paths is not an error; a missing explicit file is.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load builds a Config from defaults, the config file, .env and the
// environment.
func Load(configFile string) (*Config, *viper.Viper, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, nil, err
	}
	v := NewViper(configFile)
	if err := Read(v); err != nil {
		return nil, nil, err
	}
	cfg, err := FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// FromViper extracts a validated Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{Path: expandHome(v.GetString(KeyDatabasePath))},
		Routing: RoutingConfig{
			BaseURL: v.GetString(KeyRoutingBaseURL),
			APIKey:  v.GetString(KeyRoutingAPIKey),
			Country: v.GetString(KeyRoutingCountry),
			Timeout: v.GetDuration(KeyRoutingTimeout),
		},
		Sync: SyncConfig{
			BacklogOnStart: v.GetBool(KeySyncBacklogOnOpen),
			BacklogWorkers: v.GetInt(KeySyncWorkers),
		},
		Log: LogConfig{
			File:       expandHome(v.GetString(KeyLogFile)),
			MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
			MaxBackups: v.GetInt(KeyLogMaxBackups),
			MaxAgeDays: v.GetInt(KeyLogMaxAgeDays),
			Debug:      v.GetBool(KeyLogDebug),
		},
		Dashboard: DashboardConfig{Port: v.GetInt(KeyDashboardPort)},
		Inbox: InboxConfig{
			Dir:      expandHome(v.GetString(KeyInboxDir)),
			Debounce: v.GetDuration(KeyInboxDebounce),
		},
		File: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%s is required", KeyDatabasePath)
	}
	if c.Routing.BaseURL == "" {
		return fmt.Errorf("%s is required", KeyRoutingBaseURL)
	}
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", KeyRoutingTimeout, c.Routing.Timeout)
	}
	if c.Sync.BacklogWorkers < 1 {
		return fmt.Errorf("%s must be at least 1 (got %d)", KeySyncWorkers, c.Sync.BacklogWorkers)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("%s must be a valid port (got %d)", KeyDashboardPort, c.Dashboard.Port)
	}
	if c.Inbox.Debounce < 0 {
		return fmt.Errorf("%s must not be negative", KeyInboxDebounce)
	}
	return nil
}

// HasAPIKey reports whether routing calls can be authenticated.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.Routing.APIKey) != ""
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
