package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromViper_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	v := NewViper(filepath.Join(t.TempDir(), "absent.toml"))

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() failed: %v", err)
	}
	if cfg.Routing.Country != "AT" {
		t.Errorf("Country = %q, want AT", cfg.Routing.Country)
	}
	if cfg.Routing.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Routing.Timeout)
	}
	if cfg.Sync.BacklogWorkers != 4 || !cfg.Sync.BacklogOnStart {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if !strings.HasSuffix(cfg.Database.Path, filepath.Join("tourplanner", "tours.db")) {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.HasAPIKey() {
		t.Error("HasAPIKey() = true with no key configured")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tourplanner.toml")
	content := `
[routing]
api_key = "from-file"
timeout = "3s"

[sync]
backlog_workers = 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOURPLANNER_ROUTING_COUNTRY", "DE")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Routing.APIKey != "from-file" {
		t.Errorf("APIKey = %q", cfg.Routing.APIKey)
	}
	if cfg.Routing.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", cfg.Routing.Timeout)
	}
	if cfg.Sync.BacklogWorkers != 2 {
		t.Errorf("BacklogWorkers = %d", cfg.Sync.BacklogWorkers)
	}
	if cfg.Routing.Country != "DE" {
		t.Errorf("Country = %q, want env override DE", cfg.Routing.Country)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TOURPLANNER_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOURPLANNER_TEST_DOTENV", "")
	os.Unsetenv("TOURPLANNER_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() failed: %v", err)
	}
	if got := os.Getenv("TOURPLANNER_TEST_DOTENV"); got != "loaded" {
		t.Errorf("env = %q, want loaded", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadDotEnv(missing) = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Path: "x.db"},
			Routing:  RoutingConfig{BaseURL: "http://x", Timeout: time.Second},
			Sync:     SyncConfig{BacklogWorkers: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no db", func(c *Config) { c.Database.Path = "" }, "database.path is required"},
		{"no url", func(c *Config) { c.Routing.BaseURL = "" }, "routing.base_url is required"},
		{"zero timeout", func(c *Config) { c.Routing.Timeout = 0 }, "routing.timeout must be positive"},
		{"zero workers", func(c *Config) { c.Sync.BacklogWorkers = 0 }, "sync.backlog_workers must be at least 1"},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port must be a valid port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "conf", "tourplanner.toml")

	if err := WriteDefault(NewViper(""), path, false); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}
	if err := WriteDefault(NewViper(""), path, false); err == nil {
		t.Error("WriteDefault() should refuse to overwrite without force")
	}

	v := NewViper(path)
	if err := Read(v); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() failed: %v", err)
	}
	if cfg.Routing.Timeout != 15*time.Second || cfg.Inbox.Debounce != 500*time.Millisecond {
		t.Errorf("durations = %v / %v", cfg.Routing.Timeout, cfg.Inbox.Debounce)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Port = %d", cfg.Dashboard.Port)
	}
}
