// Package config loads readthis configuration from a JSON file backend,
// a local .env file, and READTHIS_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Remote  RemoteConfig
	Server  ServerConfig
	Storage StorageConfig
	Sync    SyncConfig
	Log     LogConfig
}

// RemoteConfig points at the remote links store. Token is the user's bearer
// token; refreshing it is out of scope here, expiry is only detected.
type RemoteConfig struct {
	BaseURL     string
	APIKey      string
	Token       string
	UserID      string
	CallTimeout string // Go duration string, per remote call
}

type ServerConfig struct {
	Port  int
	Token string // local daemon API token; generated on first serve
}

type StorageConfig struct {
	DataDir string
}

type SyncConfig struct {
	DrainBudget string // Go duration string, per full drain
	Interval    string // Go duration string, daemon periodic drain
	PageSize    int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 7348},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Remote:  RemoteConfig{CallTimeout: "5s"},
		Sync: SyncConfig{
			DrainBudget: "30s",
			Interval:    "5m",
			PageSize:    25,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "readthis-data"
		}
	}
	return filepath.Join(dir, "readthis")
}

// Load reads configuration: defaults, then the JSON file backend at
// $XDG_CONFIG_HOME/readthis/config.json, then a .env file in the working
// directory (if present), then READTHIS_* environment variables.
func Load() (Config, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// ValidateRemote checks that the fields every remote operation needs are
// present. Commands that never touch the remote (save, read, queue) skip it.
func (c Config) ValidateRemote() error {
	switch {
	case c.Remote.BaseURL == "":
		return fmt.Errorf("missing required config remote.base_url (env READTHIS_REMOTE_BASE_URL)")
	case c.Remote.Token == "":
		return fmt.Errorf("missing required config: remote token. Set it via environment variable READTHIS_REMOTE_TOKEN")
	case c.Remote.UserID == "":
		return fmt.Errorf("missing required config remote.user_id (env READTHIS_REMOTE_USER_ID)")
	}
	return nil
}

// CallTimeout returns the parsed per-call remote timeout.
func (c Config) CallTimeout() time.Duration {
	return parseDuration(c.Remote.CallTimeout, 5*time.Second)
}

// DrainBudget returns the parsed full-drain budget.
func (c Config) DrainBudget() time.Duration {
	return parseDuration(c.Sync.DrainBudget, 30*time.Second)
}

// SyncInterval returns the parsed daemon drain interval.
func (c Config) SyncInterval() time.Duration {
	return parseDuration(c.Sync.Interval, 5*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid duration %q, using %s\n", s, fallback)
		return fallback
	}
	return d
}
