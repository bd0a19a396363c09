package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "remote.base_url", typ: kString, env: "READTHIS_REMOTE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.BaseURL },
	},
	{
		key: "remote.api_key", typ: kString, env: "READTHIS_REMOTE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Remote.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.APIKey },
	},
	{
		key: "remote.token", typ: kString, env: "READTHIS_REMOTE_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Remote.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.Token },
	},
	{
		key: "remote.user_id", typ: kString, env: "READTHIS_REMOTE_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Remote.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.UserID },
	},
	{
		key: "remote.call_timeout", typ: kString, env: "READTHIS_REMOTE_CALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Remote.CallTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.CallTimeout },
	},
	{
		key: "server.port", typ: kInt, env: "READTHIS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "READTHIS_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "READTHIS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "sync.drain_budget", typ: kString, env: "READTHIS_SYNC_DRAIN_BUDGET",
		apply:   func(cfg *Config, v any) { cfg.Sync.DrainBudget = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.DrainBudget },
	},
	{
		key: "sync.interval", typ: kString, env: "READTHIS_SYNC_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Sync.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.Interval },
	},
	{
		key: "sync.page_size", typ: kInt, env: "READTHIS_SYNC_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Sync.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.PageSize },
	},
	{
		key: "log.level", typ: kString, env: "READTHIS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
