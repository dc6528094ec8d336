// Package config reads and writes the client config at ~/.config/dealbook/config.json.
// Every setting resolves with priority env > config.json > default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/dealbook/internal/models"
)

const configFile = "config.json"

// Defaults
const (
	DefaultDebounce = 800 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
	DefaultLogLevel = "warn"
)

// StoreConfig locates the remote document store.
type StoreConfig struct {
	URL             string `json:"url,omitempty"`
	Debounce        string `json:"debounce,omitempty"`         // duration string, default "800ms"
	Timeout         string `json:"timeout,omitempty"`          // duration string, default "10s"
	RefreshInterval string `json:"refresh_interval,omitempty"` // duration string, default off
}

// Config is the client config file.
type Config struct {
	Principal     string      `json:"principal,omitempty"`
	Store         StoreConfig `json:"store"`
	ActivityLimit *int        `json:"activity_limit,omitempty"`
	LogLevel      string      `json:"log_level,omitempty"`
}

// Dir returns the config directory, creating it if necessary.
// Priority: DEALBOOK_CONFIG_DIR env > ~/.config/dealbook.
func Dir() (string, error) {
	dir := os.Getenv("DEALBOOK_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "dealbook")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the config from dir. A missing file yields an empty config.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return &cfg, nil
}

// Save writes the config to dir using atomic write (temp file + rename)
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, configFile))
}

// GetPrincipal returns the remote document key.
// Priority: DEALBOOK_PRINCIPAL env > config.json principal > "" (not connected).
func (c *Config) GetPrincipal() string {
	if v := os.Getenv("DEALBOOK_PRINCIPAL"); v != "" {
		return v
	}
	return c.Principal
}

// GetStoreURL returns the document store location.
// Priority: DEALBOOK_STORE_URL env > config.json store.url > "".
func (c *Config) GetStoreURL() string {
	if v := os.Getenv("DEALBOOK_STORE_URL"); v != "" {
		return v
	}
	return c.Store.URL
}

// GetDebounce returns the push debounce.
// Priority: DEALBOOK_DEBOUNCE env > config.json store.debounce > 800ms.
func (c *Config) GetDebounce() time.Duration {
	return durationSetting("DEALBOOK_DEBOUNCE", c.Store.Debounce, DefaultDebounce)
}

// GetTimeout bounds each remote call made by a command.
// Priority: DEALBOOK_TIMEOUT env > config.json store.timeout > 10s.
func (c *Config) GetTimeout() time.Duration {
	return durationSetting("DEALBOOK_TIMEOUT", c.Store.Timeout, DefaultTimeout)
}

// GetRefreshInterval returns the periodic re-pull interval; zero disables it.
// Priority: DEALBOOK_REFRESH_INTERVAL env > config.json store.refresh_interval > 0.
func (c *Config) GetRefreshInterval() time.Duration {
	return durationSetting("DEALBOOK_REFRESH_INTERVAL", c.Store.RefreshInterval, 0)
}

// GetActivityLimit returns the activity log cap.
// Priority: DEALBOOK_ACTIVITY_LIMIT env > config.json activity_limit > 50.
func (c *Config) GetActivityLimit() int {
	if v := os.Getenv("DEALBOOK_ACTIVITY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if c.ActivityLimit != nil && *c.ActivityLimit > 0 {
		return *c.ActivityLimit
	}
	return models.DefaultActivityLimit
}

// GetLogLevel returns the CLI log level.
// Priority: DEALBOOK_LOG_LEVEL env > config.json log_level > "warn".
func (c *Config) GetLogLevel() string {
	if v := os.Getenv("DEALBOOK_LOG_LEVEL"); v != "" {
		return v
	}
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return DefaultLogLevel
}

func durationSetting(envKey, configured string, def time.Duration) time.Duration {
	if v := os.Getenv(envKey); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	if configured != "" {
		if d, err := time.ParseDuration(configured); err == nil && d >= 0 {
			return d
		}
	}
	return def
}

// field binds a dotted key to one config value.
type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

var fields = map[string]field{
	"principal": {
		get: func(c *Config) string { return c.Principal },
		set: func(c *Config, v string) error { c.Principal = v; return nil },
	},
	"store.url": {
		get: func(c *Config) string { return c.Store.URL },
		set: func(c *Config, v string) error { c.Store.URL = v; return nil },
	},
	"store.debounce": {
		get: func(c *Config) string { return c.Store.Debounce },
		set: func(c *Config, v string) error { return setDuration(&c.Store.Debounce, v) },
	},
	"store.timeout": {
		get: func(c *Config) string { return c.Store.Timeout },
		set: func(c *Config, v string) error { return setDuration(&c.Store.Timeout, v) },
	},
	"store.refresh_interval": {
		get: func(c *Config) string { return c.Store.RefreshInterval },
		set: func(c *Config, v string) error { return setDuration(&c.Store.RefreshInterval, v) },
	},
	"activity_limit": {
		get: func(c *Config) string {
			if c.ActivityLimit == nil {
				return ""
			}
			return strconv.Itoa(*c.ActivityLimit)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				c.ActivityLimit = nil
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("activity_limit must be a positive integer, got %q", v)
			}
			c.ActivityLimit = &n
			return nil
		},
	},
	"log_level": {
		get: func(c *Config) string { return c.LogLevel },
		set: func(c *Config, v string) error {
			switch strings.ToLower(v) {
			case "", "debug", "info", "warn", "error":
				c.LogLevel = strings.ToLower(v)
				return nil
			}
			return fmt.Errorf("log_level must be debug, info, warn or error, got %q", v)
		},
	},
}

func setDuration(dst *string, v string) error {
	if v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
	}
	*dst = v
	return nil
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the configured (not resolved) value of key.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return f.get(c), nil
}

// Set validates and assigns value to key. An empty value clears it.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	return f.set(c, value)
}
