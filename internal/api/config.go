package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	MaxDocBytes int64 // request body limit for document writes (default: 10 MiB)

	RateLimitWrite int // PUT per document per minute (default: 120)
	RateLimitRead  int // GET per document per minute (default: 600)

	CORSAllowedOrigins []string // browser origins allowed to call the document API (default: none)
}

// DefaultConfig returns the configuration used when no environment overrides are set.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/dealbook.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",
		MaxDocBytes:     10 << 20,
		RateLimitWrite:  120,
		RateLimitRead:   600,
	}
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DEALBOOK_STORE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DEALBOOK_STORE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DEALBOOK_STORE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("DEALBOOK_STORE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("DEALBOOK_STORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DEALBOOK_STORE_MAX_DOC_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxDocBytes = n
		}
	}
	if v := os.Getenv("DEALBOOK_STORE_RATE_LIMIT_WRITE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitWrite = n
		}
	}
	if v := os.Getenv("DEALBOOK_STORE_RATE_LIMIT_READ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitRead = n
		}
	}

	if v := os.Getenv("DEALBOOK_STORE_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	return cfg
}
