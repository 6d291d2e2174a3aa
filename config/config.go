/*
config.go - Environment-driven configuration

PURPOSE:
  Loads runtime configuration from environment variables (with a .env file
  picked up via godotenv for local development) and builds the shared
  logrus logger.

ENVIRONMENT:
  POS_PORT                 HTTP listen port (default: 8080)
  POS_DB                   SQLite database path (default: pos.db; "memory"
                           selects the in-memory store)
  POS_STOCK_POLICY         block | warn | silent (default: warn)
  POS_CANCEL_WINDOW        Max age for cancellation, Go duration (default: 60m)
  POS_CANCEL_REASON        Require a cancellation reason (default: true)
  POS_TENANTS              Comma-separated tenant IDs for the closing sweep
  POS_AUTO_CLOSE           Enable the automatic closing scheduler (default: true)
  POS_LOG_LEVEL            logrus level name (default: info)
  POS_LOG_JSON             JSON log output (default: false)
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/pos-engine/engine"
)

// Config holds everything main needs to assemble the service.
type Config struct {
	Port         string
	DBPath       string
	StockPolicy  engine.StockPolicy
	Cancellation engine.CancellationConfig
	Tenants      []engine.TenantID
	AutoClose    bool
	LogLevel     logrus.Level
	LogJSON      bool
}

// Load reads the environment, including a .env file when present.
func Load() (Config, error) {
	godotenv.Load()

	cfg := Config{
		Port:         envOr("POS_PORT", "8080"),
		DBPath:       envOr("POS_DB", "pos.db"),
		StockPolicy:  engine.DefaultStockPolicy,
		Cancellation: engine.DefaultCancellationConfig(),
		AutoClose:    envBool("POS_AUTO_CLOSE", true),
		LogLevel:     logrus.InfoLevel,
		LogJSON:      envBool("POS_LOG_JSON", false),
	}

	if v := os.Getenv("POS_STOCK_POLICY"); v != "" {
		policy := engine.StockPolicy(strings.ToLower(strings.TrimSpace(v)))
		if !engine.ValidPolicy(policy) {
			return cfg, fmt.Errorf("invalid POS_STOCK_POLICY %q", v)
		}
		cfg.StockPolicy = policy
	}

	if v := os.Getenv("POS_CANCEL_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid POS_CANCEL_WINDOW %q", v)
		}
		cfg.Cancellation.MaxCancellationDelay = d
	}
	cfg.Cancellation.RequireReason = envBool("POS_CANCEL_REASON", cfg.Cancellation.RequireReason)

	for _, part := range strings.Split(os.Getenv("POS_TENANTS"), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			cfg.Tenants = append(cfg.Tenants, engine.TenantID(part))
		}
	}

	if v := os.Getenv("POS_LOG_LEVEL"); v != "" {
		level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			return cfg, fmt.Errorf("invalid POS_LOG_LEVEL %q", v)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

// NewLogger builds the process-wide logger from the config.
func NewLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(cfg.LogLevel)
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
