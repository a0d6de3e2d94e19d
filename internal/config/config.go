// Package config loads cmd/triplit-cli's runtime configuration, with a
// clear precedence: environment > defaults.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds the CLI's configuration for opening a DB.
type Config struct {
	WALPath         string
	ClientID        string
	EnableBackups   bool
	BackupInterval  time.Duration
	BackupRetention time.Duration
}

// NewDefaultConfig returns Config's defaults.
func NewDefaultConfig() Config {
	return Config{
		WALPath:         "triplit.wal",
		ClientID:        "",
		EnableBackups:   false,
		BackupInterval:  1 * time.Hour,
		BackupRetention: 7 * 24 * time.Hour,
	}
}

// LoadConfig builds a Config from defaults overridden by TRIPLIT_*
// environment variables.
func LoadConfig() Config {
	cfg := NewDefaultConfig()
	applyEnvConfig(&cfg)
	return cfg
}

func applyEnvConfig(cfg *Config) {
	if v := os.Getenv("TRIPLIT_WAL_PATH"); v != "" {
		cfg.WALPath = v
	}
	if v := os.Getenv("TRIPLIT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("TRIPLIT_ENABLE_BACKUPS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableBackups = b
		} else {
			slog.Warn("triplit: invalid TRIPLIT_ENABLE_BACKUPS, using default", "value", v)
		}
	}
	overrideDuration("TRIPLIT_BACKUP_INTERVAL", &cfg.BackupInterval)
	overrideDuration("TRIPLIT_BACKUP_RETENTION", &cfg.BackupRetention)
}

func overrideDuration(envKey string, target *time.Duration) {
	v := os.Getenv(envKey)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*target = d
	} else {
		slog.Warn("triplit: invalid duration in env var, using default", "key", envKey, "value", v)
	}
}
