package triplit

import (
	"fmt"
	"time"

	"github.com/itoxiq/triplit/internal/migrate"
	"github.com/itoxiq/triplit/internal/schema"
)

// config collects everything New needs before the store, clock, and
// migration executor can be built.
type config struct {
	walPath         string
	schema          *schema.Schema
	migrations      []migrate.Migration
	variables       map[string]any
	clientID        string
	backupInterval  time.Duration
	backupRetention time.Duration
}

// Option configures a DB at construction time.
type Option func(*config)

// WithWAL enables write-ahead-log durability at path, replaying any
// existing log before the DB becomes usable.
func WithWAL(path string) Option {
	return func(c *config) { c.walPath = path }
}

// WithSchema seeds the DB with s at construction. Mutually exclusive
// with WithMigrations.
func WithSchema(s *schema.Schema) Option {
	return func(c *config) { c.schema = s }
}

// WithMigrations applies migrations (in order, up) at construction.
// Mutually exclusive with WithSchema.
func WithMigrations(migrations []migrate.Migration) Option {
	return func(c *config) { c.migrations = migrations }
}

// WithVariables seeds the DB's process-wide variables scope.
func WithVariables(vars map[string]any) Option {
	return func(c *config) { c.variables = vars }
}

// WithClientID fixes the logical clock's client identifier, mainly for
// deterministic tests; production callers should leave this unset and
// let New mint a fresh one.
func WithClientID(id string) Option {
	return func(c *config) { c.clientID = id }
}

// WithPeriodicBackups enables a background BackupManager that snapshots
// the DB to disk every interval, pruning backups older than retention.
func WithPeriodicBackups(interval, retention time.Duration) Option {
	return func(c *config) { c.backupInterval, c.backupRetention = interval, retention }
}

func buildConfig(opts []Option) (*config, error) {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.schema != nil && len(c.migrations) > 0 {
		return nil, fmt.Errorf("triplit: WithSchema and WithMigrations are mutually exclusive")
	}
	return c, nil
}
