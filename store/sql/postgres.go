package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	gatewaymigrations "github.com/goliatone/go-courier-gateway/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// PostgresConfig describes the production database connection. It
// satisfies the persistence client's config contract directly.
type PostgresConfig struct {
	DSN          string
	Debug        bool
	PingTimeout  time.Duration
	OtelID       string
	MaxOpenConns int
	AutoMigrate  bool
}

func (c PostgresConfig) GetDebug() bool {
	return c.Debug
}

func (c PostgresConfig) GetDriver() string {
	return "postgres"
}

func (c PostgresConfig) GetServer() string {
	return c.DSN
}

func (c PostgresConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PostgresConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelID) == "" {
		return "courier-gateway"
	}
	return c.OtelID
}

// NewPostgresClient opens the production database, registers the gateway
// schema migrations for the postgres dialect, and optionally applies them.
func NewPostgresClient(ctx context.Context, cfg PostgresConfig) (*persistence.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}

	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	_, err = gatewaymigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != gatewaymigrations.DialectPostgres {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, gatewaymigrations.WithValidationTargets(gatewaymigrations.DialectPostgres))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: register migrations: %w", err)
	}

	if cfg.AutoMigrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}

	return client, nil
}
