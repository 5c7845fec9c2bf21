package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-shopsync/core"
	shopmigrations "github.com/goliatone/go-shopsync/migrations"
)

// persistenceConfig adapts core.PersistenceConfig to the go-persistence-bun
// config contract.
type persistenceConfig struct {
	cfg    core.PersistenceConfig
	driver string
}

func (c persistenceConfig) GetDebug() bool    { return c.cfg.Debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.cfg.DSN }
func (c persistenceConfig) GetOtelIdentifier() string {
	return "shopsync"
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	if c.cfg.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.cfg.PingTimeout
}

func isMemoryDriver(driver string) bool {
	return strings.EqualFold(strings.TrimSpace(driver), "memory")
}

// dialectFor maps a configured driver to the database/sql driver name, the
// bun dialect and the migration dialect.
func dialectFor(driver string) (sqlDriver string, dialect schema.Dialect, migrationDialect string, err error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		return "postgres", pgdialect.New(), shopmigrations.DialectPostgres, nil
	case "sqlite", "sqlite3", "":
		return "sqlite3", sqlitedialect.New(), shopmigrations.DialectSQLite, nil
	default:
		return "", nil, "", fmt.Errorf("shopsync: unsupported persistence driver %q", driver)
	}
}

func openPersistence(cfg core.PersistenceConfig) (*persistence.Client, error) {
	sqlDriver, dialect, _, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("shopsync: persistence.dsn is required for driver %q", cfg.Driver)
	}
	sqlDB, err := sql.Open(sqlDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("shopsync: open %s: %w", sqlDriver, err)
	}
	if sqlDriver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{cfg: cfg, driver: sqlDriver}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("shopsync: persistence client: %w", err)
	}
	return client, nil
}

// runMigrations registers the embedded migrations for the driver's dialect
// and applies them.
func runMigrations(ctx context.Context, client *persistence.Client, driver string) error {
	_, _, target, err := dialectFor(driver)
	if err != nil {
		return err
	}
	_, err = shopmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == target {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, shopmigrations.WithValidationTargets(target))
	if err != nil {
		return err
	}
	return client.Migrate(ctx)
}
