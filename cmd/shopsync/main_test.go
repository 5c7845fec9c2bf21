package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	shopmigrations "github.com/goliatone/go-shopsync/migrations"
)

func TestDialectFor(t *testing.T) {
	sqlDriver, _, target, err := dialectFor("postgresql")
	if err != nil || sqlDriver != "postgres" || target != shopmigrations.DialectPostgres {
		t.Fatalf("unexpected postgres mapping %q %q %v", sqlDriver, target, err)
	}
	sqlDriver, _, target, err = dialectFor("sqlite")
	if err != nil || sqlDriver != "sqlite3" || target != shopmigrations.DialectSQLite {
		t.Fatalf("unexpected sqlite mapping %q %q %v", sqlDriver, target, err)
	}
	if _, _, _, err := dialectFor("mysql"); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

func TestLoadConfigLayersFlagsOverEnvironment(t *testing.T) {
	t.Setenv("SHOPSYNC_LOG_LEVEL", "debug")
	t.Setenv("SHOPSYNC_HTTP_ADDR", ":4000")
	t.Setenv("SHOPSYNC_RECONCILE_SCHEDULE", "@every 1h")

	cfg, err := loadConfig(context.Background(), &globalFlags{addr: ":5000"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTP.Addr != ":5000" {
		t.Fatalf("expected flag to win over env, got %q", cfg.HTTP.Addr)
	}
	if cfg.LogLevel != "debug" || cfg.Reconcile.Schedule != "@every 1h" {
		t.Fatalf("expected env values, got level=%q schedule=%q", cfg.LogLevel, cfg.Reconcile.Schedule)
	}
	if cfg.Shopify.APIVersion == "" || cfg.Persistence.Driver == "" {
		t.Fatalf("expected defaults to survive, got %#v", cfg)
	}
}

func TestMigrateCommandAppliesSQLiteMigrations(t *testing.T) {
	dsn := fmt.Sprintf("file:shopsync-cli-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	out, err := execute(t, "migrate", "--driver", "sqlite", "--dsn", dsn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "migrations applied") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := execute(t, "migrate", "--driver", "memory"); err == nil {
		t.Fatalf("expected memory driver migrate to fail")
	}
}

func TestReconcileCommandRunsJobInProcess(t *testing.T) {
	out, err := execute(t, "reconcile", "--driver", "memory", "--log-level", "error")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !strings.Contains(out, `"JobID": "shopsync.reconcile.run"`) {
		t.Fatalf("expected job result in output, got %q", out)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
