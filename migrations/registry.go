// Package migrations hands the embedded shopsync schema to a persistence
// client, one filesystem per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	shopsync "github.com/goliatone/go-shopsync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-shopsync"

	rootDir = "data/sql/migrations"
)

// dialectDirs lists each dialect's directory below rootDir, in registration
// order. Postgres files sit at the root.
var dialectDirs = []struct {
	dialect string
	dir     string
}{
	{DialectPostgres, "."},
	{DialectSQLite, "sqlite"},
}

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect's migration tree, typically forwarding
// it to persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// Filesystems resolves the per-dialect trees from source, or from the
// embedded migrations when source is nil. Every *.up.sql must have a
// matching *.down.sql.
func Filesystems(source fs.FS) ([]FilesystemSpec, error) {
	if source == nil {
		source = shopsync.GetMigrationsFS()
	}
	base, err := fs.Sub(source, rootDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootDir, err)
	}

	out := make([]FilesystemSpec, 0, len(dialectDirs))
	for _, entry := range dialectDirs {
		fsys := base
		if entry.dir != "." {
			if fsys, err = fs.Sub(base, entry.dir); err != nil {
				return nil, fmt.Errorf("migrations: resolve %s tree: %w", entry.dialect, err)
			}
		}
		tree := FilesystemSpec{Dialect: entry.dialect, Path: path.Join(rootDir, entry.dir), FS: fsys}
		if err := checkPairs(tree); err != nil {
			return nil, err
		}
		out = append(out, tree)
	}
	return out, nil
}

func checkPairs(tree FilesystemSpec) error {
	ups, err := fs.Glob(tree.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s: %w", tree.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s tree %q has no *.up.sql files", tree.Dialect, tree.Path)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(tree.FS, down); err != nil {
			return fmt.Errorf("migrations: %s/%s has no down migration", tree.Path, up)
		}
	}
	return nil
}

// Register calls registerFn once per targeted dialect. Targets default to
// both dialects.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       DefaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems(nil)
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	targets := make(map[string]bool, len(reg.ValidationTargets))
	for _, target := range reg.ValidationTargets {
		targets[target] = true
	}
	for _, tree := range filesystems {
		if !targets[tree.Dialect] {
			continue
		}
		if err := registerFn(ctx, tree.Dialect, reg.SourceLabel, tree.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", tree.Dialect, err)
		}
	}
	return reg, nil
}

func normalizeDialects(values []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
