// Package migration applies the versioned event store schema with
// golang-migrate. The SQL files are embedded so a binary migrates without
// a checkout.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

// EmbeddedFS returns the migrations compiled into the binary.
func EmbeddedFS() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source returns the migrations under dir, or the embedded ones when dir
// is empty.
func Source(dir string) fs.FS {
	if dir == "" {
		return EmbeddedFS()
	}
	return os.DirFS(dir)
}

// Migrator moves the schema between versions.
type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// New opens a migrator on db reading migrations from dir (see Source).
func New(db *sql.DB, dir string, log *zap.Logger) (*Migrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	src, err := iofs.New(Source(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("migration: open source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "webhook_schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("migration: postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// apply runs step and logs the resulting version. Having nothing to do is
// not an error.
func (mg *Migrator) apply(op string, step func() error) error {
	err := step()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mg.log.Info("Schema already current", zap.String("op", op))
		return nil
	case err != nil:
		return fmt.Errorf("migration %s: %w", op, err)
	}
	v, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	mg.log.Info("Schema migrated", zap.String("op", op), zap.Uint("version", v), zap.Bool("dirty", dirty))
	return nil
}

// Up applies every pending migration.
func (mg *Migrator) Up() error { return mg.apply("up", mg.m.Up) }

// Down rolls every migration back.
func (mg *Migrator) Down() error { return mg.apply("down", mg.m.Down) }

// Steps applies n migrations, rolling back when n is negative.
func (mg *Migrator) Steps(n int) error {
	return mg.apply(fmt.Sprintf("step %+d", n), func() error { return mg.m.Steps(n) })
}

// Version returns the applied version, zero before the first migration.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration: version: %w", err)
	}
	return v, dirty, nil
}

// Force marks version as applied without running it, clearing the dirty
// flag left by a failed migration.
func (mg *Migrator) Force(version int) error {
	mg.log.Warn("Forcing schema version", zap.Int("version", version))
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("migration: force %d: %w", version, err)
	}
	return nil
}

// Close releases the source and the database driver.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// ListMigrations returns the up migration names in fsys, oldest first.
func ListMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migration: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if base, ok := strings.CutSuffix(e.Name(), ".up.sql"); ok && !e.IsDir() {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}
