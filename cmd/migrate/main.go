// Command migrate applies the event store schema. It reads the database
// settings from the same WEBHOOK_DATABASE_* environment as the gateway.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/infrastructure/migration"
)

const usage = `Usage: migrate [-path dir] [-log-level level] <command> [arg]

Commands:
  up               apply every pending migration
  down             roll every migration back
  step <n>         apply n migrations, negative n rolls back
  version          print the applied version
  force <version>  mark version as applied without running it
  list             list the available migrations (no database needed)
`

var errUsage = errors.New("invalid arguments")

// command runs against an open migrator. arg is the optional argument
// after the command name.
type command struct {
	needsArg bool
	run      func(m *migration.Migrator, log *zap.Logger, arg string) error
}

var commands = map[string]command{
	"up":   {run: func(m *migration.Migrator, _ *zap.Logger, _ string) error { return m.Up() }},
	"down": {run: func(m *migration.Migrator, _ *zap.Logger, _ string) error { return m.Down() }},
	"step": {needsArg: true, run: func(m *migration.Migrator, _ *zap.Logger, arg string) error {
		n, err := strconv.Atoi(arg)
		if err != nil || n == 0 {
			return fmt.Errorf("%w: step count %q", errUsage, arg)
		}
		return m.Steps(n)
	}},
	"force": {needsArg: true, run: func(m *migration.Migrator, _ *zap.Logger, arg string) error {
		v, err := strconv.Atoi(arg)
		if err != nil || v < -1 {
			return fmt.Errorf("%w: version %q", errUsage, arg)
		}
		return m.Force(v)
	}},
	"version": {run: func(m *migration.Migrator, log *zap.Logger, _ string) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	}},
}

func main() {
	path := flag.String("path", "", "Migrations directory (default: the embedded migrations)")
	level := flag.String("log-level", "info", "Log level")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
	}
	flag.Parse()

	log, err := logger.New(&logger.Config{Level: *level, Format: "console", Output: "stderr", TimeFormat: time.TimeOnly})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = run(flag.Args(), *path, log)
	_ = logger.Sync(log)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
		os.Exit(2)
	case err != nil:
		log.Error("Migration failed", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

func run(args []string, path string, log *zap.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", errUsage)
	}
	name, arg := args[0], ""
	if len(args) > 1 {
		arg = args[1]
	}

	if name == "list" {
		return list(path)
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if cmd.needsArg && arg == "" {
		return fmt.Errorf("%w: %s needs an argument", errUsage, name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("reach %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}

	m, err := migration.New(db, path, log)
	if err != nil {
		return err
	}
	defer m.Close()

	source := "embedded"
	if path != "" {
		source = path
	}
	log.Info("Running migration", zap.String("command", name), zap.String("source", source))
	return cmd.run(m, log, arg)
}

func list(path string) error {
	names, err := migration.ListMigrations(migration.Source(path))
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
