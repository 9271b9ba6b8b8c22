// Package main provides the schema migration CLI.
//
// Usage:
//
//	migrate up
//	migrate down
//	migrate steps <n>
//	migrate force <version>
//	migrate version
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ledgerd/internal/infrastructure/config"
	"ledgerd/internal/infrastructure/migration"
	"ledgerd/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if cmd := os.Args[1]; cmd == "help" || cmd == "--help" || cmd == "-h" {
		printUsage()
		return
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	m, err := migration.New(cfg.Database.DSN())
	if err != nil {
		log.Fatalw("failed to open migrator", "error", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warnw("failed to close migrator", "error", err)
		}
	}()

	switch os.Args[1] {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "steps":
		var n int
		if n, err = intArg(); err == nil {
			err = m.Steps(ctx, n)
		}
	case "force":
		var v int
		if v, err = intArg(); err == nil {
			err = m.Force(ctx, v)
		}
	case "version":
		var (
			version uint
			dirty   bool
		)
		if version, dirty, err = m.Version(); err == nil {
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalw("migration failed", "command", os.Args[1], "error", err)
	}
}

func intArg() (int, error) {
	if len(os.Args) < 3 {
		return 0, fmt.Errorf("%s requires a numeric argument", os.Args[1])
	}
	n, err := strconv.Atoi(os.Args[2])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", os.Args[2], err)
	}
	return n, nil
}

func printUsage() {
	fmt.Println(`ledgerd schema migrations

Usage:
  migrate <command> [argument]

Commands:
  up              Apply all pending migrations
  down            Roll back every migration
  steps <n>       Apply n migrations, or roll back when n is negative
  force <version> Set the version without running migrations
  version         Print the current version
  help            Show this help

Environment Variables:
  LEDGER_DATABASE_URL   Connection string (or the LEDGER_DATABASE_* fields)`)
}
