package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const usage = `usage: migrate [-database URL] [-path DIR] COMMAND

Commands:
  up             apply all pending migrations
  down           roll back all migrations
  version        print the current schema version
  force VERSION  set the schema version without running migrations

The database URL comes from -database or the DATABASE_URL environment
variable.`

func main() {
	databaseURL := flag.String("database", "", "PostgreSQL connection URL")
	migrationsPath := flag.String("path", "migrations", "directory holding the migration files")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
	}
	flag.Parse()

	if *databaseURL == "" {
		*databaseURL = os.Getenv("DATABASE_URL")
	}
	if *databaseURL == "" {
		log.Fatal("no database URL: pass -database or set DATABASE_URL")
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := migrate.New("file://"+*migrationsPath, *databaseURL)
	if err != nil {
		log.Fatalf("opening migrations from %s: %v", *migrationsPath, err)
	}
	defer m.Close()

	if err := run(m, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(m *migrate.Migrate, args []string) error {
	switch cmd := args[0]; cmd {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Println("schema already up to date")
				return nil
			}
			return fmt.Errorf("migrating up: %w", err)
		}
		log.Println("schema migrated")
		return nil

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rolling back: %w", err)
		}
		log.Println("schema rolled back")
		return nil

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("reading version: %w", err)
		}
		log.Printf("schema version %d (dirty: %v)", version, dirty)
		return nil

	case "force":
		if len(args) < 2 {
			return errors.New("force needs a version: migrate force VERSION")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad version %q: %w", args[1], err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("forcing version: %w", err)
		}
		log.Printf("schema version forced to %d", version)
		return nil

	default:
		return fmt.Errorf("unknown command %q (up, down, version, force)", cmd)
	}
}
