// Command migrate applies the SQL migrations under migrations/ with
// golang-migrate. Usage:
//
//	migrate -database postgres://... up
//	migrate -database postgres://... down 1
//	migrate -database postgres://... version
//	migrate -database postgres://... force 3
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	databaseURL := flag.String("database", os.Getenv("DATABASE_URL"), "postgres connection URL")
	sourceDir := flag.String("source", "migrations", "migrations directory")
	flag.Parse()

	if err := run(*databaseURL, *sourceDir, flag.Args()); err != nil && err != migrate.ErrNoChange {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(databaseURL, sourceDir string, args []string) error {
	if databaseURL == "" {
		return fmt.Errorf("no database URL: set -database or DATABASE_URL")
	}
	if len(args) == 0 {
		return fmt.Errorf("no command: want up, down, version or force")
	}

	m, err := migrate.New("file://"+sourceDir, databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("down: invalid step count %q", args[1])
			}
		}
		return m.Steps(-steps)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %v)\n", version, dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force: version argument required")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("force: invalid version %q", args[1])
		}
		return m.Force(version)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
