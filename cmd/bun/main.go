package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/Black-And-White-Club/frolf-guesser/app/database"
	gamemigrations "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/frolf-guesser/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	var db *bun.DB
	migrators := make(map[string]*migrate.Migrator)

	return &cli.App{
		Name:  "bun",
		Usage: "manage the game store schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "config.yaml",
				Usage: "path to the configuration file",
			},
		},
		Before: func(c *cli.Context) error {
			// Load configuration for database connection ONLY
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err = database.Open(cfg.Database)
			if err != nil {
				return err
			}
			for name, m := range newMigrators(db) {
				migrators[name] = m
			}
			return nil
		},
		After: func(*cli.Context) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			newMultiModuleDBCommand(migrators),
		},
	}
}

func newMigrators(db *bun.DB) map[string]*migrate.Migrator {
	return map[string]*migrate.Migrator{
		"game": migrate.NewMigrator(db, gamemigrations.Migrations),
	}
}

// moduleNames returns the migrator keys in a stable order.
func moduleNames(migrators map[string]*migrate.Migrator) []string {
	names := make([]string, 0, len(migrators))
	for name := range migrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newMultiModuleDBCommand(migrators map[string]*migrate.Migrator) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					for _, moduleName := range moduleNames(migrators) {
						fmt.Fprintf(c.App.Writer, "Initializing migrations for module: %s\n", moduleName)
						if err := migrators[moduleName].Init(c.Context); err != nil {
							return fmt.Errorf("failed to initialize migrations for module %s: %w", moduleName, err)
						}
					}
					return nil
				},
			},
			{
				Name:  "migrate",
				Usage: "migrate database",
				Action: func(c *cli.Context) error {
					for _, moduleName := range moduleNames(migrators) {
						fmt.Fprintf(c.App.Writer, "Running migrations for module: %s\n", moduleName)
						group, err := migrators[moduleName].Migrate(c.Context)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Fprintf(c.App.Writer, "No new migrations to run for module: %s\n", moduleName)
						} else {
							fmt.Fprintf(c.App.Writer, "Migrated module: %s to %s\n", moduleName, group)
						}
					}
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					for _, moduleName := range moduleNames(migrators) {
						fmt.Fprintf(c.App.Writer, "Rolling back migrations for module: %s\n", moduleName)
						group, err := migrators[moduleName].Rollback(c.Context)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Fprintf(c.App.Writer, "No groups to roll back for module: %s\n", moduleName)
						} else {
							fmt.Fprintf(c.App.Writer, "Rolled back module: %s to %s\n", moduleName, group)
						}
					}
					return nil
				},
			},
			{
				Name:      "create_go",
				Usage:     "create Go migration",
				ArgsUsage: "<module> <name...>",
				Action: func(c *cli.Context) error {
					moduleName := c.Args().First()
					migrator, ok := migrators[moduleName]
					if !ok {
						return fmt.Errorf("invalid module name: %s", moduleName)
					}

					name := strings.Join(c.Args().Tail(), "_")
					mf, err := migrator.CreateGoMigration(c.Context, name)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Created migration for module %s: %s (%s)\n", moduleName, mf.Name, mf.Path)
					return nil
				},
			},
			{
				Name:      "create_sql",
				Usage:     "create up and down SQL migrations",
				ArgsUsage: "<module> <name...>",
				Action: func(c *cli.Context) error {
					moduleName := c.Args().First()
					migrator, ok := migrators[moduleName]
					if !ok {
						return fmt.Errorf("invalid module name: %s", moduleName)
					}

					name := strings.Join(c.Args().Tail(), "_")
					files, err := migrator.CreateSQLMigrations(c.Context, name)
					if err != nil {
						return err
					}
					for _, mf := range files {
						fmt.Fprintf(c.App.Writer, "Created migration for module %s: %s (%s)\n", moduleName, mf.Name, mf.Path)
					}
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					for _, moduleName := range moduleNames(migrators) {
						ms, err := migrators[moduleName].MigrationsWithStatus(c.Context)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "Migrations for module: %s\n", moduleName)
						fmt.Fprintf(c.App.Writer, "  %s\n", ms)
						fmt.Fprintf(c.App.Writer, "  Applied: %s\n", ms.Applied())
						fmt.Fprintf(c.App.Writer, "  Unapplied: %s\n", ms.Unapplied())
					}
					return nil
				},
			},
		},
	}
}
