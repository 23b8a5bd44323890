package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stage/internal/sqlite"
)

func newMigrateCmd(e *env) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Long: `Migrate applies every pending goose migration in version order, each in its
own transaction, and records it in goose_db_version.

Migrations come from the migrations directory next to config.yaml when it
exists, otherwise from the set built into the binary.`,
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := e.svc.Backend(ctx)
			if err != nil {
				return fmt.Errorf("attach backend: %w", err)
			}
			applied := backend.Applied()

			if !status {
				if e.flags.jsonMode {
					return e.printJSON(map[string]any{"applied": nonNil(applied)})
				}
				if len(applied) == 0 {
					fmt.Fprintln(e.stdout, "Nothing to migrate")
				}
				for _, name := range applied {
					fmt.Fprintln(e.stdout, "applied", name)
				}
				return nil
			}

			migrator, err := backend.Migrator()
			if err != nil {
				return err
			}
			rows, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			if e.flags.jsonMode {
				return e.printJSON(nonNil(rows))
			}
			for _, r := range rows {
				state := "pending"
				if r.Applied {
					state = "applied"
				}
				fmt.Fprintf(e.stdout, "%-8s %s\n", state, r.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether each is applied")
	return cmd
}

func newMigrationCreateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migration:create <name>",
		Short: "Create an empty migration file",
		Long: `Migration:create writes <timestamp>_<name>.sql into the migrations directory.
The first migration created also copies the built-in migrations there, so the
directory holds the complete schema history.

Example:
  stage migration:create add_tags
  stage migration:create "add record tags"`,
		Args: userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			// A rejected name must not leave a seeded directory behind.
			if _, err := sqlite.MigrationName(args[0]); err != nil {
				return err
			}
			seeded, err := sqlite.SeedMigrations(e.dirs.Migrations)
			if err != nil {
				return err
			}
			path, err := sqlite.CreateMigration(e.dirs.Migrations, args[0])
			if err != nil {
				return err
			}

			if e.flags.jsonMode {
				return e.printJSON(map[string]any{"created": path, "seeded": nonNil(seeded)})
			}
			for _, name := range seeded {
				fmt.Fprintln(e.stdout, "copied", name)
			}
			fmt.Fprintln(e.stdout, "created", path)
			return nil
		},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
