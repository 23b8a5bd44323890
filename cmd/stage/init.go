package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(e *env) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and storage",
		Long: `Init creates the configuration directory with a default config.yaml,
then creates the database and applies every migration.

With --force, config.yaml is rewritten with the resolved settings, pinning
the current data directory.`,
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if force {
				if err := writeConfigFile(e.dirs.ConfigFile(), e.config); err != nil {
					return err
				}
			}

			backend, err := e.svc.Backend(cmd.Context())
			if err != nil {
				return fmt.Errorf("attach backend: %w", err)
			}
			applied := backend.Applied()

			if e.flags.jsonMode {
				return e.printJSON(map[string]any{
					"config":     e.dirs.ConfigFile(),
					"data":       e.dirs.Data,
					"migrations": applied,
				})
			}
			fmt.Fprintln(e.stdout, "Stage initialized")
			fmt.Fprintln(e.stdout, "  config:", e.dirs.ConfigFile())
			fmt.Fprintln(e.stdout, "  data:  ", e.dirs.Data)
			if len(applied) > 0 {
				fmt.Fprintf(e.stdout, "  applied %d migration(s)\n", len(applied))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rewrite config.yaml with the resolved settings")
	return cmd
}
