package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stage/pkg/stage"
)

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stage version",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.flags.jsonMode {
				return e.printJSON(map[string]string{"version": stage.Version})
			}
			_, err := fmt.Fprintln(e.stdout, "stage", stage.Version)
			return err
		},
	}
}
