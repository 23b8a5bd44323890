package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stage/internal/app"
	"github.com/mesh-intelligence/stage/internal/paths"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// globalFlags holds the persistent flag values.
type globalFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

// env is the state shared by every subcommand of one invocation.
type env struct {
	flags  globalFlags
	stdout io.Writer
	stderr io.Writer

	dirs   paths.Dirs
	config types.Config
	svc    *app.Container
}

func newEnv(stdout, stderr io.Writer) *env {
	return &env{stdout: stdout, stderr: stderr}
}

// rootCmd creates the top-level "stage" command with global flags and all
// subcommands registered.
func (e *env) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stage",
		Short: "Stage, reconcile and serve change-tracked records",
		Long: `Stage keeps records in SQLite and edits them through change-tracked
collections: additions and removals are staged against a loaded baseline and
written back in a single reconciliation pass.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: e.setup,
	}
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error { return userErr(err) })

	pf := root.PersistentFlags()
	pf.StringVar(&e.flags.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/stage)")
	pf.StringVar(&e.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.stage-data)")
	pf.BoolVar(&e.flags.jsonMode, "json", false, "output as JSON")
	pf.BoolVarP(&e.flags.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newVersionCmd(e),
		newInitCmd(e),
		newMigrateCmd(e),
		newMigrationCreateCmd(e),
		newRecordCmd(e),
		newServeCmd(e),
	)
	return root
}

// setup resolves directories, loads config.yaml and builds the service
// container.
func (e *env) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	configDir, err := paths.ResolveConfigDir(e.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	dirs, err := paths.Resolve(paths.Overrides{
		ConfigDir:     configDir,
		DataDir:       e.flags.dataDir,
		ConfigDataDir: cfg.DataDir,
		MigrationsDir: cfg.MigrationsDir,
	})
	if err != nil {
		return fmt.Errorf("resolve directories: %w", err)
	}

	cfg.DataDir = dirs.Data
	// A migrations directory replaces the built-in set once it exists.
	if cfg.MigrationsDir != "" || paths.Exists(dirs.Migrations) {
		cfg.MigrationsDir = dirs.Migrations
	}
	if e.flags.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return userErr(fmt.Errorf("%s: %w", dirs.ConfigFile(), err))
	}

	e.dirs = dirs
	e.config = cfg
	e.svc = app.New(cfg, e.stderr)
	return nil
}

// close releases the services built by setup. It is safe to call more than
// once.
func (e *env) close() error {
	if e.svc == nil {
		return nil
	}
	return e.svc.Close()
}

// printJSON writes v as indented JSON to stdout.
func (e *env) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(e.stdout, string(data))
	return err
}

// userArgs wraps a cobra positional-args validator so that its failures exit
// with exitUserError.
func userArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return userErr(fn(cmd, args))
	}
}
