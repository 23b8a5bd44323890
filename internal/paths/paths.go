// Package paths resolves where stage keeps its configuration, database and
// migration files.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// Directory and file names.
const (
	AppName            = "stage"
	DefaultDataDirName = ".stage-data"
	MigrationsDirName  = "migrations"
	ConfigFileName     = "config.yaml"
)

// Environment variables that override directory defaults.
const (
	EnvConfigDir = "STAGE_CONFIG_DIR"
	EnvDataDir   = "STAGE_DATA_DIR"
)

// platform holds OS lookups so tests can replace them.
var platform = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// Overrides carries the user-supplied locations, any of which may be empty.
type Overrides struct {
	ConfigDir     string // --config-dir flag
	DataDir       string // --data-dir flag
	ConfigDataDir string // data_dir from config.yaml
	MigrationsDir string // migrations_dir from config.yaml
}

// Dirs is a fully resolved, absolute set of locations.
type Dirs struct {
	Config     string
	Data       string
	Migrations string
}

// ConfigFile returns the path of config.yaml.
func (d Dirs) ConfigFile() string {
	return filepath.Join(d.Config, ConfigFileName)
}

// DefaultConfigDir returns the per-user configuration directory:
// $XDG_CONFIG_HOME/stage or ~/.config/stage on Linux, and the directory from
// os.UserConfigDir elsewhere.
func DefaultConfigDir() (string, error) {
	if platform.goos == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platform.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", AppName), nil
	}
	dir, err := platform.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveConfigDir applies flag > STAGE_CONFIG_DIR > DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if v := firstNonEmpty(flag, os.Getenv(EnvConfigDir)); v != "" {
		return filepath.Abs(v)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies flag > config.yaml > STAGE_DATA_DIR > ./.stage-data.
// The data directory defaults to the working directory so that each project
// keeps its own database.
func ResolveDataDir(flag, configValue string) (string, error) {
	if v := firstNonEmpty(flag, configValue, os.Getenv(EnvDataDir)); v != "" {
		return filepath.Abs(v)
	}
	cwd, err := platform.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// Resolve returns every location. Migrations default to a directory next to
// config.yaml; the caller decides whether a missing one means "use the
// embedded set".
func Resolve(o Overrides) (Dirs, error) {
	configDir, err := ResolveConfigDir(o.ConfigDir)
	if err != nil {
		return Dirs{}, err
	}
	dataDir, err := ResolveDataDir(o.DataDir, o.ConfigDataDir)
	if err != nil {
		return Dirs{}, err
	}
	migrations := filepath.Join(configDir, MigrationsDirName)
	if o.MigrationsDir != "" {
		if filepath.IsAbs(o.MigrationsDir) {
			migrations = filepath.Clean(o.MigrationsDir)
		} else {
			// Relative to the configuration directory, like the file that names it.
			migrations = filepath.Join(configDir, o.MigrationsDir)
		}
	}
	return Dirs{Config: configDir, Data: dataDir, Migrations: migrations}, nil
}

// Exists reports whether path names an existing directory.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
