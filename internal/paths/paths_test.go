package paths

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withPlatform swaps the platform lookups for the duration of a test.
func withPlatform(t *testing.T, goos string, home, userConfig, cwd string) {
	t.Helper()
	saved := platform
	t.Cleanup(func() { platform = saved })

	platform.goos = goos
	platform.homeDir = func() (string, error) { return home, nil }
	platform.userConfigDir = func() (string, error) { return userConfig, nil }
	platform.getwd = func() (string, error) { return cwd, nil }
}

func TestDefaultConfigDir(t *testing.T) {
	t.Run("linux uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		withPlatform(t, "linux", "/home/u", "/unused", "/work")
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-config/stage", got)
	})

	t.Run("linux falls back to ~/.config", func(t *testing.T) {
		withPlatform(t, "linux", "/home/u", "/unused", "/work")
		t.Setenv("XDG_CONFIG_HOME", "")
		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/home/u", ".config", "stage"), got)
	})

	t.Run("other platforms use the user config dir", func(t *testing.T) {
		withPlatform(t, "darwin", "/Users/u", "/Users/u/Library/Application Support", "/work")
		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/Users/u/Library/Application Support", "stage"), got)
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		withPlatform(t, "linux", "", "", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		platform.homeDir = func() (string, error) { return "", errors.New("no home") }
		_, err := DefaultConfigDir()
		assert.Error(t, err)
	})
}

func TestResolveConfigDir(t *testing.T) {
	tests := []struct {
		name   string
		flag   string
		envVal string
		want   string
	}{
		{name: "flag wins over env", flag: "/explicit/config", envVal: "/env/config", want: "/explicit/config"},
		{name: "env wins when flag empty", envVal: "/env/config", want: "/env/config"},
		{name: "platform default when both empty", want: "/home/u/.config/stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPlatform(t, "linux", "/home/u", "", "/work")
			t.Setenv("XDG_CONFIG_HOME", "")
			t.Setenv(EnvConfigDir, tt.envVal)
			got, err := ResolveConfigDir(tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	tests := []struct {
		name        string
		flag        string
		configValue string
		envVal      string
		want        string
	}{
		{name: "flag wins over all", flag: "/flag/data", configValue: "/config/data", envVal: "/env/data", want: "/flag/data"},
		{name: "config.yaml wins over env", configValue: "/config/data", envVal: "/env/data", want: "/config/data"},
		{name: "env wins when flag and config empty", envVal: "/env/data", want: "/env/data"},
		{name: "working directory default", want: filepath.Join("/work", DefaultDataDirName)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPlatform(t, "linux", "/home/u", "", "/work")
			t.Setenv(EnvDataDir, tt.envVal)
			got, err := ResolveDataDir(tt.flag, tt.configValue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RelativePathsBecomeAbsolute(t *testing.T) {
	t.Setenv(EnvConfigDir, "")
	t.Setenv(EnvDataDir, "")

	dirs, err := Resolve(Overrides{ConfigDir: "relative/config", DataDir: "relative/data"})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dirs.Config), "config %s", dirs.Config)
	assert.True(t, filepath.IsAbs(dirs.Data), "data %s", dirs.Data)
	assert.Equal(t, filepath.Join(dirs.Config, MigrationsDirName), dirs.Migrations)
	assert.Equal(t, filepath.Join(dirs.Config, ConfigFileName), dirs.ConfigFile())
}

func TestResolve_MigrationsDir(t *testing.T) {
	t.Setenv(EnvDataDir, "")

	dirs, err := Resolve(Overrides{ConfigDir: "/cfg", MigrationsDir: "db/migrations"})
	require.NoError(t, err)
	assert.Equal(t, "/cfg/db/migrations", dirs.Migrations)

	dirs, err = Resolve(Overrides{ConfigDir: "/cfg", MigrationsDir: "/srv/migrations/"})
	require.NoError(t, err)
	assert.Equal(t, "/srv/migrations", dirs.Migrations)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.True(t, Exists(dir))
	assert.False(t, Exists(file))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
}
