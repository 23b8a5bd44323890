package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/stage/internal/paths"
	"github.com/mesh-intelligence/stage/pkg/types"
)

const (
	configName = "config"
	configType = "yaml"

	cfgKeyBackend   = "backend"
	cfgKeyListen    = "listen"
	cfgKeyLogLevel  = "log_level"
	cfgKeyLogFormat = "log_format"
)

// configHeader precedes the YAML written to config.yaml.
const configHeader = `# stage configuration
#
# backend:        storage backend (sqlite)
# data_dir:       directory holding stage.db; overridden by --data-dir
# migrations_dir: directory of *.sql migrations, relative to this file;
#                 the built-in set is used when omitted
# listen:         address for "stage serve"
# log_level:      debug, info, warn or error
# log_format:     text or json

`

// loadConfig reads config.yaml from configDir with Viper, creating the
// directory and a default file on first run. STAGE_LISTEN, STAGE_LOG_LEVEL
// and STAGE_LOG_FORMAT override the file.
func loadConfig(configDir string) (types.Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return types.Config{}, fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(configDir, paths.ConfigFileName)
	if err := ensureConfigFile(path); err != nil {
		return types.Config{}, err
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configDir)
	for _, key := range []string{cfgKeyListen, cfgKeyLogLevel, cfgKeyLogFormat} {
		if err := v.BindEnv(key, "STAGE_"+strings.ToUpper(key)); err != nil {
			return types.Config{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ensureConfigFile writes the default config.yaml unless path exists.
func ensureConfigFile(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return writeConfigFile(path, types.Config{Backend: types.BackendSQLite})
}

// writeConfigFile encodes cfg as YAML under configHeader.
func writeConfigFile(path string, cfg types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	content := append([]byte(configHeader), data...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
