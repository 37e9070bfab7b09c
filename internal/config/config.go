// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads Taskboard configuration from files, the environment
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeyAnnotation marks a cobra flag with the config key it overrides.
const flagKeyAnnotation = "taskboard_config_key"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level configuration document (taskboard.yaml).
type Config struct {
	Database Database `mapstructure:"database" yaml:"database"`
	Log      Log      `mapstructure:"log" yaml:"log"`
}

// Log configures the process logger.
type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Defaults returns the default values for every recognized key.
func Defaults() map[string]any {
	return map[string]any{
		"database.backend":         "",
		"database.driver":          DriverPostgres,
		"database.path":            DefaultPath,
		"database.host":            "",
		"database.port":            0,
		"database.name":            "",
		"database.user":            "",
		"database.password":        "",
		"database.ssl":             false,
		"database.ssl_insecure":    false,
		"database.dsn":             "",
		"database.pool.min":        DefaultPoolMin,
		"database.pool.max":        DefaultPoolMax,
		"database.acquire_timeout": DefaultAcquireTimeout,
		"database.acquire_retries": DefaultAcquireRetries,
		"database.acquire_backoff": DefaultAcquireBackoff,
		"log.level":                "info",
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Taskboard")
		default: // Linux, macOS, etc.
			configDir = "/etc/taskboard"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "taskboard")
	}

	return filepath.Join(configDir, "taskboard.yaml"), nil
}

// BindFlag records that flag name on cmd overrides the config key. Load
// picks these bindings up when it reads the command's flags.
func BindFlag(cmd *cobra.Command, name, key string) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if f == nil {
		return
	}
	if f.Annotations == nil {
		f.Annotations = map[string][]string{}
	}
	f.Annotations[flagKeyAnnotation] = []string{key}
}

// Load builds a T from defaults, the first taskboard.yaml found (or the file
// at configFile), TASKBOARD_* environment variables and the flags of cmd, in
// increasing order of precedence.
func Load[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("taskboard")
	v.SetConfigType("yaml")

	// An explicit --config path takes precedence over the search paths.
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}

	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(false)
	v.SetEnvPrefix("taskboard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		var bindErr error
		visit := func(f *pflag.Flag) {
			keys := f.Annotations[flagKeyAnnotation]
			if len(keys) == 0 || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(keys[0], f)
		}
		cmd.Flags().VisitAll(visit)
		cmd.InheritedFlags().VisitAll(visit)
		if bindErr != nil {
			return c, bindErr
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// WriteConfigFile writes c as YAML to the user (or system) config path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600: the file may carry a database password.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
