package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
)

// loadSettings layers the built-in defaults, the configuration file at path
// (if present) and OVERBOT_* environment variables. A non-empty mode
// overrides run_mode.
func loadSettings(path, mode string) (config.Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(config.DefaultYAML())); err != nil {
		return config.Settings{}, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return config.Settings{}, fmt.Errorf("read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return config.Settings{}, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("OVERBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if mode != "" {
		v.Set("run_mode", mode)
	}

	settings, err := config.ParseSettings(config.New(v.AllSettings()))
	if err != nil {
		return config.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}
