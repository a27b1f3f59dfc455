// Package config loads loadout configuration from config files,
// environment variables, and named profiles.
//
// Precedence, lowest to highest: defaults, $HOME/.loadout/config.yaml,
// ./loadout-config.yaml, LOADOUT_* environment variables, the active
// profile, command-line flags.
package config

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/planner"
)

const localConfigFile = "loadout-config.yaml"

// CatalogConfig controls where artifacts are loaded from.
type CatalogConfig struct {
	// Dirs are extra artifact directories layered over the builtin
	// catalog, in order.
	Dirs []string `mapstructure:"dirs"`
	// Exclude removes artifacts by id; globs are supported.
	Exclude []string `mapstructure:"exclude"`
}

// TargetsConfig controls which agent surfaces get installed.
type TargetsConfig struct {
	// Enabled pins the install targets. Empty means: install what
	// detection finds, falling back to claude.
	Enabled []string `mapstructure:"enabled"`
}

// HistoryConfig controls run recording.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig mirrors the telemetry setup flags.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	SamplerType  string  `mapstructure:"sampler"`
	SamplerRatio float64 `mapstructure:"ratio"`
}

// Config is the resolved loadout configuration.
type Config struct {
	// Budget is the token budget. Zero means: use BudgetPreset.
	Budget int `mapstructure:"budget"`
	// BudgetPreset names a built-in budget (core, smart, full).
	BudgetPreset string `mapstructure:"budget_preset"`
	// Mode is the planner mode (relaxed or strict).
	Mode string `mapstructure:"mode"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Catalog CatalogConfig `mapstructure:"catalog"`
	Targets TargetsConfig `mapstructure:"targets"`
	History HistoryConfig `mapstructure:"history"`
	Tracing TracingConfig `mapstructure:"tracing"`

	// Profiles are named partial configurations; the one selected by the
	// profile key is merged over the base configuration.
	Profiles map[string]map[string]any `mapstructure:"profiles"`
}

// Init wires viper to loadout's environment and config files. Call once
// at startup, before Load.
func Init() {
	viper.SetEnvPrefix("LOADOUT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.loadout")
	_ = viper.ReadInConfig()

	// Project-local settings layer over the home config.
	if _, err := os.Stat(localConfigFile); err == nil {
		viper.SetConfigFile(localConfigFile)
		_ = viper.MergeInConfig()
	}
}

func setDefaults() {
	viper.SetDefault("budget", 0)
	viper.SetDefault("budget_preset", "smart")
	viper.SetDefault("mode", string(planner.ModeRelaxed))
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("catalog.dirs", []string{})
	viper.SetDefault("catalog.exclude", []string{})
	viper.SetDefault("targets.enabled", []string{})
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.sampler", "ratio")
	viper.SetDefault("tracing.ratio", 1.0)
}

// Load unmarshals the configuration and merges the active profile over
// it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if config.Profiles != nil {
		delete(config.Profiles, "default")
	}

	profileName := getActiveProfile()
	if profileName != "" {
		profile, exists := config.Profiles[profileName]
		if !exists {
			return nil, errors.Errorf("profile %q is not defined", profileName)
		}
		if err := applyProfile(&config, profile); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

func getActiveProfile() string {
	profile := viper.GetString("profile")
	if profile == "default" {
		return ""
	}
	return profile
}

func applyProfile(config *Config, profile map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		WeaklyTypedInput: true,
		ZeroFields:       false, // Don't overwrite with zero values
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}

	if err := decoder.Decode(profile); err != nil {
		return errors.Wrap(err, "failed to apply profile configuration")
	}

	return nil
}

// ResolveBudget returns the effective token budget: an explicit numeric
// budget wins over the preset.
func (c *Config) ResolveBudget() (int, error) {
	if c.Budget > 0 {
		return c.Budget, nil
	}
	if c.Budget < 0 {
		return 0, errors.Errorf("budget must be positive, got %d", c.Budget)
	}
	preset := c.BudgetPreset
	if preset == "" {
		preset = "smart"
	}
	budget, ok := catalog.BudgetPreset(preset)
	if !ok {
		return 0, errors.Errorf("unknown budget preset %q (known: %s)",
			preset, strings.Join(catalog.BudgetPresetNames(), ", "))
	}
	return budget, nil
}

// ResolveMode returns the effective planner mode.
func (c *Config) ResolveMode() (planner.Mode, error) {
	return planner.ParseMode(c.Mode)
}
