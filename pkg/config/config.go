// Package config loads the localizer's settings: built-in defaults, then an
// optional YAML file, then LIGHTLOC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/lightsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/sim"
)

const EnvPrefix = "LIGHTLOC"

type ScreenConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Device  string `mapstructure:"device" yaml:"device"`
}

type SoundConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type Config struct {
	LogLevel string `mapstructure:"logLevel" yaml:"logLevel"`
	// Run against the simulated robot rather than real hardware.
	Simulate         bool          `mapstructure:"simulate" yaml:"simulate"`
	OdometryInterval time.Duration `mapstructure:"odometryInterval" yaml:"odometryInterval"`
	// Heading the bot is placed at before a run; odometry starts from here.
	StartThetaDeg float64 `mapstructure:"startThetaDeg" yaml:"startThetaDeg"`

	Chassis     chassis.Chassis    `mapstructure:"chassis" yaml:"chassis"`
	Localizer   localizer.Config   `mapstructure:"localizer" yaml:"localizer"`
	LightSensor lightsensor.Config `mapstructure:"lightSensor" yaml:"lightSensor"`
	Hardware    hardware.Config    `mapstructure:"hardware" yaml:"hardware"`
	Sim         sim.Config         `mapstructure:"sim" yaml:"sim"`
	Screen      ScreenConfig       `mapstructure:"screen" yaml:"screen"`
	Sound       SoundConfig        `mapstructure:"sound" yaml:"sound"`
}

func Default() Config {
	return Config{
		LogLevel:         "info",
		OdometryInterval: 20 * time.Millisecond,
		StartThetaDeg:    45,
		Chassis:          chassis.Default(),
		Localizer:        localizer.DefaultConfig(),
		LightSensor:      lightsensor.DefaultConfig(),
		Hardware:         hardware.DefaultConfig(),
		Sim:              sim.DefaultConfig(),
		Screen: ScreenConfig{
			Enabled: true,
			Device:  "/dev/fb1",
		},
		Sound: SoundConfig{
			Enabled: true,
		},
	}
}

// Load builds the config.  path may be empty, in which case only defaults
// and the environment are used.
func Load(path string) (Config, error) {
	v := viper.New()
	if err := setDefaults(v, Default()); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Localizer.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of def as a viper default, so that
// environment overrides work for all keys, not only those in the file.
func setDefaults(v *viper.Viper, def Config) error {
	raw, err := yaml.Marshal(&def)
	if err != nil {
		return err
	}
	var tree map[interface{}]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}
	flatten("", tree, v.SetDefault)
	return nil
}

func flatten(prefix string, m map[interface{}]interface{}, set func(key string, value interface{})) {
	for k, val := range m {
		key := fmt.Sprint(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := val.(map[interface{}]interface{}); ok {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

// WriteInUse dumps the effective config so a run can be reproduced.
func WriteInUse(cfg Config, path string) error {
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0666)
}
