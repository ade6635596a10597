// Package config resolves the CLI and cache layer's settings: where
// the architecture register profile lives, where the on-disk instruction
// cache is rooted, and whether calling-convention argument modeling is
// on (§4.3.7's assume_cc knob). Precedence is flag > env > file >
// default, the usual viper layering.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved, typed configuration for one radeco run.
type Config struct {
	// RegisterProfile is the path prefix of a FileCache whose
	// register-profile file (source.RegInfo's wire shape) supplies the
	// profile; empty means the build cache's own register profile, or
	// the built-in Z80 example profile when that cache has none.
	RegisterProfile string `mapstructure:"register_profile"`

	// CacheDir is the directory a FileCache is rooted at.
	CacheDir string `mapstructure:"cache_dir"`

	// AssumeCC turns on calling-convention argument modeling at call
	// sites (§4.3.7); off models calls as full-clobber.
	AssumeCC bool `mapstructure:"assume_cc"`

	// ReplacePC turns on constant-folding of program-counter reads: a
	// read of the PC alias materializes to addr+op.size instead of a
	// live register read.
	ReplacePC bool `mapstructure:"replace_pc"`

	// Workers is the loader pool's worker count; zero means
	// runtime.NumCPU().
	Workers int `mapstructure:"workers"`

	// Verbose turns on the loader's progress reporting.
	Verbose bool `mapstructure:"verbose"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		RegisterProfile: "",
		CacheDir:        ".radeco-cache",
		AssumeCC:        false,
		ReplacePC:       false,
		Workers:         0,
		Verbose:         false,
	}
}

// Load builds a viper instance layering, from lowest to highest
// precedence: built-in defaults, a "radeco.yaml" config file (searched
// in the current directory and $HOME), environment variables prefixed
// RADECO_, and finally any already-bound pflag flags.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("register_profile", defaults.RegisterProfile)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("assume_cc", defaults.AssumeCC)
	v.SetDefault("replace_pc", defaults.ReplacePC)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetConfigName("radeco")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("radeco")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
