// Package config loads the settings that parameterize a machine.VM from the
// environment and an optional YAML profile, the way internal/maincmd's
// flag-tag Cmd struct parameterizes the CLI itself (§6, ambient config
// wiring).
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/mna/sarrazin/lang/machine"
	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs a host embedding sarrazin may want to set
// without recompiling: machine.Options plus the handful of settings that
// only make sense at the process level (trace output).
type Config struct {
	GCInterval     int64 `env:"GC_INTERVAL" yaml:"gc_interval"`
	MaxStack       int   `env:"MAX_STACK" yaml:"max_stack"`
	RecursionGuard int   `env:"RECURSION_GUARD" yaml:"recursion_guard"`
	KeyedHash      bool  `env:"KEYED_HASH" yaml:"keyed_hash"`

	// Trace mirrors the CLI's --trace flag (a fiber-state dump to stderr
	// after each instruction of `run`, §4.6 "step"). The `run` command takes
	// tracing from its --trace flag; nothing in this module reads this field.
	Trace bool `env:"TRACE" yaml:"trace"`
}

// Default returns the package's baked-in defaults (§6). GCInterval and
// MaxStack are the values machine.Options' zero values select; the
// RecursionGuard of 200 differs from a zero machine.Options.RecursionGuard,
// which disables the guard.
func Default() Config {
	return Config{
		GCInterval:     1 << 20,
		MaxStack:       1 << 16,
		RecursionGuard: 200,
		KeyedHash:      false,
	}
}

// Load builds a Config starting from Default, overlaying a YAML profile
// file (if profilePath is non-empty and exists) and finally environment
// variables prefixed with envPrefix (matching the teacher's
// mainer.Parser{EnvPrefix: binName + "_"} convention in
// internal/maincmd/maincmd.go).
func Load(profilePath, envPrefix string) (Config, error) {
	cfg := Default()

	if profilePath != "" {
		b, err := os.ReadFile(profilePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing profile %s: %w", profilePath, err)
			}
		case os.IsNotExist(err):
			// no profile file is not an error: env vars and defaults still apply
		default:
			return Config{}, fmt.Errorf("reading profile %s: %w", profilePath, err)
		}
	}

	opts := env.Options{Prefix: envPrefix}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Options projects Config's VM-relevant fields into a machine.Options,
// leaving out the CLI-only Trace knob (§6 "Options configures a VM at
// construction").
func (c Config) Options() machine.Options {
	return machine.Options{
		GCInterval:     c.GCInterval,
		MaxStack:       c.MaxStack,
		RecursionGuard: c.RecursionGuard,
		KeyedHash:      c.KeyedHash,
	}
}
