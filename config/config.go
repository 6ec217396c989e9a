// Package config holds the tuning knobs for a fuzzylog coordinator and
// loads them from TOML, the way go-ethereum's node and eth packages decode
// their config files.
package config

import (
	"io"
	"os"
	"time"

	"github.com/naoina/toml"
)

// Config collects every tunable of the coordinator. All fields are
// optional; zero values are replaced by WithDefaults.
type Config struct {
	// BufferCacheCap bounds the free-list of reusable read buffers.
	BufferCacheCap int `toml:",omitempty"`

	// ReadTimeout bounds how long a single downward read is allowed to
	// stay outstanding before the coordinator logs it as stuck. It does
	// not retry or cancel the read; the store owns retry policy.
	ReadTimeout time.Duration `toml:",omitempty"`

	// PrefetchWindow is the least number of entries past the last
	// delivered index that a snapshot's prefetch asks for, and the most
	// reads one prefetch call issues. Reads issued afterwards to close the
	// gap to a newly learned horizon are not bounded by it.
	PrefetchWindow int `toml:",omitempty"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `toml:",omitempty"`
}

// Defaults returns the configuration a coordinator runs with when no file
// is supplied.
func Defaults() Config {
	return Config{
		BufferCacheCap: 100,
		ReadTimeout:    30 * time.Second,
		PrefetchWindow: 16,
		LogLevel:       "info",
	}
}

// WithDefaults fills every zero-valued field from Defaults.
func (c Config) WithDefaults() Config {
	d := Defaults()
	if c.BufferCacheCap == 0 {
		c.BufferCacheCap = d.BufferCacheCap
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PrefetchWindow == 0 {
		c.PrefetchWindow = d.PrefetchWindow
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// Load reads and decodes a TOML config file from path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and decodes TOML config from r.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	if err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg.WithDefaults(), nil
}
