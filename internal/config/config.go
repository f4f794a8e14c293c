// Package config holds the settings of the battery id daemon.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Chip is one battery id chip served by the daemon.
type Chip struct {
	Name string
	Path string
}

type Config struct {
	Addr            string
	APIKey          string
	Verbose         bool
	Advertise       string
	ShutdownTimeout time.Duration
	Chips           []Chip
}

func Default() Config {
	return Config{
		Addr:            ":8066",
		ShutdownTimeout: 10 * time.Second,
	}
}

type fileChip struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type fileConfig struct {
	Addr            string     `toml:"addr"`
	APIKey          string     `toml:"apikey"`
	Verbose         bool       `toml:"verbose"`
	Advertise       string     `toml:"advertise"`
	ShutdownTimeout string     `toml:"shutdown_timeout"`
	Chips           []fileChip `toml:"chip"`
}

// Load overlays the keys defined in the TOML file at path onto cfg.
func Load(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	return apply(meta, raw, cfg)
}

// Parse is Load for an in-memory document.
func Parse(data string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return apply(meta, raw, cfg)
}

func apply(meta toml.MetaData, raw fileConfig, cfg Config) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}

	if meta.IsDefined("apikey") {
		cfg.APIKey = raw.APIKey
	}

	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	if meta.IsDefined("advertise") {
		cfg.Advertise = strings.TrimSpace(raw.Advertise)
	}

	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	if meta.IsDefined("chip") {
		cfg.Chips = cfg.Chips[:0:0]
		for i, m := range raw.Chips {
			path := strings.TrimSpace(m.Path)
			if path == "" {
				return Config{}, fmt.Errorf("chip %d: missing path", i)
			}
			cfg.Chips = append(cfg.Chips, Chip{
				Name: strings.TrimSpace(m.Name),
				Path: path,
			})
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks that chip names are unique and cannot shadow the index
// routes.
func (c Config) Validate() error {
	seen := make(map[string]bool)
	for i, m := range c.Chips {
		if m.Name == "" {
			continue
		}
		if strings.ContainsAny(m.Name, "/ ") || m.Name == "metrics" {
			return fmt.Errorf("chip %d: invalid name %q", i, m.Name)
		}
		if _, err := fmt.Sscanf(m.Name, "%d", new(int)); err == nil {
			return fmt.Errorf("chip %d: name %q starts with a number", i, m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("chip %d: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}
