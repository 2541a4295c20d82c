package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gridtwin/gridtwin/core/metrics"
	"github.com/gridtwin/gridtwin/core/session"
)

// Config is the root service configuration.
type Config struct {
	Session SessionConfig  `json:"session"`
	Metrics metrics.Config `json:"metrics"`
	Logging LoggingConfig  `json:"logging"`
	API     APIConfig      `json:"api"`
}

// SessionConfig carries the default settings applied to new sessions and
// selects the environment construction strategy.
type SessionConfig struct {
	Defaults session.Settings `json:"defaults"`
	// Factory is "strict" (construction failures surface to the caller) or
	// "degraded" (fall back to an empty environment on failure).
	Factory string `json:"factory"`
}

// SetDefaults applies sane defaults.
func (c *SessionConfig) SetDefaults() {
	if c.Defaults.DataPath == "" {
		c.Defaults.DataPath = "trainingdata.csv"
	}
	if c.Defaults.InvestmentFreq == 0 {
		c.Defaults.InvestmentFreq = 12
	}
	if c.Factory == "" {
		c.Factory = "strict"
	}
}

// Validate checks the factory mode.
func (c SessionConfig) Validate() error {
	if c.Factory != "strict" && c.Factory != "degraded" {
		return fmt.Errorf("unknown session factory %s", c.Factory)
	}
	return nil
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Load reads the configuration file (yaml or json by extension) and applies
// GT_ environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("GT_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "gt_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Session.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
