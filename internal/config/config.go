// Package config provides configuration loading for reviewd.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/veridocs/reviewd/internal/cache"
	"github.com/veridocs/reviewd/internal/classify"
	"github.com/veridocs/reviewd/internal/convert"
	"github.com/veridocs/reviewd/internal/extractor"
	"github.com/veridocs/reviewd/internal/intake"
	"github.com/veridocs/reviewd/internal/llm"
	"github.com/veridocs/reviewd/internal/logging"
	"github.com/veridocs/reviewd/internal/store"
	"github.com/veridocs/reviewd/internal/telemetry"
	"github.com/veridocs/reviewd/internal/validation"
)

const maxConfigFileSize = 1024 * 1024

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	// Addr is the API listen address.
	Addr string `koanf:"addr"`

	// MetricsAddr is the Prometheus listener address.
	MetricsAddr string `koanf:"metrics_addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Config is the full daemon configuration.
type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Logging    logging.Config    `koanf:"logging"`
	Store      store.Config      `koanf:"store"`
	Intake     intake.Config     `koanf:"intake"`
	Convert    convert.Config    `koanf:"convert"`
	Cache      cache.Config      `koanf:"cache"`
	LLM        llm.Config        `koanf:"llm"`
	Extractor  extractor.Config  `koanf:"extractor"`
	Validation validation.Config `koanf:"validation"`
	Telemetry  telemetry.Config  `koanf:"telemetry"`

	// Classify replaces the default filename rules when set.
	Classify []classify.Rule `koanf:"classify"`
}

// Load reads configuration from the YAML file at configPath (skipped
// when empty or absent), then overrides with REVIEWD_ environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (REVIEWD_SERVER_ADDR, REVIEWD_LLM_API_KEY, ...)
//  2. YAML config file
//  3. Defaults
//
// Environment variables split on the first underscore after the prefix
// into section and field:
//
//	REVIEWD_SERVER_ADDR -> server.addr
//	REVIEWD_LLM_API_KEY -> llm.api_key
//	REVIEWD_STORE_ROOT  -> store.root
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("REVIEWD_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "REVIEWD_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// applyDefaults sets default values for missing configuration fields.
// Defaults the package constructors already backfill (cache, extractor,
// validation, convert, intake timing) are left to them.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9091"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Store.Root == "" {
		cfg.Store.Root = store.DefaultConfig().Root
	}
	if cfg.Intake.Dir == "" {
		cfg.Intake.Dir = intake.DefaultConfig().Dir
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}

	telDef := telemetry.DefaultConfig()
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = telDef.ServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = telDef.ServiceVersion
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = telDef.SamplingRate
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = telDef.ShutdownTimeout
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == c.Server.MetricsAddr {
		return errors.New("server addr and metrics addr must differ")
	}

	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return err
	}

	return nil
}
