package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// HubConfig is the environment-provided configuration of the splatnet-hub binary. Flags given
// on the command line take precedence.
type HubConfig struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	Port           int      `env:"SPLATNET_PORT" envDefault:"7777"`
	ListenEndpoint string   `env:"SPLATNET_WS_ENDPOINT" envDefault:"/ws"`
	AllowedOrigins []string `env:"SPLATNET_ALLOWED_ORIGINS" envSeparator:","`
	DeniedOrigins  []string `env:"SPLATNET_DENIED_ORIGINS" envSeparator:","`

	HostPlays            bool          `env:"SPLATNET_HOST_PLAYS" envDefault:"false"`
	TickRate             int           `env:"SPLATNET_TICK_RATE" envDefault:"60"`
	SessionTableInterval time.Duration `env:"SPLATNET_SESSION_TABLE_INTERVAL" envDefault:"500ms"`
	IdleTimeout          time.Duration `env:"SPLATNET_IDLE_TIMEOUT" envDefault:"0s"`
	InterpolationRate    float64       `env:"SPLATNET_INTERPOLATION_RATE" envDefault:"10"`

	LogLevel string `env:"SPLATNET_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"SPLATNET_LOG_FILE"`
}

func (c HubConfig) IsProduction() bool {
	return c.AppEnv == "production"
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv copies variables from .env files into the process environment. Variables that are
// already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func LoadHubConfig(dotEnvPaths ...string) (HubConfig, error) {
	var cfg HubConfig
	if err := LoadDotEnv(dotEnvPaths...); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.TickRate <= 0 {
		return cfg, fmt.Errorf("tick rate must be positive, got %d", cfg.TickRate)
	}
	return cfg, nil
}
