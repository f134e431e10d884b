package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                int    `env:"PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL,required"`
	RedisURL            string `env:"REDIS_URL,required"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	FreeCredits         int    `env:"FREE_CREDITS" envDefault:"3"`
	SweepAfterHours     int    `env:"SWEEP_AFTER_HOURS" envDefault:"12"`
	JoinRateLimitPerMin int    `env:"JOIN_RATE_LIMIT_PER_MIN" envDefault:"20"`
	AutoMigrate         bool   `env:"AUTO_MIGRATE" envDefault:"false"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SweepAfter() time.Duration {
	return time.Duration(c.SweepAfterHours) * time.Hour
}

func (c *Config) Validate(isProduction bool) error {
	if c.FreeCredits < 0 {
		return fmt.Errorf("FREE_CREDITS must not be negative")
	}
	if c.SweepAfterHours <= 0 {
		return fmt.Errorf("SWEEP_AFTER_HOURS must be positive")
	}
	if c.JoinRateLimitPerMin <= 0 {
		return fmt.Errorf("JOIN_RATE_LIMIT_PER_MIN must be positive")
	}

	if isProduction && strings.HasPrefix(c.RedisURL, "redis://") {
		log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
	}

	return nil
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
