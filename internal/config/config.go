package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                 int    `env:"PORT" envDefault:"8080"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RedisURL             string `env:"REDIS_URL,required"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	WinThreshold         int    `env:"WIN_THRESHOLD" envDefault:"95"`
	InitialPrizeCents    int64  `env:"INITIAL_PRIZE_CENTS" envDefault:"100000"`
	PrizeGrowthPercent   int    `env:"PRIZE_GROWTH_PERCENT" envDefault:"10"`
	ResponderDelayMillis int    `env:"RESPONDER_DELAY_MS" envDefault:"1500"`
	StaleAttemptMinutes  int    `env:"STALE_ATTEMPT_MINUTES" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ResponderDelay() time.Duration {
	return time.Duration(c.ResponderDelayMillis) * time.Millisecond
}

func (c *Config) StaleAttemptTTL() time.Duration {
	return time.Duration(c.StaleAttemptMinutes) * time.Minute
}

func (c *Config) Validate() error {
	if c.WinThreshold < 1 || c.WinThreshold > 100 {
		return fmt.Errorf("WIN_THRESHOLD must be in 1..100, got %d", c.WinThreshold)
	}
	if c.PrizeGrowthPercent < 0 {
		return fmt.Errorf("PRIZE_GROWTH_PERCENT must not be negative")
	}
	if c.InitialPrizeCents <= 0 {
		log.Warn().Int64("cents", c.InitialPrizeCents).Msg("INITIAL_PRIZE_CENTS is not positive: no prize will be seeded")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
