// Package config loads application configuration from environment variables.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Leaving REDIS_ADDR empty
// selects the in-memory store, which is the dev and test default.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	IncrementPercent    float64       `env:"INCREMENT_PERCENT" envDefault:"10"`
	CompensationPercent float64       `env:"COMPENSATION_PERCENT" envDefault:"25"`
	MaxRoundsPerUser    int           `env:"MAX_ROUNDS_PER_USER" envDefault:"3"`
	DefaultSessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	err := env.Parse(&cfg)
	return cfg, err
}
