// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/glicko"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat is console or json.
	LogFormat string `koanf:"log_format" validate:"oneof=console json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// WorkerCount sets the number of scrape workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// DedupeSize bounds the judgment submission id cache; 0 disables the bound.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=0"`

	// RecomputeParallelism bounds how many bands a full recompute runs at once.
	RecomputeParallelism int `koanf:"recompute_parallelism" validate:"gte=1"`

	// RecomputeOnStart replays every band once at startup.
	RecomputeOnStart bool `koanf:"recompute_on_start"`

	Store   StoreConfig   `koanf:"store"`
	Queue   QueueConfig   `koanf:"queue"`
	Scraper ScraperConfig `koanf:"scraper"`
	Bands   BandsConfig   `koanf:"bands"`
	Rating  RatingConfig  `koanf:"rating"`
}

// StoreConfig selects the listing store backend.
type StoreConfig struct {
	Driver         string `koanf:"driver" validate:"oneof=memory postgres"`
	DSN            string `koanf:"dsn" validate:"required_if=Driver postgres"`
	MaxOpenConns   int    `koanf:"max_open_conns" validate:"gte=2"`
	MigrateOnStart bool   `koanf:"migrate_on_start"`
}

// QueueConfig selects the scrape job queue backend.
type QueueConfig struct {
	Driver    string `koanf:"driver" validate:"oneof=memory redis"`
	Size      int    `koanf:"size" validate:"gte=1"`
	RedisAddr string `koanf:"redis_addr" validate:"required_if=Driver redis"`
	RedisDB   int    `koanf:"redis_db" validate:"gte=0"`
	RedisKey  string `koanf:"redis_key" validate:"required"`
}

// ScraperConfig configures the listing resolver client.
type ScraperConfig struct {
	ResolverURL     string        `koanf:"resolver_url" validate:"required,url"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	RatePerSecond   float64       `koanf:"rate_per_second" validate:"gt=0"`
	Burst           int           `koanf:"burst" validate:"gte=1"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
}

// BandsConfig describes the band grid.
type BandsConfig struct {
	RoomCounts []int   `koanf:"room_counts" validate:"min=1,dive,gte=1"`
	Min        float64 `koanf:"min" validate:"gte=0"`
	Max        float64 `koanf:"max" validate:"gtfield=Min"`
	Step       float64 `koanf:"step" validate:"gt=0"`
}

// RatingConfig tunes the rating engine and recompute baseline.
type RatingConfig struct {
	Tau          float64 `koanf:"tau" validate:"gt=0"`
	MinDeviation float64 `koanf:"min_deviation" validate:"gt=0,lte=350"`
	ReplayFrom   string  `koanf:"replay_from" validate:"oneof=initial stored"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "console",
		Addr:                 ":9080",
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           50_000,
		RecomputeParallelism: runtime.NumCPU(),
		RecomputeOnStart:     true,
		Store: StoreConfig{
			Driver:       "memory",
			MaxOpenConns: 10,
		},
		Queue: QueueConfig{
			Driver:   "memory",
			Size:     10_000,
			RedisKey: "flatrank:scrape",
		},
		Scraper: ScraperConfig{
			ResolverURL:     "http://localhost:8090/resolve",
			Timeout:         25 * time.Second,
			RatePerSecond:   2,
			Burst:           4,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Bands: BandsConfig{
			RoomCounts: []int{1, 2, 3},
			Min:        band.DefaultMin,
			Max:        band.DefaultMax,
			Step:       band.DefaultStep,
		},
		Rating: RatingConfig{
			Tau:          glicko.DefaultTau,
			MinDeviation: glicko.DefaultMinDeviation,
			ReplayFrom:   "initial",
		},
	}
}

// BandConfig builds the band grid described by c.
func (c *Config) BandConfig() (band.Config, error) {
	cfg, err := band.StepConfig(c.Bands.RoomCounts, c.Bands.Min, c.Bands.Max, c.Bands.Step)
	if err != nil {
		return band.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}
