// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all runtime configuration for the pricing service.
type Config struct {
	Port                  string
	DatabaseURL           string // favorites table
	RedisURL              string // snapshot cache
	ScrapeIntervalMinutes int    // how often the scrape cron fires
	DefaultPageSize       int    // query page size when the client sends none
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	interval := 360
	if s := os.Getenv("SCRAPE_INTERVAL_MINUTES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SCRAPE_INTERVAL_MINUTES must be a positive integer, got %q", s)
		}
		interval = v
	}

	pageSize := 50
	if s := os.Getenv("DEFAULT_PAGE_SIZE"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("DEFAULT_PAGE_SIZE must be a positive integer, got %q", s)
		}
		pageSize = v
	}

	port := os.Getenv("PRICING_PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           dbURL,
		RedisURL:              redisURL,
		ScrapeIntervalMinutes: interval,
		DefaultPageSize:       pageSize,
	}, nil
}
