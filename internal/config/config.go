package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	HTTPAddr     string
	APIKeyPepper string
	AdminToken   string

	RateLimitPerMinute int
	EventBufferSize    int
}

func Load() (Config, error) {
	// Optional: load local .env for development. Missing file is fine.
	_ = godotenv.Load()

	rateLimit := getenvIntDefault("SOCIALHUB_RATE_LIMIT_PER_MINUTE", 120)
	if rateLimit < 1 {
		rateLimit = 1
	}

	eventBuffer := getenvIntDefault("SOCIALHUB_EVENT_BUFFER_SIZE", 64)
	if eventBuffer < 1 {
		eventBuffer = 1
	}
	if eventBuffer > 1024 {
		eventBuffer = 1024
	}

	cfg := Config{
		DatabaseURL:  os.Getenv("SOCIALHUB_DATABASE_URL"),
		HTTPAddr:     getenvDefault("SOCIALHUB_HTTP_ADDR", ":8080"),
		APIKeyPepper: os.Getenv("SOCIALHUB_API_KEY_PEPPER"),
		AdminToken:   strings.TrimSpace(os.Getenv("SOCIALHUB_ADMIN_TOKEN")),

		RateLimitPerMinute: rateLimit,
		EventBufferSize:    eventBuffer,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("SOCIALHUB_DATABASE_URL is required")
	}
	if cfg.APIKeyPepper == "" {
		return Config{}, errors.New("SOCIALHUB_API_KEY_PEPPER is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
