package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/fundwell/fundwell-web/config"
	"github.com/joho/godotenv"
)

// InitLogger initializes the structured logger. Development runs log at debug.
func InitLogger(cfg *config.AppConfig) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg),
	}))
	slog.SetDefault(logger)
	return logger
}

func logLevel(cfg *config.AppConfig) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if cfg.IsDev {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig rejects configurations that cannot serve traffic safely.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.IsProduction() && cfg.Backend.Mode == config.BackendModeMock {
		return errors.New("BACKEND_MODE=mock is not allowed when NODE_ENV=production")
	}
	if cfg.Google.ClientSecret != "" && cfg.Google.ClientID == "" {
		return errors.New("GOOGLE_CLIENT_SECRET is set without GOOGLE_CLIENT_ID")
	}
	return nil
}
