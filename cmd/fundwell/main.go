package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/fundwell/fundwell-web/config"
	"github.com/fundwell/fundwell-web/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	cfg, err := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(&cfg)
	if err != nil {
		logger.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}

	if err := run(ctx, logger, &cfg); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) error {
	logStartupInfo(ctx, logger, cfg)
	return bootstrap.Run(ctx, &bootstrap.RunConfig{Config: cfg, Logger: logger})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting fundwell web",
		"env", cfg.Env,
		"addr", cfg.HTTP.Addr,
		"backend_mode", string(cfg.Backend.Mode),
		"backend_url", cfg.Backend.URL,
		"session_cache", cfg.Redis.Enabled(),
		"google", cfg.Google.Enabled(),
		"frontend", cfg.HTTP.FrontendURL)
}
