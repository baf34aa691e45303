package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fundwell/fundwell-web/config"
	httpx "github.com/fundwell/fundwell-web/internal/http"
)

// RunConfig contains the dependencies of Run.
type RunConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// Run connects infrastructure, starts the HTTP server and blocks until a
// shutdown signal is received or the server fails.
func Run(ctx context.Context, cfg *RunConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("run config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidateConfig(cfg.Config); err != nil {
		return err
	}

	redisClient, err := ConnectRedis(ctx, RedisConnConfig{Redis: cfg.Config.Redis, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	readiness := map[string]httpx.ReadinessCheck{}
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
		readiness["redis"] = RedisReadiness(redisClient)
	}

	metricsClient := BuildMetricsClient(cfg.Config.Metrics, logger)
	defer func() {
		if cerr := metricsClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close statsd failed", "error", cerr)
		}
	}()
	sink := metricsSink(metricsClient)

	auth, err := BuildAuthService(AuthConfig{
		Config:      cfg.Config,
		RedisClient: redisClient,
		Metrics:     sink,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:    cfg.Config,
		Auth:      auth,
		Readiness: readiness,
		Metrics:   sink,
		Logger:    logger,
	}, errCh)
	if err != nil {
		return err
	}

	httpCfg := cfg.Config.HTTP
	httpCfg.Sanitize()
	return waitForShutdown(shutdownConfig{
		ctx:        ctx,
		errCh:      errCh,
		httpServer: server,
		cfg:        httpCfg,
		logger:     logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx        context.Context
	errCh      <-chan error
	httpServer *http.Server
	cfg        config.HTTPConfig
	logger     *slog.Logger
}

// waitForShutdown waits for shutdown signal or server error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down...")
		return gracefulStop(cfg)
	case <-cfg.ctx.Done():
		cfg.logger.Info("context canceled, shutting down...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("server error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains in-flight requests within the configured timeout.
func gracefulStop(cfg shutdownConfig) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), cfg.cfg.ShutdownTimeout)
	defer cancel()

	return ShutdownHTTPServer(ShutdownConfig{
		Context: shutdownCtx,
		Server:  cfg.httpServer,
		Logger:  cfg.logger,
	})
}
