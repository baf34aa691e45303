package bootstrap

import (
	"log/slog"

	"github.com/fundwell/fundwell-web/config"
	"github.com/fundwell/fundwell-web/internal/observability/statsd"
)

// BuildMetricsClient returns a StatsD client when metrics are enabled. A dial
// failure is logged and metrics stay off; it never blocks startup.
func BuildMetricsClient(cfg config.MetricsConfig, logger *slog.Logger) *statsd.Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	logger.Info("metrics enabled", "statsd_address", cfg.StatsdAddress, "prefix", cfg.Prefix)
	return client
}

// metricsSink converts a possibly nil client to a Sink without a typed nil.
func metricsSink(c *statsd.Client) statsd.Sink {
	if c == nil {
		return nil
	}
	return c
}
