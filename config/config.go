package config

import (
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Google sign-in configuration
//   - backend.go: Backend API and dev backend configuration
//   - cache.go: Redis session cache configuration
//   - http.go: HTTP server configuration
//   - observability.go: StatsD metrics configuration
type AppConfig struct {
	// Env mirrors NODE_ENV. Cookies are marked Secure only in production.
	Env string `env:"NODE_ENV" envDefault:"development"`

	// IsDev controls development mode behavior (debug logging, mock backend defaults).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel overrides the level derived from the environment (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL"`

	// Google sign-in configuration
	Google GoogleConfig `envPrefix:"GOOGLE_"`

	// Backend API configuration
	Backend BackendConfig

	// Session cache configuration
	Redis RedisConfig `envPrefix:"REDIS_"`
	Cache CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	Metrics MetricsConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.detectDevMode()

	c.HTTP.Sanitize()
	c.Backend.Sanitize()
	c.Cache.Sanitize()
	c.Google.Sanitize()
	c.Metrics.Sanitize()
}

// detectDevMode derives IsDev from NODE_ENV when DEV is not set.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		c.IsDev = c.Env == "development" || c.Env == "dev"
	}
}

// IsProduction reports whether NODE_ENV is "production".
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}
