package config

import "time"

// RedisConfig contains Redis configuration. An empty URI disables the session cache.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:""`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// Enabled reports whether a Redis server is configured.
func (r *RedisConfig) Enabled() bool { return r.URI != "" }

// CacheConfig contains session cache configuration (Redis-based).
type CacheConfig struct {
	// SessionTTL bounds how long a resolved user is served from cache. Entries
	// never outlive the access token's own expiry.
	SessionTTL time.Duration `env:"SESSION_CACHE_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 5 * time.Minute
	}
	if c.SessionTTL > time.Hour {
		c.SessionTTL = time.Hour
	}
}
