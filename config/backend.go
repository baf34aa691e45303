package config

import (
	"fmt"
	"strings"
	"time"
)

// BackendMode selects the backend implementation.
type BackendMode string

const (
	// BackendModeHTTP talks to the external backend API.
	BackendModeHTTP BackendMode = "http"
	// BackendModeMock uses the in-memory dev backend (for development only).
	BackendModeMock BackendMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for BackendMode.
func (m *BackendMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "http", "mock":
		*m = BackendMode(v)
		return nil
	default:
		return fmt.Errorf("invalid BackendMode: %q (valid options: http, mock)", v)
	}
}

// BackendConfig contains the external backend API configuration.
type BackendConfig struct {
	Mode BackendMode `env:"BACKEND_MODE" envDefault:"http"`

	// URL is the backend API base, shared with the frontend build.
	URL string `env:"NEXT_PUBLIC_API_URL" envDefault:"http://localhost:8000/api"`

	// Timeout bounds every outbound backend call.
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`

	// ErrorMessagePath is a JMESPath expression locating the message in error bodies.
	ErrorMessagePath string `env:"BACKEND_ERROR_MESSAGE_PATH" envDefault:"message || error.message || error"`

	// Dev configures the in-memory backend (used when Mode=mock).
	Dev DevBackendConfig `envPrefix:"DEV_BACKEND_"`
}

// Sanitize applies guardrails to backend configuration values.
func (b *BackendConfig) Sanitize() {
	b.URL = strings.TrimRight(strings.TrimSpace(b.URL), "/")
	if b.Timeout <= 0 {
		b.Timeout = 10 * time.Second
	}
	if b.Timeout > 2*time.Minute {
		b.Timeout = 2 * time.Minute
	}
	if strings.TrimSpace(b.ErrorMessagePath) == "" {
		b.ErrorMessagePath = "message || error.message || error"
	}
}

// DevBackendConfig seeds the in-memory backend.
type DevBackendConfig struct {
	// Users lists seeded accounts as "email:password[:ADMIN]" entries separated by ';'.
	Users []string `env:"USERS" envDefault:"dev@example.com:password;admin@example.com:password:ADMIN" envSeparator:";"`
	OTP   string   `env:"OTP"   envDefault:"123456"`
}

// DevUser is a parsed DevBackendConfig.Users entry.
type DevUser struct {
	Email    string
	Password string
	Admin    bool
}

// ParseUsers parses the seeded user entries.
func (d *DevBackendConfig) ParseUsers() ([]DevUser, error) {
	users := make([]DevUser, 0, len(d.Users))
	for _, entry := range d.Users {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid dev backend user %q (want email:password[:ADMIN])", entry)
		}
		u := DevUser{Email: parts[0], Password: parts[1]}
		if len(parts) == 3 {
			if !strings.EqualFold(parts[2], "ADMIN") {
				return nil, fmt.Errorf("invalid dev backend role %q (only ADMIN is recognized)", parts[2])
			}
			u.Admin = true
		}
		users = append(users, u)
	}
	return users, nil
}
