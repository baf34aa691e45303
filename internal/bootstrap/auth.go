package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fundwell/fundwell-web/config"
	"github.com/fundwell/fundwell-web/internal/adapters/backend"
	"github.com/fundwell/fundwell-web/internal/adapters/devbackend"
	"github.com/fundwell/fundwell-web/internal/adapters/oidc"
	redisadapter "github.com/fundwell/fundwell-web/internal/adapters/redis"
	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/observability/statsd"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/fundwell/fundwell-web/internal/service"
	"github.com/redis/go-redis/v9"
)

// AuthConfig contains configuration for the auth service.
type AuthConfig struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient // Optional; enables the session cache
	HTTPClient  *http.Client          // Optional; used for backend and Google calls
	Metrics     statsd.Sink           // Optional
	Logger      *slog.Logger
}

// BuildAuthService wires the backend, the optional session cache and the
// optional Google provider into an AuthService.
func BuildAuthService(cfg AuthConfig) (*service.AuthService, error) {
	if cfg.Config == nil {
		return nil, errors.New("auth config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	be, err := BuildBackend(cfg.Config.Backend, cfg.HTTPClient, logger)
	if err != nil {
		return nil, err
	}

	opts := service.AuthServiceOptions{
		Backend:  be,
		CacheTTL: cfg.Config.Cache.SessionTTL,
		Metrics:  cfg.Metrics,
		Logger:   logger,
	}
	if cfg.RedisClient != nil {
		opts.Cache = redisadapter.NewSessionCache(cfg.RedisClient)
	} else {
		logger.Info("session cache disabled: redis not configured")
	}

	if prov := buildGoogleProvider(cfg.Config.Google, cfg.HTTPClient, logger); prov != nil {
		opts.Verifier = prov
		if prov.CodeFlowEnabled() {
			opts.CodeFlow = prov
		}
	}

	return service.NewAuthService(opts), nil
}

// BuildBackend creates the backend selected by BACKEND_MODE.
//
//nolint:ireturn // callers depend on the port, not on the adapter picked at runtime.
func BuildBackend(cfg config.BackendConfig, httpClient *http.Client, logger *slog.Logger) (ports.Backend, error) {
	switch cfg.Mode {
	case config.BackendModeMock:
		return buildDevBackend(cfg.Dev, logger)
	case config.BackendModeHTTP, "":
		client, err := backend.NewClient(backend.Config{
			BaseURL:          cfg.URL,
			Timeout:          cfg.Timeout,
			ErrorMessagePath: cfg.ErrorMessagePath,
			HTTPClient:       httpClient,
			Logger:           logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create backend client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported backend mode %q", cfg.Mode)
	}
}

func buildDevBackend(cfg config.DevBackendConfig, logger *slog.Logger) (*devbackend.Backend, error) {
	seeds, err := cfg.ParseUsers()
	if err != nil {
		return nil, err
	}
	users := make([]devbackend.User, 0, len(seeds))
	for _, s := range seeds {
		role := domainauth.RoleUser
		if s.Admin {
			role = domainauth.RoleAdmin
		}
		users = append(users, devbackend.User{Email: s.Email, Password: s.Password, Role: role, Verified: true})
	}

	be, err := devbackend.New(devbackend.Config{Users: users, OTP: cfg.OTP})
	if err != nil {
		return nil, err
	}
	logger.Warn("using in-memory dev backend; accounts are not persisted", "seeded_users", len(users))
	return be, nil
}

// buildGoogleProvider returns nil when Google sign-in is not configured or
// discovery fails; the rest of the BFF keeps working without it.
func buildGoogleProvider(cfg config.GoogleConfig, httpClient *http.Client, logger *slog.Logger) *oidc.Provider {
	if !cfg.Enabled() {
		logger.Info("google sign-in disabled: GOOGLE_CLIENT_ID not set")
		return nil
	}

	pc := oidc.ProviderConfig{
		ClientID:   cfg.ClientID,
		Scope:      cfg.Scope,
		IssuerURL:  cfg.IssuerURL,
		HTTPClient: httpClient,
	}
	if cfg.CodeFlowEnabled() {
		pc.ClientSecret = cfg.ClientSecret
		pc.RedirectURL = cfg.RedirectURL
	}

	prov, err := oidc.NewProvider(pc)
	if err != nil {
		logger.Warn("failed to create Google provider, google sign-in disabled", "error", err)
		return nil
	}
	logger.Info("google sign-in enabled", "redirect_flow", prov.CodeFlowEnabled())
	return prov
}
