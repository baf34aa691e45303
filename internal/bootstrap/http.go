package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/fundwell/fundwell-web/config"
	httpx "github.com/fundwell/fundwell-web/internal/http"
	"github.com/fundwell/fundwell-web/internal/observability/statsd"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config    *config.AppConfig
	Auth      httpx.AuthServiceInterface
	Readiness map[string]httpx.ReadinessCheck
	Metrics   statsd.Sink // Optional
	Logger    *slog.Logger
}

// BuildHTTPHandler assembles the router for cfg.
func BuildHTTPHandler(cfg *HTTPServerConfig) (http.Handler, error) {
	if cfg == nil || cfg.Auth == nil {
		return nil, errors.New("http server config with an auth service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	pages, err := newFrontendProxy(appCfg.HTTP.FrontendURL, logger)
	if err != nil {
		return nil, err
	}

	limiter := httpx.NewRateLimiter(appCfg.HTTP.RateLimitPerMinute, appCfg.HTTP.TrustProxy)
	limiter.SetSink(cfg.Metrics)

	return httpx.NewRouter(httpx.RouterServices{
		Auth: cfg.Auth,
		Cookies: &httpx.SessionCookieWriter{
			Secure: appCfg.IsProduction(),
			Domain: appCfg.HTTP.CookieDomain,
		},
		RateLimiter: limiter,
		Readiness:   cfg.Readiness,
		Pages:       pages,
		Logger:      logger,
	}), nil
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown; listen errors are sent on errCh.
func StartHTTPServer(cfg *HTTPServerConfig, errCh chan<- error) (*http.Server, error) {
	handler, err := BuildHTTPHandler(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpCfg := config.HTTPConfig{}
	if cfg.Config != nil {
		httpCfg = cfg.Config.HTTP
	}
	httpCfg.Sanitize()

	server := &http.Server{
		Addr:         httpCfg.Addr,
		Handler:      handler,
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
		IdleTimeout:  httpCfg.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	return server, nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if err := cfg.Server.Shutdown(cfg.Context); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}

// newFrontendProxy relays page requests to the frontend server. It returns
// nil when no frontend is configured.
func newFrontendProxy(rawURL string, logger *slog.Logger) (http.Handler, error) {
	if rawURL == "" {
		return nil, nil
	}
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("invalid FRONTEND_URL %q", rawURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WarnContext(r.Context(), "frontend unavailable", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
	return proxy, nil
}
