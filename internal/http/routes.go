package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fundwell/fundwell-web/internal/domain/routeguard"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth    AuthServiceInterface
	Cookies *SessionCookieWriter
	// Optional: per-client throttling for credential and signup endpoints.
	RateLimiter *RateLimiter
	// Optional: dependency checks served at /readyz.
	Readiness map[string]ReadinessCheck
	// Optional: serves every non-API path after the route guard. When nil,
	// such paths answer 404.
	Pages http.Handler
	// Optional: route protection rules, defaults to routeguard.DefaultRules().
	Rules  *routeguard.Rules
	Now    func() time.Time
	Logger *slog.Logger
}

// NewRouter creates the BFF router wrapped in the standard middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookies := services.Cookies
	if cookies == nil {
		cookies = &SessionCookieWriter{}
	}
	rules := routeguard.DefaultRules()
	if services.Rules != nil {
		rules = *services.Rules
	}

	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{Svc: services.Auth, Cookies: cookies, Logger: logger}
	proxyHandlers := &ProxyHandlers{Svc: services.Auth, Logger: logger}
	registerAuthRoutes(mux, authHandlers, services.RateLimiter)
	registerProxyRoutes(mux, proxyHandlers, services.RateLimiter)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Readiness, logger))

	mux.HandleFunc("/api/", apiNotFound)
	if services.Pages != nil {
		mux.Handle("/", services.Pages)
	}

	return Chain(mux,
		RequestID(),
		Logging(logger),
		Recover(logger),
		RouteGuard(RouteGuardConfig{Rules: rules, Now: services.Now, Logger: logger}),
	)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, limiter *RateLimiter) {
	limited := limiter.Middleware()
	mux.Handle("POST /api/auth/login-user", limited(http.HandlerFunc(h.LoginUser)))
	mux.Handle("POST /api/auth/callback/google", limited(http.HandlerFunc(h.GoogleToken)))
	mux.HandleFunc("GET /api/auth/callback/google", h.GoogleCallback)
	mux.HandleFunc("GET /api/auth/google/login", h.GoogleLogin)
	mux.HandleFunc("GET /api/auth/session", h.Session)
	mux.Handle("POST /api/auth/refresh", limited(http.HandlerFunc(h.Refresh)))
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
}

func registerProxyRoutes(mux *http.ServeMux, h *ProxyHandlers, limiter *RateLimiter) {
	limited := limiter.Middleware()
	mux.Handle("POST /api/auth/register", limited(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/forgot-password", limited(http.HandlerFunc(h.ForgotPassword)))
	mux.Handle("POST /api/auth/reset-password", limited(http.HandlerFunc(h.ResetPassword)))
	mux.Handle("POST /api/auth/verify-otp", limited(http.HandlerFunc(h.VerifyOTP)))
	mux.Handle("POST /api/waitlist/subscribe", limited(http.HandlerFunc(h.WaitlistSubscribe)))
}

func apiNotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{
		Code:    http.StatusNotFound,
		ErrCode: "not_found",
		Err:     errors.New("no such API route"),
	})
}
