package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/observability/metrics"
	"github.com/fundwell/fundwell-web/internal/observability/statsd"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/fundwell/fundwell-web/internal/util"
)

// DefaultSessionCacheTTL bounds how long a normalized user is served from cache.
const DefaultSessionCacheTTL = 5 * time.Minute

// ErrGoogleNotConfigured is returned by the Google flow when no provider is wired.
var ErrGoogleNotConfigured = errors.New("google sign-in is not configured")

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Backend ports.Backend
	// Cache is optional; when nil every session read hits the backend.
	Cache    ports.SessionCache
	CacheTTL time.Duration
	// Verifier and CodeFlow are optional and enable Google sign-in.
	Verifier ports.IDTokenVerifier
	CodeFlow ports.CodeFlowProvider
	Metrics  statsd.Sink // Optional
	Logger   *slog.Logger
}

// AuthService exchanges credentials with the backend and resolves sessions.
// It never writes cookies or client storage.
type AuthService struct {
	backend  ports.Backend
	cache    ports.SessionCache
	cacheTTL time.Duration
	verifier ports.IDTokenVerifier
	codeFlow ports.CodeFlowProvider
	metrics  statsd.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultSessionCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		backend:  opts.Backend,
		cache:    opts.Cache,
		cacheTTL: ttl,
		verifier: opts.Verifier,
		codeFlow: opts.CodeFlow,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "auth_service"),
		now:      time.Now,
	}
}

// ExchangeResult is the outcome of a successful credential exchange.
type ExchangeResult struct {
	Tokens domainauth.TokenPair
	Raw    domainauth.RawUser
	User   domainauth.NormalizedUser
}

// Session returns the result as a domain session.
func (r *ExchangeResult) Session() domainauth.Session {
	return domainauth.Session{
		User:         r.User,
		AccessToken:  r.Tokens.AccessToken,
		RefreshToken: r.Tokens.RefreshToken,
	}
}

// Exchange validates creds, obtains a token pair from the backend and fetches
// the user behind it. Failures are *domainauth.Failure values; callers branch
// on domainauth.KindOf. Nothing is retried.
func (s *AuthService) Exchange(ctx context.Context, creds domainauth.Credentials) (*ExchangeResult, error) {
	start := s.now()
	res, err := s.exchange(ctx, creds)
	s.observe(metrics.AuthMetric{Operation: metrics.OpExchange, Credential: string(creds.Kind())}, start, err)
	return res, err
}

func (s *AuthService) exchange(ctx context.Context, creds domainauth.Credentials) (*ExchangeResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	var (
		tokens domainauth.TokenPair
		err    error
	)
	switch creds.Kind() {
	case domainauth.CredentialExternal:
		tokens, err = s.backend.LoginWithToken(ctx, strings.TrimSpace(creds.ExternalToken))
	default:
		tokens, err = s.backend.Login(ctx, strings.TrimSpace(creds.Email), creds.Password)
	}
	if err != nil {
		return nil, s.logFailure(ctx, "login", err)
	}
	if !tokens.Valid() {
		return nil, s.logFailure(ctx, "login", domainauth.InvalidFailure(errors.New("backend returned no access token")))
	}

	raw, err := s.backend.Me(ctx, tokens.AccessToken)
	if err != nil {
		return nil, s.logFailure(ctx, "fetch user", err)
	}
	if verified, known := domainauth.IsVerified(raw); known && !verified {
		return nil, s.logFailure(ctx, "fetch user", domainauth.UnverifiedFailure(""))
	}

	user := domainauth.Normalize(raw)
	s.remember(ctx, tokens.AccessToken, user)

	s.logger.InfoContext(ctx, "credential exchange succeeded",
		"kind", string(creds.Kind()),
		"user_id", user.ID,
		"role", string(user.Role))

	return &ExchangeResult{Tokens: tokens, Raw: raw, User: user}, nil
}

// Me re-fetches and normalizes the user behind accessToken, bypassing the cache.
// The cache is refreshed with the result.
func (s *AuthService) Me(ctx context.Context, accessToken string) (domainauth.NormalizedUser, error) {
	if strings.TrimSpace(accessToken) == "" {
		return domainauth.NormalizedUser{}, domainauth.InvalidFailure(errors.New("access token is required"))
	}
	start := s.now()
	raw, err := s.backend.Me(ctx, accessToken)
	s.observe(metrics.AuthMetric{Operation: metrics.OpMe}, start, err)
	if err != nil {
		if domainauth.KindOf(err) == domainauth.FailureInvalid {
			s.forget(ctx, accessToken)
		}
		return domainauth.NormalizedUser{}, err
	}
	user := domainauth.Normalize(raw)
	s.remember(ctx, accessToken, user)
	return user, nil
}

// CurrentUser resolves the user behind accessToken, serving from the session
// cache when possible. Expired JWTs are rejected without a backend call.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (domainauth.NormalizedUser, error) {
	if !util.TokenLive(accessToken, s.now()) {
		return domainauth.NormalizedUser{}, domainauth.InvalidFailure(errors.New("access token missing or expired"))
	}

	if s.cache != nil {
		user, ok, err := s.cache.Get(ctx, accessToken)
		if err != nil {
			s.logger.WarnContext(ctx, "session cache read failed", "error", err)
		} else {
			metrics.EmitSessionCacheLookup(s.metrics, ok)
			if ok {
				return user, nil
			}
		}
	}

	return s.Me(ctx, accessToken)
}

// Refresh trades a refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	start := s.now()
	tokens, err := s.refresh(ctx, refreshToken)
	s.observe(metrics.AuthMetric{Operation: metrics.OpRefresh}, start, err)
	return tokens, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domainauth.TokenPair{}, domainauth.InvalidFailure(errors.New("refresh token is required"))
	}
	tokens, err := s.backend.Refresh(ctx, refreshToken)
	if err != nil {
		return domainauth.TokenPair{}, s.logFailure(ctx, "refresh", err)
	}
	if !tokens.Valid() {
		return domainauth.TokenPair{}, domainauth.InvalidFailure(errors.New("backend returned no access token"))
	}
	if !tokens.HasRefresh() {
		// Keep the session extendable when the backend does not rotate refresh tokens.
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// Revoke ends the server-side session behind accessToken and drops it from the cache.
func (s *AuthService) Revoke(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil // Nothing to revoke
	}
	s.forget(ctx, accessToken)
	if err := s.backend.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Forward relays a pass-through request to the backend.
func (s *AuthService) Forward(ctx context.Context, req ports.ForwardRequest) (*ports.ForwardResponse, error) {
	res, err := s.backend.Forward(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", req.Path, err)
	}
	return res, nil
}

// GoogleEnabled reports whether the redirect-based Google flow is available.
func (s *AuthService) GoogleEnabled() bool { return s.codeFlow != nil }

// BeginLoginResult contains the result of beginning a Google login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginGoogleLogin starts the Google authorization-code flow.
func (s *AuthService) BeginGoogleLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.codeFlow == nil {
		return nil, ErrGoogleNotConfigured
	}
	authURL, state, nonce, err := s.codeFlow.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing the Google flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteGoogleLogin exchanges the authorization code for a Google ID token and
// then exchanges that token with the backend.
func (s *AuthService) CompleteGoogleLogin(ctx context.Context, in CompleteLoginInput) (*ExchangeResult, error) {
	if s.codeFlow == nil {
		return nil, ErrGoogleNotConfigured
	}
	if in.Code == "" {
		return nil, domainauth.ValidationFailure("authorization code is required", map[string]string{"code": "code is required."})
	}
	if in.State == "" || in.Nonce == "" {
		return nil, domainauth.ValidationFailure("state and nonce are required", nil)
	}

	idToken, err := s.codeFlow.Exchange(ctx, ports.ExchangeInput(in))
	if err != nil {
		return nil, s.logFailure(ctx, "google code exchange", domainauth.InvalidFailure(err))
	}
	return s.Exchange(ctx, domainauth.ExternalCredentials(idToken))
}

// ExchangeGoogleToken verifies a Google ID token posted by the browser (when a
// verifier is configured) and exchanges it with the backend.
func (s *AuthService) ExchangeGoogleToken(ctx context.Context, idToken string) (*ExchangeResult, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, domainauth.ValidationFailure("token is required", map[string]string{"token": "token is required."})
	}
	creds := domainauth.ExternalCredentials(idToken)
	if s.verifier != nil {
		identity, err := s.verifier.Verify(ctx, idToken)
		if err != nil {
			return nil, s.logFailure(ctx, "verify google token", domainauth.InvalidFailure(err))
		}
		if !identity.EmailVerified {
			return nil, s.logFailure(ctx, "verify google token", domainauth.UnverifiedFailure(""))
		}
	}
	return s.Exchange(ctx, creds)
}

func (s *AuthService) remember(ctx context.Context, accessToken string, user domainauth.NormalizedUser) {
	if s.cache == nil {
		return
	}
	ttl := util.TTLUntilExpiry(accessToken, s.now(), s.cacheTTL)
	if ttl <= 0 {
		return
	}
	if err := s.cache.Put(ctx, accessToken, user, ttl); err != nil {
		s.logger.WarnContext(ctx, "session cache write failed", "error", err)
	}
}

func (s *AuthService) forget(ctx context.Context, accessToken string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, accessToken); err != nil {
		s.logger.WarnContext(ctx, "session cache delete failed", "error", err)
	}
}

func (s *AuthService) observe(m metrics.AuthMetric, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	m.Duration = s.now().Sub(start)
	m.Err = err
	metrics.EmitAuthOperation(s.metrics, m)
}

// logFailure records a failed step at a level matching its kind and returns err unchanged.
func (s *AuthService) logFailure(ctx context.Context, step string, err error) error {
	kind := domainauth.KindOf(err)
	switch kind {
	case domainauth.FailureUpstream, domainauth.FailureInternal:
		s.logger.WarnContext(ctx, "auth step failed", "step", step, "kind", string(kind), "error", err)
	default:
		s.logger.InfoContext(ctx, "auth step rejected", "step", step, "kind", string(kind))
	}
	return err
}
