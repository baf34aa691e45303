package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"net/http"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
)

// Backend is the external API that owns accounts, tokens and the waitlist.
// Implementations translate transport and status errors into *domainauth.Failure.
type Backend interface {
	// Login exchanges an email/password pair for a token pair.
	Login(ctx context.Context, email, password string) (domainauth.TokenPair, error)

	// LoginWithToken exchanges an external provider token for a token pair.
	LoginWithToken(ctx context.Context, externalToken string) (domainauth.TokenPair, error)

	// Me fetches the current user for the given access token.
	Me(ctx context.Context, accessToken string) (domainauth.RawUser, error)

	// Refresh trades a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error)

	// Revoke invalidates the server-side session behind an access token.
	Revoke(ctx context.Context, accessToken string) error

	// Forward relays a JSON request to the backend and returns its response verbatim.
	Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error)
}

// ForwardRequest describes a pass-through call.
type ForwardRequest struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header
}

// ForwardResponse is the backend's raw answer to a pass-through call.
type ForwardResponse struct {
	Status int
	Body   []byte
	// Message is the error message extracted from Body for non-2xx answers.
	Message string
}

// OK reports whether the backend answered with a 2xx status.
func (r *ForwardResponse) OK() bool { return r != nil && r.Status >= 200 && r.Status < 300 }

// IDTokenVerifier validates a third-party ID token and returns its subject claims.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (ExternalIdentity, error)
}

// ExternalIdentity is the verified identity carried by a provider ID token.
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Nonce         string
}

// BeginInput carries inputs for initiating a provider redirect flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// CodeFlowProvider runs an authorization-code flow against an external IdP.
type CodeFlowProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the flow and returns the raw provider ID token.
	Exchange(ctx context.Context, in ExchangeInput) (idToken string, err error)
}

// SessionCache stores normalized users keyed by access token so that
// server-side session reads do not hit the backend on every navigation.
type SessionCache interface {
	Get(ctx context.Context, accessToken string) (domainauth.NormalizedUser, bool, error)
	Put(ctx context.Context, accessToken string, user domainauth.NormalizedUser, ttl time.Duration) error
	Delete(ctx context.Context, accessToken string) error
}
