package httpx

import (
	"errors"
	"net/http"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
)

// Session cookie names and lifetimes.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	AccessTokenMaxAge  = 3600   // 1 hour
	RefreshTokenMaxAge = 604800 // 7 days

	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookie     = "post_login_redirect"
	oauthCookieMaxAge   = 600 // 10 minutes
	defaultPostLoginURL = "/user"
)

// ErrMissingAccessToken is returned when a token pair cannot back a session.
// Callers answer 401.
var ErrMissingAccessToken = errors.New("token pair has no access token")

// SessionCookieWriter is the only writer of the http-only session cookies.
type SessionCookieWriter struct {
	// Secure sets the Secure flag; on in production.
	Secure bool
	Domain string
}

// Write sets the access-token cookie and, when present, the refresh-token
// cookie. A pair without an access token writes nothing.
func (c *SessionCookieWriter) Write(w http.ResponseWriter, tokens domainauth.TokenPair) error {
	if !tokens.Valid() {
		return ErrMissingAccessToken
	}
	http.SetCookie(w, c.cookie(AccessTokenCookie, tokens.AccessToken, AccessTokenMaxAge))
	if tokens.HasRefresh() {
		http.SetCookie(w, c.cookie(RefreshTokenCookie, tokens.RefreshToken, RefreshTokenMaxAge))
	}
	return nil
}

// Clear expires both session cookies.
func (c *SessionCookieWriter) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		ck := c.cookie(name, "", -1)
		ck.Expires = time.Unix(0, 0).UTC()
		http.SetCookie(w, ck)
	}
}

func (c *SessionCookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// readTokens returns the token pair carried by the request's session cookies.
func readTokens(r *http.Request) domainauth.TokenPair {
	var pair domainauth.TokenPair
	if ck, err := r.Cookie(AccessTokenCookie); err == nil {
		pair.AccessToken = ck.Value
	}
	if ck, err := r.Cookie(RefreshTokenCookie); err == nil {
		pair.RefreshToken = ck.Value
	}
	return pair
}

// oauthCookieParams groups values needed to set OAuth cookies (≤3 params rule).
type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores the Google flow's state, nonce and post-login
// redirect. They use Lax so they survive the top-level redirect back from Google.
func (c *SessionCookieWriter) setOAuthCookies(w http.ResponseWriter, p oauthCookieParams) {
	for name, value := range map[string]string{
		oauthStateCookie: p.State,
		oauthNonceCookie: p.Nonce,
		postLoginCookie:  p.RedirectURI,
	} {
		http.SetCookie(w, c.flowCookie(name, value, oauthCookieMaxAge))
	}
}

func (c *SessionCookieWriter) clearOAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{oauthStateCookie, oauthNonceCookie, postLoginCookie} {
		ck := c.flowCookie(name, "", -1)
		ck.Expires = time.Unix(0, 0).UTC()
		http.SetCookie(w, ck)
	}
}

func (c *SessionCookieWriter) flowCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
