package httpx

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/domain/routeguard"
	"github.com/fundwell/fundwell-web/internal/http/validation"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/fundwell/fundwell-web/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	Exchange(ctx context.Context, creds domainauth.Credentials) (*service.ExchangeResult, error)
	CurrentUser(ctx context.Context, accessToken string) (domainauth.NormalizedUser, error)
	Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error)
	Revoke(ctx context.Context, accessToken string) error
	Forward(ctx context.Context, req ports.ForwardRequest) (*ports.ForwardResponse, error)

	GoogleEnabled() bool
	BeginGoogleLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteGoogleLogin(ctx context.Context, input service.CompleteLoginInput) (*service.ExchangeResult, error)
	ExchangeGoogleToken(ctx context.Context, idToken string) (*service.ExchangeResult, error)
}

var _ AuthServiceInterface = (*service.AuthService)(nil)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies *SessionCookieWriter
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) cookies() *SessionCookieWriter {
	if h.Cookies != nil {
		return h.Cookies
	}
	return &SessionCookieWriter{}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// LoginUser exchanges an email/password pair and sets the session cookies.
// POST /api/auth/login-user.
func (h *AuthHandlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if fields := validation.New().
		Validate("email", req.Email, validation.Required("Email", 254)).
		Validate("password", req.Password, validation.Present("Password")).
		Errors(); len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	res, err := h.Svc.Exchange(r.Context(), domainauth.PasswordCredentials(req.Email, req.Password))
	if err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.startSession(w, r, res.Tokens, "Login successful")
}

type googleTokenRequest struct {
	Token string `json:"token"`
}

// GoogleToken exchanges a Google ID token posted by the browser.
// POST /api/auth/callback/google.
func (h *AuthHandlers) GoogleToken(w http.ResponseWriter, r *http.Request) {
	var req googleTokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if fields := validation.New().
		Validate("token", req.Token, validation.Required("Token", 8192)).
		Errors(); len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	res, err := h.Svc.ExchangeGoogleToken(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.startSession(w, r, res.Tokens, "Google login successful")
}

// startSession writes the cookies for a confirmed token pair and answers 200.
func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, tokens domainauth.TokenPair, msg string) {
	if err := h.cookies().Write(w, tokens); err != nil {
		writeAuthError(w, r, h.logger(), domainauth.InvalidFailure(err))
		return
	}
	WriteJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: msg,
		Data:    tokenData{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken},
	})
}

// GoogleLogin starts the redirect-based Google flow.
// GET /api/auth/google/login?callbackUrl=<optional_redirect>.
func (h *AuthHandlers) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.GoogleEnabled() {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "google_not_configured",
			Err:     service.ErrGoogleNotConfigured,
		})
		return
	}

	redirectURI := safeRedirectPath(r.URL.Query().Get("callbackUrl"))
	if redirectURI == "/" {
		redirectURI = defaultPostLoginURL
	}

	result, err := h.Svc.BeginGoogleLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin google login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("could not start Google sign-in"),
		})
		return
	}

	h.cookies().setOAuthCookies(w, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// GoogleCallback completes the redirect-based Google flow.
// GET /api/auth/callback/google?code=<code>&state=<state>.
func (h *AuthHandlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("error") != "" {
		// Consent denied or cancelled at Google.
		h.cookies().clearOAuthCookies(w)
		http.Redirect(w, r, routeguard.SignInPath+"?error=google", http.StatusFound)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	res, err := h.Svc.CompleteGoogleLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	if err := h.cookies().Write(w, res.Tokens); err != nil {
		writeAuthError(w, r, h.logger(), domainauth.InvalidFailure(err))
		return
	}

	redirectURI := postLoginRedirect(r)
	h.cookies().clearOAuthCookies(w)
	writeLandingPage(w, redirectURI)
}

// landingPage hands the browser to redirectURI with a same-site navigation.
// The callback request comes from Google, so SameSite=Strict session cookies
// set here would not be sent on a redirect chained from it.
const landingPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><meta http-equiv="refresh" content="0;url=%[1]s"><title>Signing in</title></head>
<body><p>Signed in. <a href="%[1]s">Continue</a></p></body></html>
`

// writeLandingPage expects redirectURI to have passed safeRedirectPath.
func writeLandingPage(w http.ResponseWriter, redirectURI string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, landingPage, html.EscapeString(redirectURI))
}

type sessionResponse struct {
	Authenticated bool                       `json:"authenticated"`
	User          *domainauth.NormalizedUser `json:"user,omitempty"`
}

// Session reports the user behind the session cookie.
// GET /api/auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	tokens := readTokens(r)
	if !tokens.Valid() {
		WriteJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	user, err := h.Svc.CurrentUser(r.Context(), tokens.AccessToken)
	if err != nil {
		if domainauth.KindOf(err) == domainauth.FailureInvalid {
			// Token is expired or revoked; drop the stale cookies.
			h.cookies().Clear(w)
			WriteJSON(w, http.StatusOK, sessionResponse{})
			return
		}
		writeAuthError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: &user})
}

// Refresh trades the refresh-token cookie for a new pair and rewrites the cookies.
// POST /api/auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	current := readTokens(r)
	if !current.HasRefresh() {
		writeAuthError(w, r, h.logger(), domainauth.InvalidFailure(errors.New("no refresh token cookie")))
		return
	}

	tokens, err := h.Svc.Refresh(r.Context(), current.RefreshToken)
	if err != nil {
		if domainauth.KindOf(err) == domainauth.FailureInvalid {
			h.cookies().Clear(w)
		}
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.startSession(w, r, tokens, "Session refreshed")
}

// Logout clears the session cookies and revokes the server-side session.
// The revoke is best effort; logout always succeeds.
// POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	tokens := readTokens(r)
	h.cookies().Clear(w)

	if tokens.Valid() {
		if err := h.Svc.Revoke(r.Context(), tokens.AccessToken); err != nil {
			h.logger().WarnContext(r.Context(), "logout revoke failed", "error", err)
		}
	}
	WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "Logged out"})
}

// postLoginRedirect returns the validated post-login destination.
func postLoginRedirect(r *http.Request) string {
	if ck, err := r.Cookie(postLoginCookie); err == nil {
		if p := safeRedirectPath(ck.Value); p != "/" {
			return p
		}
	}
	return defaultPostLoginURL
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
