package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandlers(svc *mockAuthService) *AuthHandlers {
	return &AuthHandlers{Svc: svc, Cookies: &SessionCookieWriter{}, Logger: quietLogger()}
}

func TestAuthHandlers_LoginUser_Success(t *testing.T) {
	var got domainauth.Credentials
	h := newAuthHandlers(&mockAuthService{
		exchangeFunc: func(_ context.Context, creds domainauth.Credentials) (*service.ExchangeResult, error) {
			got = creds
			return testExchangeResult(), nil
		},
	})

	rec := httptest.NewRecorder()
	h.LoginUser(rec, jsonRequest(t, http.MethodPost, "/api/auth/login-user", map[string]string{
		"email": "a@b.com", "password": "validpass",
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domainauth.PasswordCredentials("a@b.com", "validpass"), got)
	assert.JSONEq(t, `{
		"success": true,
		"message": "Login successful",
		"data": {"accessToken": "T1", "refreshToken": "T2"}
	}`, rec.Body.String())

	require.NotNil(t, cookieByName(rec, AccessTokenCookie))
	assert.Equal(t, 3600, cookieByName(rec, AccessTokenCookie).MaxAge)
	require.NotNil(t, cookieByName(rec, RefreshTokenCookie))
	assert.Equal(t, 604800, cookieByName(rec, RefreshTokenCookie).MaxAge)
}

func TestAuthHandlers_LoginUser_NoRefreshCookieWithoutRefreshToken(t *testing.T) {
	h := newAuthHandlers(&mockAuthService{
		exchangeFunc: func(context.Context, domainauth.Credentials) (*service.ExchangeResult, error) {
			res := testExchangeResult()
			res.Tokens.RefreshToken = ""
			return res, nil
		},
	})

	rec := httptest.NewRecorder()
	h.LoginUser(rec, jsonRequest(t, http.MethodPost, "/api/auth/login-user", map[string]string{
		"email": "a@b.com", "password": "validpass",
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, cookieByName(rec, AccessTokenCookie))
	assert.Nil(t, cookieByName(rec, RefreshTokenCookie))
}

func TestAuthHandlers_LoginUser_MissingAccessTokenIs401(t *testing.T) {
	h := newAuthHandlers(&mockAuthService{
		exchangeFunc: func(context.Context, domainauth.Credentials) (*service.ExchangeResult, error) {
			res := testExchangeResult()
			res.Tokens.AccessToken = ""
			return res, nil
		},
	})

	rec := httptest.NewRecorder()
	h.LoginUser(rec, jsonRequest(t, http.MethodPost, "/api/auth/login-user", map[string]string{
		"email": "a@b.com", "password": "validpass",
	}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestAuthHandlers_LoginUser_Validation(t *testing.T) {
	called := false
	h := newAuthHandlers(&mockAuthService{
		exchangeFunc: func(context.Context, domainauth.Credentials) (*service.ExchangeResult, error) {
			called = true
			return nil, errors.New("unreachable")
		},
	})

	rec := httptest.NewRecorder()
	h.LoginUser(rec, jsonRequest(t, http.MethodPost, "/api/auth/login-user", map[string]string{"email": " "}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
	body := decodeBody(t, rec)
	assert.Equal(t, "validation", body["error"])
	assert.Equal(t, map[string]any{
		"email":    "Email is required.",
		"password": "Password is required.",
	}, body["fields"])

	rec = httptest.NewRecorder()
	h.LoginUser(rec, jsonRequest(t, http.MethodPost, "/api/auth/login-user", "{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody(t, rec)["error"])
}

func TestAuthHandlers_LoginUser_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "invalid credentials are generic",
			err:        domainauth.InvalidFailure(errors.New("backend status 404: user not found")),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
			wantMsg:    "Invalid email or password",
		},
		{
			name:       "unverified is distinct",
			err:        domainauth.UnverifiedFailure(""),
			wantStatus: http.StatusForbidden,
			wantCode:   "unverified_email",
			wantMsg:    "Please verify your email address",
		},
		{
			name:       "upstream passes status through",
			err:        domainauth.UpstreamFailure(http.StatusServiceUnavailable, "maintenance", nil),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "upstream",
			wantMsg:    "maintenance",
		},
		{
			name:       "unreachable backend",
			err:        domainauth.UpstreamFailure(0, "backend unreachable", errors.New("dial tcp")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "upstream",
			wantMsg:    "backend unreachable",
		},
		{
			name:       "unexpected errors leak nothing",
			err:        errors.New("pq: connection string with password=hunter2"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal",
			wantMsg:    "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHandlers(&mockAuthService{
				exchangeFunc: func(context.Context, domainauth.Credentials) (*service.ExchangeResult, error) {
					return nil, tt.err
				},
			})
			rec := httptest.NewRecorder()
			h.LoginUser(rec, jsonRequest(t, http.MethodPost, "/api/auth/login-user", map[string]string{
				"email": "a@b.com", "password": "validpass",
			}))

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantCode, body["error"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.Equal(t, false, body["success"])
			assert.Empty(t, rec.Header().Values("Set-Cookie"))
		})
	}
}

func TestAuthHandlers_GoogleToken(t *testing.T) {
	var got string
	h := newAuthHandlers(&mockAuthService{
		googleTokenFunc: func(_ context.Context, idToken string) (*service.ExchangeResult, error) {
			got = idToken
			return testExchangeResult(), nil
		},
	})

	rec := httptest.NewRecorder()
	h.GoogleToken(rec, jsonRequest(t, http.MethodPost, "/api/auth/callback/google", map[string]string{"token": " google-id-token "}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "google-id-token", got)
	assert.NotNil(t, cookieByName(rec, AccessTokenCookie))

	rec = httptest.NewRecorder()
	h.GoogleToken(rec, jsonRequest(t, http.MethodPost, "/api/auth/callback/google", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlers_GoogleToken_Rejected(t *testing.T) {
	h := newAuthHandlers(&mockAuthService{
		googleTokenFunc: func(context.Context, string) (*service.ExchangeResult, error) {
			return nil, domainauth.InvalidFailure(errors.New("verify id_token: expired"))
		},
	})

	rec := httptest.NewRecorder()
	h.GoogleToken(rec, jsonRequest(t, http.MethodPost, "/api/auth/callback/google", map[string]string{"token": "x"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlers_GoogleLogin(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{})
		rec := httptest.NewRecorder()
		h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("sets flow cookies and redirects", func(t *testing.T) {
		var redirect string
		h := newAuthHandlers(&mockAuthService{
			googleEnabled: true,
			beginLoginFunc: func(_ context.Context, redirectURL string) (*service.BeginLoginResult, error) {
				redirect = redirectURL
				return &service.BeginLoginResult{AuthURL: "https://accounts.example.com/auth", State: "s1", Nonce: "n1"}, nil
			},
		})
		rec := httptest.NewRecorder()
		h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/login?callbackUrl=/user/projects", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://accounts.example.com/auth", rec.Header().Get("Location"))
		assert.Equal(t, "/user/projects", redirect)

		state := cookieByName(rec, oauthStateCookie)
		require.NotNil(t, state)
		assert.Equal(t, "s1", state.Value)
		assert.Equal(t, 600, state.MaxAge)
		assert.Equal(t, http.SameSiteLaxMode, state.SameSite)
		assert.Equal(t, "n1", cookieByName(rec, oauthNonceCookie).Value)
		assert.Equal(t, "/user/projects", cookieByName(rec, postLoginCookie).Value)
	})

	t.Run("rejects open redirects", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{googleEnabled: true})
		for _, target := range []string{"https://evil.example", "//evil.example/x", "javascript:alert(1)"} {
			rec := httptest.NewRecorder()
			h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/login?callbackUrl="+url.QueryEscape(target), nil))
			assert.Equal(t, defaultPostLoginURL, cookieByName(rec, postLoginCookie).Value, target)
		}
	})

	t.Run("begin failure", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{
			googleEnabled: true,
			beginLoginFunc: func(context.Context, string) (*service.BeginLoginResult, error) {
				return nil, errors.New("entropy exhausted")
			},
		})
		rec := httptest.NewRecorder()
		h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "entropy")
	})
}

func googleCallbackRequest(query string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/google?"+query, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestAuthHandlers_GoogleCallback(t *testing.T) {
	stateCookie := &http.Cookie{Name: oauthStateCookie, Value: "s1"}
	nonceCookie := &http.Cookie{Name: oauthNonceCookie, Value: "n1"}

	t.Run("success", func(t *testing.T) {
		var got service.CompleteLoginInput
		h := newAuthHandlers(&mockAuthService{
			completeLoginFunc: func(_ context.Context, in service.CompleteLoginInput) (*service.ExchangeResult, error) {
				got = in
				return testExchangeResult(), nil
			},
		})
		rec := httptest.NewRecorder()
		h.GoogleCallback(rec, googleCallbackRequest("code=c1&state=s1",
			stateCookie, nonceCookie, &http.Cookie{Name: postLoginCookie, Value: "/dashboard"}))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), `<meta http-equiv="refresh" content="0;url=/dashboard">`)
		assert.Contains(t, rec.Body.String(), `<a href="/dashboard">`)
		assert.Equal(t, service.CompleteLoginInput{Code: "c1", State: "s1", Nonce: "n1"}, got)
		assert.Equal(t, "T1", cookieByName(rec, AccessTokenCookie).Value)
		assert.Equal(t, -1, cookieByName(rec, oauthStateCookie).MaxAge)
	})

	t.Run("defaults to user page", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{})
		rec := httptest.NewRecorder()
		h.GoogleCallback(rec, googleCallbackRequest("code=c1&state=s1", stateCookie, nonceCookie))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `content="0;url=/user"`)
	})

	t.Run("landing page escapes the destination", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{})
		rec := httptest.NewRecorder()
		h.GoogleCallback(rec, googleCallbackRequest("code=c1&state=s1", stateCookie, nonceCookie,
			&http.Cookie{Name: postLoginCookie, Value: "/user?a=1&b=<x>"}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `content="0;url=/user?a=1&amp;b=&lt;x&gt;"`)
		assert.NotContains(t, rec.Body.String(), "<x>")
		assert.Equal(t, "T1", cookieByName(rec, AccessTokenCookie).Value)
	})

	t.Run("consent denied", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{})
		rec := httptest.NewRecorder()
		h.GoogleCallback(rec, googleCallbackRequest("error=access_denied&state=s1", stateCookie))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/auth/signin?error=google", rec.Header().Get("Location"))
	})

	tests := []struct {
		name     string
		req      *http.Request
		wantCode string
	}{
		{"missing code", googleCallbackRequest("state=s1", stateCookie, nonceCookie), "missing_code"},
		{"missing state", googleCallbackRequest("code=c1", stateCookie, nonceCookie), "missing_state"},
		{"state mismatch", googleCallbackRequest("code=c1&state=other", stateCookie, nonceCookie), "invalid_state"},
		{"no state cookie", googleCallbackRequest("code=c1&state=s1", nonceCookie), "invalid_state"},
		{"no nonce cookie", googleCallbackRequest("code=c1&state=s1", stateCookie), "missing_nonce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHandlers(&mockAuthService{})
			rec := httptest.NewRecorder()
			h.GoogleCallback(rec, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeBody(t, rec)["error"])
			assert.Nil(t, cookieByName(rec, AccessTokenCookie))
		})
	}

	t.Run("exchange failure", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{
			completeLoginFunc: func(context.Context, service.CompleteLoginInput) (*service.ExchangeResult, error) {
				return nil, domainauth.UnverifiedFailure("")
			},
		})
		rec := httptest.NewRecorder()
		h.GoogleCallback(rec, googleCallbackRequest("code=c1&state=s1", stateCookie, nonceCookie))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "unverified_email", decodeBody(t, rec)["error"])
	})
}

func withSessionCookies(req *http.Request, access, refresh string) *http.Request {
	if access != "" {
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
	}
	if refresh != "" {
		req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: refresh})
	}
	return req
}

func TestAuthHandlers_Session(t *testing.T) {
	t.Run("no cookie", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{})
		rec := httptest.NewRecorder()
		h.Session(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
	})

	t.Run("authenticated", func(t *testing.T) {
		var token string
		h := newAuthHandlers(&mockAuthService{
			currentUserFunc: func(_ context.Context, accessToken string) (domainauth.NormalizedUser, error) {
				token = accessToken
				return testExchangeResult().User, nil
			},
		})
		rec := httptest.NewRecorder()
		h.Session(rec, withSessionCookies(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "T1", ""))
		assert.Equal(t, "T1", token)
		assert.JSONEq(t, `{"authenticated":true,"user":{"id":"u1","email":"a@b.com","name":null,"image":null,"role":"USER"}}`, rec.Body.String())
	})

	t.Run("rejected token clears cookies", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{
			currentUserFunc: func(context.Context, string) (domainauth.NormalizedUser, error) {
				return domainauth.NormalizedUser{}, domainauth.InvalidFailure(nil)
			},
		})
		rec := httptest.NewRecorder()
		h.Session(rec, withSessionCookies(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "T1", "T2"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
		assert.Equal(t, -1, cookieByName(rec, AccessTokenCookie).MaxAge)
	})

	t.Run("backend down keeps cookies", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{
			currentUserFunc: func(context.Context, string) (domainauth.NormalizedUser, error) {
				return domainauth.NormalizedUser{}, domainauth.UpstreamFailure(0, "backend unreachable", nil)
			},
		})
		rec := httptest.NewRecorder()
		h.Session(rec, withSessionCookies(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "T1", ""))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Nil(t, cookieByName(rec, AccessTokenCookie))
	})
}

func TestAuthHandlers_Refresh(t *testing.T) {
	t.Run("no refresh cookie", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{})
		rec := httptest.NewRecorder()
		h.Refresh(rec, withSessionCookies(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), "T1", ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rewrites cookies", func(t *testing.T) {
		var used string
		h := newAuthHandlers(&mockAuthService{
			refreshFunc: func(_ context.Context, refreshToken string) (domainauth.TokenPair, error) {
				used = refreshToken
				return domainauth.TokenPair{AccessToken: "T1-new", RefreshToken: "T2-new"}, nil
			},
		})
		rec := httptest.NewRecorder()
		h.Refresh(rec, withSessionCookies(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), "T1", "T2"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "T2", used)
		assert.Equal(t, "T1-new", cookieByName(rec, AccessTokenCookie).Value)
		assert.Equal(t, "T2-new", cookieByName(rec, RefreshTokenCookie).Value)
	})

	t.Run("rejected refresh clears cookies", func(t *testing.T) {
		h := newAuthHandlers(&mockAuthService{
			refreshFunc: func(context.Context, string) (domainauth.TokenPair, error) {
				return domainauth.TokenPair{}, domainauth.InvalidFailure(nil)
			},
		})
		rec := httptest.NewRecorder()
		h.Refresh(rec, withSessionCookies(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), "", "T2"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, -1, cookieByName(rec, RefreshTokenCookie).MaxAge)
	})
}

func TestAuthHandlers_Logout(t *testing.T) {
	var revoked string
	h := newAuthHandlers(&mockAuthService{
		revokeFunc: func(_ context.Context, accessToken string) error {
			revoked = accessToken
			return domainauth.UpstreamFailure(0, "backend unreachable", nil)
		},
	})

	rec := httptest.NewRecorder()
	h.Logout(rec, withSessionCookies(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), "T1", "T2"))

	assert.Equal(t, http.StatusOK, rec.Code, "revoke failure does not fail logout")
	assert.Equal(t, "T1", revoked)
	assert.Equal(t, -1, cookieByName(rec, AccessTokenCookie).MaxAge)
	assert.Equal(t, -1, cookieByName(rec, RefreshTokenCookie).MaxAge)

	revoked = ""
	rec = httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, revoked)
}

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                      "/",
		"/user":                 "/user",
		"/user/projects?tab=1":  "/user/projects?tab=1",
		"https://evil.example/": "/",
		"//evil.example":        "/",
		"relative":              "/",
		"javascript:alert(1)":   "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), in)
	}
}
