package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/fundwell/fundwell-web/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// mockAuthService is a test double for service.AuthService.
type mockAuthService struct {
	exchangeFunc      func(ctx context.Context, creds domainauth.Credentials) (*service.ExchangeResult, error)
	currentUserFunc   func(ctx context.Context, accessToken string) (domainauth.NormalizedUser, error)
	refreshFunc       func(ctx context.Context, refreshToken string) (domainauth.TokenPair, error)
	revokeFunc        func(ctx context.Context, accessToken string) error
	forwardFunc       func(ctx context.Context, req ports.ForwardRequest) (*ports.ForwardResponse, error)
	googleEnabled     bool
	beginLoginFunc    func(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	completeLoginFunc func(ctx context.Context, input service.CompleteLoginInput) (*service.ExchangeResult, error)
	googleTokenFunc   func(ctx context.Context, idToken string) (*service.ExchangeResult, error)
}

func (m *mockAuthService) Exchange(ctx context.Context, creds domainauth.Credentials) (*service.ExchangeResult, error) {
	if m.exchangeFunc != nil {
		return m.exchangeFunc(ctx, creds)
	}
	return testExchangeResult(), nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, accessToken string) (domainauth.NormalizedUser, error) {
	if m.currentUserFunc != nil {
		return m.currentUserFunc(ctx, accessToken)
	}
	return testExchangeResult().User, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, refreshToken)
	}
	return domainauth.TokenPair{AccessToken: "T1-new", RefreshToken: "T2-new"}, nil
}

func (m *mockAuthService) Revoke(ctx context.Context, accessToken string) error {
	if m.revokeFunc != nil {
		return m.revokeFunc(ctx, accessToken)
	}
	return nil
}

func (m *mockAuthService) Forward(ctx context.Context, req ports.ForwardRequest) (*ports.ForwardResponse, error) {
	if m.forwardFunc != nil {
		return m.forwardFunc(ctx, req)
	}
	return &ports.ForwardResponse{Status: http.StatusOK, Body: []byte(`{"success":true}`)}, nil
}

func (m *mockAuthService) GoogleEnabled() bool { return m.googleEnabled }

func (m *mockAuthService) BeginGoogleLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error) {
	if m.beginLoginFunc != nil {
		return m.beginLoginFunc(ctx, redirectURL)
	}
	return &service.BeginLoginResult{
		AuthURL: "https://accounts.example.com/auth?state=test-state&nonce=test-nonce",
		State:   "test-state",
		Nonce:   "test-nonce",
	}, nil
}

func (m *mockAuthService) CompleteGoogleLogin(ctx context.Context, input service.CompleteLoginInput) (*service.ExchangeResult, error) {
	if m.completeLoginFunc != nil {
		return m.completeLoginFunc(ctx, input)
	}
	return testExchangeResult(), nil
}

func (m *mockAuthService) ExchangeGoogleToken(ctx context.Context, idToken string) (*service.ExchangeResult, error) {
	if m.googleTokenFunc != nil {
		return m.googleTokenFunc(ctx, idToken)
	}
	return testExchangeResult(), nil
}

func testExchangeResult() *service.ExchangeResult {
	return &service.ExchangeResult{
		Tokens: domainauth.TokenPair{AccessToken: "T1", RefreshToken: "T2"},
		User:   domainauth.NormalizedUser{ID: "u1", Email: "a@b.com", Role: domainauth.RoleUser},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	resp := rec.Result()
	defer resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// signedToken returns an HS256 JWT expiring at exp.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}
