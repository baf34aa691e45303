package service

import (
	"context"
	"errors"
	"testing"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/mocks"
	mockauth "github.com/fundwell/fundwell-web/internal/mocks/auth"
	"github.com/fundwell/fundwell-web/internal/observability/statsd"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestService(t *testing.T, opts AuthServiceOptions) (*AuthService, *mocks.MockBackend) {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	opts.Backend = backend
	return NewAuthService(opts), backend
}

func verifiedUser() domainauth.RawUser {
	return domainauth.RawUser{
		"_id":        "u-42",
		"email":      "a@b.com",
		"roles":      []any{"ADMIN", "USER"},
		"isVerified": true,
		"profile":    map[string]any{"firstName": "Ada", "lastName": "Lovelace"},
	}
}

func TestNewAuthService_Defaults(t *testing.T) {
	svc := NewAuthService(AuthServiceOptions{})
	assert.Equal(t, DefaultSessionCacheTTL, svc.cacheTTL)
	assert.NotNil(t, svc.logger)
	assert.False(t, svc.GoogleEnabled())
}

func TestAuthService_Exchange_Password(t *testing.T) {
	cache := mockauth.NewMemorySessionCache()
	svc, backend := newTestService(t, AuthServiceOptions{Cache: cache})
	ctx := context.Background()

	backend.EXPECT().Login(gomock.Any(), "a@b.com", "validpass").
		Return(domainauth.TokenPair{AccessToken: "T1", RefreshToken: "T2"}, nil)
	backend.EXPECT().Me(gomock.Any(), "T1").Return(verifiedUser(), nil)

	res, err := svc.Exchange(ctx, domainauth.PasswordCredentials(" a@b.com ", "validpass"))
	require.NoError(t, err)
	assert.Equal(t, "T1", res.Tokens.AccessToken)
	assert.Equal(t, "T2", res.Tokens.RefreshToken)
	assert.Equal(t, "u-42", res.User.ID)
	assert.Equal(t, domainauth.RoleAdmin, res.User.Role)
	require.NotNil(t, res.User.Name)
	assert.Equal(t, "Ada Lovelace", *res.User.Name)

	sess := res.Session()
	assert.Equal(t, res.User, sess.User)
	assert.Equal(t, res.Tokens, sess.Tokens())

	cached, ok, err := cache.Get(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, res.User, cached)
}

func TestAuthService_Exchange_UnverifiedUser(t *testing.T) {
	svc, backend := newTestService(t, AuthServiceOptions{})

	backend.EXPECT().Login(gomock.Any(), "a@b.com", "validpass").
		Return(domainauth.TokenPair{AccessToken: "T1", RefreshToken: "T2"}, nil)
	backend.EXPECT().Me(gomock.Any(), "T1").
		Return(domainauth.RawUser{"id": "u1", "email": "a@b.com", "isVerified": false}, nil)

	res, err := svc.Exchange(context.Background(), domainauth.PasswordCredentials("a@b.com", "validpass"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, domainauth.FailureUnverified, domainauth.KindOf(err))
}

func TestAuthService_Exchange_External(t *testing.T) {
	svc, backend := newTestService(t, AuthServiceOptions{})

	backend.EXPECT().LoginWithToken(gomock.Any(), "ext-token").
		Return(domainauth.TokenPair{AccessToken: "A"}, nil)
	backend.EXPECT().Me(gomock.Any(), "A").Return(domainauth.RawUser{"id": "u7"}, nil)

	res, err := svc.Exchange(context.Background(), domainauth.ExternalCredentials("ext-token"))
	require.NoError(t, err)
	assert.Equal(t, "u7", res.User.ID)
	assert.Equal(t, domainauth.RoleUser, res.User.Role)
	assert.False(t, res.Tokens.HasRefresh())
}

func TestAuthService_Exchange_Failures(t *testing.T) {
	tests := []struct {
		name     string
		creds    domainauth.Credentials
		setup    func(b *mocks.MockBackend)
		wantKind domainauth.FailureKind
	}{
		{
			name:     "missing password",
			creds:    domainauth.PasswordCredentials("a@b.com", ""),
			setup:    func(*mocks.MockBackend) {},
			wantKind: domainauth.FailureValidation,
		},
		{
			name:     "external with email",
			creds:    domainauth.Credentials{Email: "a@b.com", ExternalToken: "x"},
			setup:    func(*mocks.MockBackend) {},
			wantKind: domainauth.FailureValidation,
		},
		{
			name:  "backend rejects credentials",
			creds: domainauth.PasswordCredentials("a@b.com", "wrong"),
			setup: func(b *mocks.MockBackend) {
				b.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domainauth.TokenPair{}, domainauth.InvalidFailure(errors.New("401")))
			},
			wantKind: domainauth.FailureInvalid,
		},
		{
			name:  "token pair without access token",
			creds: domainauth.PasswordCredentials("a@b.com", "pw"),
			setup: func(b *mocks.MockBackend) {
				b.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domainauth.TokenPair{RefreshToken: "R"}, nil)
			},
			wantKind: domainauth.FailureInvalid,
		},
		{
			name:  "backend unreachable",
			creds: domainauth.PasswordCredentials("a@b.com", "pw"),
			setup: func(b *mocks.MockBackend) {
				b.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domainauth.TokenPair{}, domainauth.UpstreamFailure(0, "backend unreachable", errors.New("dial")))
			},
			wantKind: domainauth.FailureUpstream,
		},
		{
			name:  "user fetch fails upstream",
			creds: domainauth.PasswordCredentials("a@b.com", "pw"),
			setup: func(b *mocks.MockBackend) {
				b.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domainauth.TokenPair{AccessToken: "T"}, nil)
				b.EXPECT().Me(gomock.Any(), "T").
					Return(nil, domainauth.UpstreamFailure(503, "maintenance", nil))
			},
			wantKind: domainauth.FailureUpstream,
		},
		{
			name:  "backend flags unverified",
			creds: domainauth.PasswordCredentials("a@b.com", "pw"),
			setup: func(b *mocks.MockBackend) {
				b.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domainauth.TokenPair{}, domainauth.UnverifiedFailure("Email not verified"))
			},
			wantKind: domainauth.FailureUnverified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, backend := newTestService(t, AuthServiceOptions{})
			tt.setup(backend)

			_, err := svc.Exchange(context.Background(), tt.creds)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domainauth.KindOf(err))
		})
	}
}

func TestAuthService_CurrentUser(t *testing.T) {
	t.Run("served from cache", func(t *testing.T) {
		cache := mockauth.NewMemorySessionCache()
		svc, _ := newTestService(t, AuthServiceOptions{Cache: cache})
		user := domainauth.NormalizedUser{ID: "u1", Role: domainauth.RoleUser}
		require.NoError(t, cache.Put(context.Background(), "T1", user, time.Minute))

		got, err := svc.CurrentUser(context.Background(), "T1")
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("cache miss fetches and stores", func(t *testing.T) {
		cache := mockauth.NewMemorySessionCache()
		svc, backend := newTestService(t, AuthServiceOptions{Cache: cache})
		backend.EXPECT().Me(gomock.Any(), "T1").Return(domainauth.RawUser{"id": "u1"}, nil).Times(1)

		first, err := svc.CurrentUser(context.Background(), "T1")
		require.NoError(t, err)
		second, err := svc.CurrentUser(context.Background(), "T1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("cache error falls back to backend", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cache := mocks.NewMockSessionCache(ctrl)
		svc, backend := newTestService(t, AuthServiceOptions{Cache: cache})

		cache.EXPECT().Get(gomock.Any(), "T1").Return(domainauth.NormalizedUser{}, false, errors.New("redis down"))
		backend.EXPECT().Me(gomock.Any(), "T1").Return(domainauth.RawUser{"id": "u1"}, nil)
		cache.EXPECT().Put(gomock.Any(), "T1", gomock.Any(), DefaultSessionCacheTTL).Return(errors.New("redis down"))

		got, err := svc.CurrentUser(context.Background(), "T1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
	})

	t.Run("expired jwt rejected without backend call", func(t *testing.T) {
		svc, _ := newTestService(t, AuthServiceOptions{})
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "u1",
			"exp": time.Now().Add(-time.Minute).Unix(),
		}).SignedString([]byte("k"))
		require.NoError(t, err)

		_, err = svc.CurrentUser(context.Background(), expired)
		assert.Equal(t, domainauth.FailureInvalid, domainauth.KindOf(err))

		_, err = svc.CurrentUser(context.Background(), "")
		assert.Equal(t, domainauth.FailureInvalid, domainauth.KindOf(err))
	})

	t.Run("rejected token is evicted", func(t *testing.T) {
		cache := mockauth.NewMemorySessionCache()
		svc, backend := newTestService(t, AuthServiceOptions{Cache: cache})
		require.NoError(t, cache.Put(context.Background(), "T1", domainauth.NormalizedUser{ID: "u1"}, time.Minute))
		backend.EXPECT().Me(gomock.Any(), "T1").Return(nil, domainauth.InvalidFailure(nil))

		_, err := svc.Me(context.Background(), "T1")
		assert.Equal(t, domainauth.FailureInvalid, domainauth.KindOf(err))
		assert.Equal(t, 0, cache.Len())
	})
}

func TestAuthService_Refresh(t *testing.T) {
	svc, backend := newTestService(t, AuthServiceOptions{})
	ctx := context.Background()

	backend.EXPECT().Refresh(gomock.Any(), "R1").Return(domainauth.TokenPair{AccessToken: "A2"}, nil)
	pair, err := svc.Refresh(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.TokenPair{AccessToken: "A2", RefreshToken: "R1"}, pair)

	backend.EXPECT().Refresh(gomock.Any(), "R2").Return(domainauth.TokenPair{AccessToken: "A3", RefreshToken: "R3"}, nil)
	pair, err = svc.Refresh(ctx, "R2")
	require.NoError(t, err)
	assert.Equal(t, "R3", pair.RefreshToken)

	_, err = svc.Refresh(ctx, "")
	assert.Equal(t, domainauth.FailureInvalid, domainauth.KindOf(err))

	backend.EXPECT().Refresh(gomock.Any(), "R4").Return(domainauth.TokenPair{}, nil)
	_, err = svc.Refresh(ctx, "R4")
	assert.Equal(t, domainauth.FailureInvalid, domainauth.KindOf(err))
}

func TestAuthService_Metrics(t *testing.T) {
	rec := &statsd.Recorder{}
	svc, backend := newTestService(t, AuthServiceOptions{Cache: mockauth.NewMemorySessionCache(), Metrics: rec})
	ctx := context.Background()

	backend.EXPECT().Login(gomock.Any(), "a@b.com", "validpass").
		Return(domainauth.TokenPair{AccessToken: "T1", RefreshToken: "T2"}, nil)
	backend.EXPECT().Me(gomock.Any(), "T1").Return(verifiedUser(), nil)
	_, err := svc.Exchange(ctx, domainauth.PasswordCredentials("a@b.com", "validpass"))
	require.NoError(t, err)

	_, err = svc.CurrentUser(ctx, "T1")
	require.NoError(t, err)

	backend.EXPECT().Me(gomock.Any(), "T9").Return(domainauth.RawUser{"id": "u9"}, nil)
	_, err = svc.CurrentUser(ctx, "T9")
	require.NoError(t, err)

	backend.EXPECT().Refresh(gomock.Any(), "T2").Return(domainauth.TokenPair{}, domainauth.InvalidFailure(nil))
	_, err = svc.Refresh(ctx, "T2")
	require.Error(t, err)

	ops := rec.Named("auth.operation")
	require.Len(t, ops, 3)
	assert.Equal(t, map[string]string{"operation": "exchange", "credential": "password", "result": "success"}, ops[0].Tags)
	assert.Equal(t, map[string]string{"operation": "me", "result": "success"}, ops[1].Tags)
	assert.Equal(t, map[string]string{"operation": "refresh", "result": "invalid"}, ops[2].Tags)

	lookups := rec.Named("auth.session_cache")
	require.Len(t, lookups, 2)
	assert.Equal(t, "hit", lookups[0].Tags["result"])
	assert.Equal(t, "miss", lookups[1].Tags["result"])
}

func TestAuthService_Revoke(t *testing.T) {
	cache := mockauth.NewMemorySessionCache()
	svc, backend := newTestService(t, AuthServiceOptions{Cache: cache})
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "T1", domainauth.NormalizedUser{ID: "u1"}, time.Minute))

	backend.EXPECT().Revoke(gomock.Any(), "T1").Return(domainauth.UpstreamFailure(0, "down", nil))
	err := svc.Revoke(ctx, "T1")
	require.Error(t, err)
	assert.Equal(t, domainauth.FailureUpstream, domainauth.KindOf(err))
	assert.Equal(t, 0, cache.Len(), "cache entry removed even when backend revoke fails")

	require.NoError(t, svc.Revoke(ctx, ""))
}

func TestAuthService_Forward(t *testing.T) {
	svc, backend := newTestService(t, AuthServiceOptions{})
	req := ports.ForwardRequest{Path: "/waitlist/subscribe", Body: []byte(`{}`)}

	backend.EXPECT().Forward(gomock.Any(), req).Return(&ports.ForwardResponse{Status: 200, Body: []byte(`{"ok":true}`)}, nil)
	res, err := svc.Forward(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.OK())

	backend.EXPECT().Forward(gomock.Any(), req).Return(nil, domainauth.UpstreamFailure(0, "backend unreachable", nil))
	_, err = svc.Forward(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domainauth.FailureUpstream, domainauth.KindOf(err))
}

func TestAuthService_GoogleFlow(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		svc, _ := newTestService(t, AuthServiceOptions{})
		_, err := svc.BeginGoogleLogin(context.Background(), "/user")
		require.ErrorIs(t, err, ErrGoogleNotConfigured)
		_, err = svc.CompleteGoogleLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
		require.ErrorIs(t, err, ErrGoogleNotConfigured)
	})

	t.Run("begin and complete", func(t *testing.T) {
		flow := mockauth.NewMockCodeFlow()
		svc, backend := newTestService(t, AuthServiceOptions{CodeFlow: flow})
		assert.True(t, svc.GoogleEnabled())

		begin, err := svc.BeginGoogleLogin(context.Background(), "/user")
		require.NoError(t, err)
		assert.Equal(t, "https://mock-idp/auth", begin.AuthURL)
		assert.Equal(t, "state-1", begin.State)
		assert.Equal(t, "nonce-1", begin.Nonce)

		backend.EXPECT().LoginWithToken(gomock.Any(), "mock-id-token").Return(domainauth.TokenPair{AccessToken: "G"}, nil)
		backend.EXPECT().Me(gomock.Any(), "G").Return(domainauth.RawUser{"id": "g1"}, nil)

		res, err := svc.CompleteGoogleLogin(context.Background(), CompleteLoginInput{Code: "c", State: begin.State, Nonce: begin.Nonce})
		require.NoError(t, err)
		assert.Equal(t, "g1", res.User.ID)
	})

	t.Run("complete validates input", func(t *testing.T) {
		svc, _ := newTestService(t, AuthServiceOptions{CodeFlow: mockauth.NewMockCodeFlow()})
		_, err := svc.CompleteGoogleLogin(context.Background(), CompleteLoginInput{State: "s", Nonce: "n"})
		assert.Equal(t, domainauth.FailureValidation, domainauth.KindOf(err))
		_, err = svc.CompleteGoogleLogin(context.Background(), CompleteLoginInput{Code: "c"})
		assert.Equal(t, domainauth.FailureValidation, domainauth.KindOf(err))
	})

	t.Run("provider exchange failure is invalid", func(t *testing.T) {
		flow := mockauth.NewMockCodeFlow()
		flow.ExchangeFunc = func(context.Context, ports.ExchangeInput) (string, error) {
			return "", errors.New("nonce mismatch")
		}
		svc, _ := newTestService(t, AuthServiceOptions{CodeFlow: flow})
		_, err := svc.CompleteGoogleLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
		assert.Equal(t, domainauth.FailureInvalid, domainauth.KindOf(err))
	})
}

func TestAuthService_ExchangeGoogleToken(t *testing.T) {
	verifier := &mockauth.StubVerifier{Identities: map[string]ports.ExternalIdentity{
		"good":       {Subject: "g-1", Email: "a@b.com", EmailVerified: true},
		"unverified": {Subject: "g-2", Email: "c@d.com"},
	}}
	svc, backend := newTestService(t, AuthServiceOptions{Verifier: verifier})
	ctx := context.Background()

	_, err := svc.ExchangeGoogleToken(ctx, "  ")
	assert.Equal(t, domainauth.FailureValidation, domainauth.KindOf(err))

	_, err = svc.ExchangeGoogleToken(ctx, "forged")
	assert.Equal(t, domainauth.FailureInvalid, domainauth.KindOf(err))

	_, err = svc.ExchangeGoogleToken(ctx, "unverified")
	assert.Equal(t, domainauth.FailureUnverified, domainauth.KindOf(err))

	backend.EXPECT().LoginWithToken(gomock.Any(), "good").Return(domainauth.TokenPair{AccessToken: "A", RefreshToken: "R"}, nil)
	backend.EXPECT().Me(gomock.Any(), "A").Return(domainauth.RawUser{"id": "u1", "isVerified": true}, nil)

	res, err := svc.ExchangeGoogleToken(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
}
