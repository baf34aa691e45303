package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCodeFlow_Begin_Defaults(t *testing.T) {
	flow := NewMockCodeFlow()
	ctx := context.Background()

	input := ports.BeginInput{RedirectURL: "http://localhost:3000/api/auth/callback/google"}
	authURL, state, nonce, err := flow.Begin(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	// Second call should increment counters
	_, state2, nonce2, err := flow.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "state-2", state2)
	assert.Equal(t, "nonce-2", nonce2)
}

func TestMockCodeFlow_Exchange(t *testing.T) {
	flow := NewMockCodeFlow()
	ctx := context.Background()

	tok, err := flow.Exchange(ctx, ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "mock-id-token", tok)

	_, err = flow.Exchange(ctx, ports.ExchangeInput{})
	require.Error(t, err)

	flow.ExchangeFunc = func(context.Context, ports.ExchangeInput) (string, error) {
		return "", errors.New("denied")
	}
	_, err = flow.Exchange(ctx, ports.ExchangeInput{Code: "c"})
	require.EqualError(t, err, "denied")
}

func TestStubVerifier(t *testing.T) {
	v := &StubVerifier{Identities: map[string]ports.ExternalIdentity{
		"good": {Subject: "g-1", Email: "a@b.com", EmailVerified: true},
	}}

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "g-1", id.Subject)

	_, err = v.Verify(context.Background(), "forged")
	require.Error(t, err)
}

func TestMemorySessionCache(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemorySessionCache()
	cache.Now = func() time.Time { return now }
	ctx := context.Background()
	user := domainauth.NormalizedUser{ID: "u1", Email: "a@b.com", Role: domainauth.RoleUser}

	require.NoError(t, cache.Put(ctx, "T1", user, time.Minute))
	require.Error(t, cache.Put(ctx, "", user, time.Minute))

	got, ok, err := cache.Get(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, user, got)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, cache.Put(ctx, "T2", user, time.Minute))
	require.NoError(t, cache.Delete(ctx, "T2"))
	_, ok, _ = cache.Get(ctx, "T2")
	assert.False(t, ok)
}
