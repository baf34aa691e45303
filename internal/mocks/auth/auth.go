package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CodeFlowProvider = (*MockCodeFlow)(nil)
	_ ports.IDTokenVerifier  = (*StubVerifier)(nil)
	_ ports.SessionCache     = (*MemorySessionCache)(nil)
)

// MockCodeFlow simulates an IdP code flow with deterministic state/nonce handling.
type MockCodeFlow struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (string, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	IDToken     string

	mu        sync.Mutex
	callCount int
}

// NewMockCodeFlow creates a MockCodeFlow with sensible defaults.
func NewMockCodeFlow() *MockCodeFlow {
	return &MockCodeFlow{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		IDToken:     "mock-id-token",
	}
}

func (m *MockCodeFlow) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockCodeFlow) Exchange(ctx context.Context, in ports.ExchangeInput) (string, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	if in.Code == "" {
		return "", errors.New("missing code")
	}
	if m.IDToken == "" {
		return "mock-id-token", nil
	}
	return m.IDToken, nil
}

// StubVerifier accepts tokens listed in Identities and rejects everything else.
type StubVerifier struct {
	Identities map[string]ports.ExternalIdentity
}

func (v *StubVerifier) Verify(_ context.Context, raw string) (ports.ExternalIdentity, error) {
	id, ok := v.Identities[raw]
	if !ok {
		return ports.ExternalIdentity{}, errors.New("token not recognized")
	}
	return id, nil
}

// MemorySessionCache is an in-memory session cache for unit tests.
// Entries expire according to Now, which defaults to time.Now.
type MemorySessionCache struct {
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	user      domainauth.NormalizedUser
	expiresAt time.Time
}

// NewMemorySessionCache creates a new in-memory session cache.
func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{entries: make(map[string]cacheEntry)}
}

func (m *MemorySessionCache) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemorySessionCache) Get(_ context.Context, accessToken string) (domainauth.NormalizedUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[accessToken]
	if !ok || !m.now().Before(e.expiresAt) {
		delete(m.entries, accessToken)
		return domainauth.NormalizedUser{}, false, nil
	}
	return e.user, true, nil
}

func (m *MemorySessionCache) Put(_ context.Context, accessToken string, user domainauth.NormalizedUser, ttl time.Duration) error {
	if accessToken == "" {
		return errors.New("access token cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]cacheEntry)
	}
	m.entries[accessToken] = cacheEntry{user: user, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionCache) Delete(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, accessToken)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemorySessionCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
