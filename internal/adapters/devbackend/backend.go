package devbackend

// Package devbackend provides an in-memory ports.Backend for local development
// and tests. It issues short-lived HS256 access tokens so the route guard and
// session cache see realistic expiries.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GoogleTokenPrefix marks external tokens accepted by LoginWithToken as
// "dev-google:<email>".
const GoogleTokenPrefix = "dev-google:"

// User seeds an account.
type User struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domainauth.Role
	Verified  bool
}

// Config controls the dev backend behavior.
type Config struct {
	Users           []User
	OTP             string        // default "123456"
	AccessTokenTTL  time.Duration // default 1h
	RefreshTokenTTL time.Duration // default 7d
}

type account struct {
	id string
	User
}

type refreshGrant struct {
	email     string
	expiresAt time.Time
}

// Backend implements ports.Backend in memory.
type Backend struct {
	mu         sync.Mutex
	accounts   map[string]*account // by lowercased email
	refresh    map[string]refreshGrant
	revoked    map[string]struct{}
	waitlist   map[string]struct{}
	otp        string
	accessTTL  time.Duration
	refreshTTL time.Duration
	signingKey []byte
	now        func() time.Time
}

var _ ports.Backend = (*Backend)(nil)

// New constructs a dev backend from Config.
func New(cfg Config) (*Backend, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("dev backend: generate signing key: %w", err)
	}
	b := &Backend{
		accounts:   make(map[string]*account),
		refresh:    make(map[string]refreshGrant),
		revoked:    make(map[string]struct{}),
		waitlist:   make(map[string]struct{}),
		otp:        cfg.OTP,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		signingKey: key,
		now:        time.Now,
	}
	if b.otp == "" {
		b.otp = "123456"
	}
	if b.accessTTL <= 0 {
		b.accessTTL = time.Hour
	}
	if b.refreshTTL <= 0 {
		b.refreshTTL = 7 * 24 * time.Hour
	}
	for _, u := range cfg.Users {
		if u.Email == "" || u.Password == "" {
			return nil, errors.New("dev backend: seeded users need an email and a password")
		}
		if u.Role == "" {
			u.Role = domainauth.RoleUser
		}
		b.accounts[strings.ToLower(u.Email)] = &account{id: uuid.NewString(), User: u}
	}
	return b, nil
}

// Login checks the seeded password. Unverified accounts still receive tokens;
// the user payload reports isVerified=false.
func (b *Backend) Login(_ context.Context, email, password string) (domainauth.TokenPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || acct.Password != password {
		return domainauth.TokenPair{}, domainauth.InvalidFailure(errors.New("dev backend: bad credentials"))
	}
	return b.issueLocked(acct)
}

// LoginWithToken accepts "dev-google:<email>" tokens, creating a verified
// account on first use, and previously issued access tokens.
func (b *Backend) LoginWithToken(_ context.Context, externalToken string) (domainauth.TokenPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if email, ok := strings.CutPrefix(externalToken, GoogleTokenPrefix); ok {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			return domainauth.TokenPair{}, domainauth.InvalidFailure(errors.New("dev backend: empty google subject"))
		}
		acct, exists := b.accounts[email]
		if !exists {
			acct = &account{id: uuid.NewString(), User: User{Email: email, Role: domainauth.RoleUser, Verified: true}}
			b.accounts[email] = acct
		}
		return b.issueLocked(acct)
	}

	acct, err := b.accountForTokenLocked(externalToken)
	if err != nil {
		return domainauth.TokenPair{}, err
	}
	return b.issueLocked(acct)
}

// Me returns the account behind accessToken in the nested-profile shape.
func (b *Backend) Me(_ context.Context, accessToken string) (domainauth.RawUser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, err := b.accountForTokenLocked(accessToken)
	if err != nil {
		return nil, err
	}
	return domainauth.RawUser{
		"_id":        acct.id,
		"email":      acct.Email,
		"roles":      []any{string(acct.Role)},
		"isVerified": acct.Verified,
		"profile": map[string]any{
			"firstName": acct.FirstName,
			"lastName":  acct.LastName,
		},
	}, nil
}

// Refresh rotates a refresh token.
func (b *Backend) Refresh(_ context.Context, refreshToken string) (domainauth.TokenPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	grant, ok := b.refresh[refreshToken]
	if !ok || !b.now().Before(grant.expiresAt) {
		return domainauth.TokenPair{}, domainauth.InvalidFailure(errors.New("dev backend: unknown refresh token"))
	}
	delete(b.refresh, refreshToken)
	acct, ok := b.accounts[grant.email]
	if !ok {
		return domainauth.TokenPair{}, domainauth.InvalidFailure(errors.New("dev backend: account removed"))
	}
	return b.issueLocked(acct)
}

// Revoke invalidates an access token.
func (b *Backend) Revoke(_ context.Context, accessToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.accountForTokenLocked(accessToken); err != nil {
		return err
	}
	b.revoked[accessToken] = struct{}{}
	return nil
}

// Forward serves the pass-through endpoints the BFF relays.
func (b *Backend) Forward(_ context.Context, req ports.ForwardRequest) (*ports.ForwardResponse, error) {
	var body map[string]any
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return respond(http.StatusBadRequest, map[string]any{"message": "invalid JSON body"}), nil
		}
	}
	field := func(name string) string {
		s, _ := body[name].(string)
		return strings.TrimSpace(s)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch "/" + strings.TrimPrefix(req.Path, "/") {
	case "/auth/register":
		return b.registerLocked(field("name"), field("email"), field("password")), nil
	case "/auth/forgot-password":
		return respond(http.StatusOK, map[string]any{"success": true, "message": "If the account exists, a reset email has been sent"}), nil
	case "/auth/reset-password":
		if field("token") == "" || field("newPassword") == "" {
			return respond(http.StatusBadRequest, map[string]any{"message": "token and newPassword are required"}), nil
		}
		return respond(http.StatusOK, map[string]any{"success": true, "message": "Password updated"}), nil
	case "/auth/verify-otp":
		return b.verifyOTPLocked(field("email"), field("otp")), nil
	case "/waitlist/subscribe":
		email := strings.ToLower(field("email"))
		if email == "" {
			return respond(http.StatusBadRequest, map[string]any{"message": "email is required"}), nil
		}
		if _, dup := b.waitlist[email]; dup {
			return respond(http.StatusConflict, map[string]any{"message": "Already subscribed"}), nil
		}
		b.waitlist[email] = struct{}{}
		return respond(http.StatusOK, map[string]any{"success": true, "message": "Subscribed"}), nil
	default:
		return respond(http.StatusNotFound, map[string]any{"message": "Not found"}), nil
	}
}

func (b *Backend) registerLocked(name, email, password string) *ports.ForwardResponse {
	key := strings.ToLower(email)
	if key == "" || password == "" {
		return respond(http.StatusBadRequest, map[string]any{"message": "email and password are required"})
	}
	if _, exists := b.accounts[key]; exists {
		return respond(http.StatusConflict, map[string]any{"message": "User already exists"})
	}
	first, last, _ := strings.Cut(name, " ")
	acct := &account{id: uuid.NewString(), User: User{
		Email: key, Password: password, FirstName: first, LastName: last, Role: domainauth.RoleUser,
	}}
	b.accounts[key] = acct
	return respond(http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registration successful, check your email for the verification code",
		"data":    map[string]any{"_id": acct.id, "email": acct.Email},
	})
}

func (b *Backend) verifyOTPLocked(email, otp string) *ports.ForwardResponse {
	acct, ok := b.accounts[strings.ToLower(email)]
	if !ok || otp != b.otp {
		return respond(http.StatusBadRequest, map[string]any{"message": "Invalid or expired code"})
	}
	acct.Verified = true
	return respond(http.StatusOK, map[string]any{"success": true, "message": "Email verified"})
}

func (b *Backend) issueLocked(acct *account) (domainauth.TokenPair, error) {
	now := b.now()
	claims := jwt.RegisteredClaims{
		Subject:   acct.id,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(b.accessTTL)),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingKey)
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("dev backend: sign token: %w", err)
	}
	refresh, err := randomString(43)
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("dev backend: refresh token: %w", err)
	}
	b.refresh[refresh] = refreshGrant{email: strings.ToLower(acct.Email), expiresAt: now.Add(b.refreshTTL)}
	return domainauth.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (b *Backend) accountForTokenLocked(accessToken string) (*account, error) {
	if _, gone := b.revoked[accessToken]; gone {
		return nil, domainauth.InvalidFailure(errors.New("dev backend: token revoked"))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(*jwt.Token) (any, error) {
		return b.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now))
	if err != nil {
		return nil, domainauth.InvalidFailure(fmt.Errorf("dev backend: %w", err))
	}
	for _, acct := range b.accounts {
		if acct.id == claims.Subject {
			return acct, nil
		}
	}
	return nil, domainauth.InvalidFailure(errors.New("dev backend: unknown subject"))
}

func respond(status int, body map[string]any) *ports.ForwardResponse {
	data, _ := json.Marshal(body)
	res := &ports.ForwardResponse{Status: status, Body: data}
	if !res.OK() {
		res.Message, _ = body["message"].(string)
	}
	return res
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
