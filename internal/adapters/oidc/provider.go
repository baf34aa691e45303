package oidc

// Package oidc provides the Google sign-in adapters for the fundwell BFF.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/fundwell/fundwell-web/internal/ports"
	"golang.org/x/oauth2"
)

const (
	// GoogleIssuer is the issuer of Google ID tokens.
	GoogleIssuer = "https://accounts.google.com"

	defaultScope = "openid email profile"
)

// Provider verifies Google ID tokens and, when a client secret and redirect URL
// are configured, runs the authorization-code flow.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	codeFlow   bool

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var (
	_ ports.IDTokenVerifier  = (*Provider)(nil)
	_ ports.CodeFlowProvider = (*Provider)(nil)
)

// ProviderConfig holds configuration for the Google provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string // Optional; without it only token verification is available
	RedirectURL  string // Optional; required together with ClientSecret
	Scope        string
	IssuerURL    string       // Optional, defaults to GoogleIssuer
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a Google provider. Discovery runs once, here.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret != "" && config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required when a client secret is set")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	issuer := strings.TrimSuffix(strings.TrimSpace(config.IssuerURL), "/")
	if issuer == "" {
		issuer = GoogleIssuer
	}
	scope := config.Scope
	if strings.TrimSpace(scope) == "" {
		scope = defaultScope
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Provider{
		httpClient:   httpClient,
		codeFlow:     config.ClientSecret != "",
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       strings.Fields(scope),
			Endpoint:     op.Endpoint(),
		},
	}, nil
}

// CodeFlowEnabled reports whether Begin/Exchange can be used.
func (p *Provider) CodeFlowEnabled() bool { return p.codeFlow }

// Begin builds the Google consent URL. in.RedirectURL is the post-login
// application path and is carried by the caller, not by Google.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if !p.codeFlow {
		return "", "", "", errors.New("code flow is not configured")
	}
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// The redirect_uri must match the configured RedirectURL exactly
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange trades the authorization code for tokens, verifies the ID token and
// its nonce, and returns the raw ID token for the backend exchange.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (string, error) {
	if !p.codeFlow {
		return "", errors.New("code flow is not configured")
	}
	if in.Code == "" {
		return "", errors.New("authorization code is required")
	}
	if in.State == "" {
		return "", errors.New("state is required")
	}
	if in.Nonce == "" {
		return "", errors.New("nonce is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return "", fmt.Errorf("exchange code for token: %w", err)
	}

	rawID, err := getIDTokenFromToken(token)
	if err != nil {
		return "", err
	}
	identity, err := p.Verify(ctx, rawID)
	if err != nil {
		return "", err
	}
	if identity.Nonce != in.Nonce {
		return "", errors.New("invalid nonce")
	}
	return rawID, nil
}

// Verify checks the signature, issuer, audience and expiry of a Google ID token.
func (p *Provider) Verify(ctx context.Context, rawIDToken string) (ports.ExternalIdentity, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return ports.ExternalIdentity{}, errors.New("id token is required")
	}
	idTok, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return ports.ExternalIdentity{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims googleClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return ports.ExternalIdentity{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return mapGoogleClaims(claims), nil
}

// googleClaims is the subset of Google ID token claims we consume.
type googleClaims struct {
	Sub           string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	GivenName     string   `json:"given_name"`
	FamilyName    string   `json:"family_name"`
	Picture       string   `json:"picture"`
	Nonce         string   `json:"nonce"`
}

// flexBool accepts both true and "true"; older Google tokens used strings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		*b = flexBool(strings.EqualFold(t, "true"))
	default:
		*b = false
	}
	return nil
}

// mapGoogleClaims maps raw id token claims into an identity using precedence rules.
func mapGoogleClaims(c googleClaims) ports.ExternalIdentity {
	name := c.Name
	if name == "" {
		name = strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	}
	return ports.ExternalIdentity{
		Subject:       c.Sub,
		Email:         c.Email,
		EmailVerified: bool(c.EmailVerified),
		Name:          name,
		Picture:       c.Picture,
		Nonce:         c.Nonce,
	}
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least 'length' base64 URL-safe chars
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
