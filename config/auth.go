package config

import "strings"

// GoogleConfig contains Google sign-in configuration.
//
// ClientID alone enables ID-token sign-in (POST /api/auth/callback/google).
// ClientSecret and RedirectURL additionally enable the redirect-based flow.
type GoogleConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/api/auth/callback/google"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	// IssuerURL overrides the Google issuer, e.g. for a local OIDC emulator.
	IssuerURL string `env:"ISSUER_URL"`
}

// Sanitize trims whitespace from credentials copied out of consoles.
func (g *GoogleConfig) Sanitize() {
	g.ClientID = strings.TrimSpace(g.ClientID)
	g.ClientSecret = strings.TrimSpace(g.ClientSecret)
	g.RedirectURL = strings.TrimSpace(g.RedirectURL)
	g.IssuerURL = strings.TrimSpace(g.IssuerURL)
}

// Enabled reports whether Google ID tokens can be verified.
func (g *GoogleConfig) Enabled() bool { return g.ClientID != "" }

// CodeFlowEnabled reports whether the redirect-based flow can run.
func (g *GoogleConfig) CodeFlowEnabled() bool {
	return g.Enabled() && g.ClientSecret != "" && g.RedirectURL != ""
}
