package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import "strings"

// Role represents an application's authorization role.
// Values mirror the backend's role strings.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// CredentialKind identifies which credential variant was supplied.
type CredentialKind string

const (
	CredentialPassword CredentialKind = "password"
	CredentialExternal CredentialKind = "external"
)

// Credentials carries either an email/password pair or an external token
// (a third-party OAuth token or a previously issued access token).
// The two variants are mutually exclusive.
type Credentials struct {
	Email         string `json:"email,omitempty"`
	Password      string `json:"password,omitempty"`
	ExternalToken string `json:"externalToken,omitempty"`
}

// PasswordCredentials builds the email/password variant.
func PasswordCredentials(email, password string) Credentials {
	return Credentials{Email: email, Password: password}
}

// ExternalCredentials builds the external-token variant.
func ExternalCredentials(token string) Credentials {
	return Credentials{ExternalToken: token}
}

// Kind reports the credential variant. It does not validate.
func (c Credentials) Kind() CredentialKind {
	if c.ExternalToken != "" {
		return CredentialExternal
	}
	return CredentialPassword
}

// Validate enforces the variant rules and returns a validation Failure
// carrying field-level messages.
func (c Credentials) Validate() error {
	fields := map[string]string{}
	email := strings.TrimSpace(c.Email)

	if c.ExternalToken != "" {
		if strings.TrimSpace(c.ExternalToken) == "" {
			fields["externalToken"] = "externalToken is required."
		}
		if email != "" || c.Password != "" {
			fields["externalToken"] = "externalToken cannot be combined with email or password."
		}
	} else {
		if email == "" {
			fields["email"] = "email is required."
		}
		if c.Password == "" {
			fields["password"] = "password is required."
		}
	}

	if len(fields) > 0 {
		return ValidationFailure("invalid credentials payload", fields)
	}
	return nil
}

// TokenPair is the access/refresh token pair issued by the backend.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Valid reports whether the pair can back an authenticated session.
func (t TokenPair) Valid() bool { return strings.TrimSpace(t.AccessToken) != "" }

// HasRefresh reports whether a refresh token is present.
func (t TokenPair) HasRefresh() bool { return strings.TrimSpace(t.RefreshToken) != "" }

// RawUser is the untrusted user payload returned by the backend.
// Shapes vary: flat or nested profile, id or _id, role or roles.
type RawUser map[string]any

// NormalizedUser is the canonical user shape used throughout the app.
type NormalizedUser struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
	Image *string `json:"image"`
	Role  Role    `json:"role"`
}

// IsAdmin reports whether the user carries the admin role.
func (u NormalizedUser) IsAdmin() bool { return u.Role == RoleAdmin }

// Raw re-shapes the user as a RawUser so it can be fed back to Normalize.
func (u NormalizedUser) Raw() RawUser {
	raw := RawUser{
		"id":    u.ID,
		"email": u.Email,
		"role":  string(u.Role),
	}
	if u.Name != nil {
		raw["name"] = *u.Name
	}
	if u.Image != nil {
		raw["image"] = *u.Image
	}
	return raw
}

// Session is one logical authenticated identity.
// The http-only cookies and the client store each hold a copy.
type Session struct {
	User         NormalizedUser `json:"user"`
	AccessToken  string         `json:"accessToken,omitempty"`
	RefreshToken string         `json:"refreshToken,omitempty"`
}

// Tokens returns the session's token pair.
func (s Session) Tokens() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}
