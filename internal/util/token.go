package util //nolint:revive // package name util hosts small helpers shared by service and transport code

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The backend owns the signing key, so the claim is only used as a hint for
// cache lifetimes and route guarding; the backend remains authoritative.
// ok is false when the token is not a JWT or carries no exp claim.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// TokenLive reports whether token is non-empty and, when it is a JWT with an
// exp claim, not yet expired at now. Opaque tokens are considered live.
func TokenLive(token string, now time.Time) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	exp, ok := TokenExpiry(token)
	if !ok {
		return true
	}
	return now.Before(exp)
}

// TTLUntilExpiry returns the time remaining before token expires, capped at
// limit. Tokens without an exp claim get limit. A non-positive result means
// the token has already expired.
func TTLUntilExpiry(token string, now time.Time, limit time.Duration) time.Duration {
	exp, ok := TokenExpiry(token)
	if !ok {
		return limit
	}
	if remaining := exp.Sub(now); remaining < limit {
		return remaining
	}
	return limit
}
