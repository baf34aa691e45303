// Package routeguard decides whether a page navigation is allowed, given only
// the request path and whether the visitor holds a valid session.
package routeguard

import (
	"net/url"
	"strings"
)

// Action is the outcome of a guard decision.
type Action int

const (
	Allow Action = iota
	RedirectSignIn
	RedirectDashboard
)

func (a Action) String() string {
	switch a {
	case RedirectSignIn:
		return "redirect-signin"
	case RedirectDashboard:
		return "redirect-dashboard"
	default:
		return "allow"
	}
}

const (
	SignInPath    = "/auth/signin"
	DashboardPath = "/user"
	callbackParam = "callbackUrl"
)

// Rules lists the protected prefixes and the auth-only pages.
type Rules struct {
	Protected []string
	AuthPages []string
}

// DefaultRules returns the platform's route protection surface.
func DefaultRules() Rules {
	return Rules{
		Protected: []string{"/dashboard", "/user", "/admin"},
		AuthPages: []string{SignInPath, "/auth/signup", "/auth/forgot-password"},
	}
}

// Decision is the guard's verdict. Location is empty for Allow.
type Decision struct {
	Action   Action
	Location string
}

// Decide applies DefaultRules.
func Decide(path string, authenticated bool) Decision {
	return DefaultRules().Decide(path, authenticated)
}

// Decide returns the decision for path. It has no side effects.
// Authenticated visitors are only ever sent to DashboardPath, which is never
// an auth page, so redirects cannot loop.
func (r Rules) Decide(path string, authenticated bool) Decision {
	return r.DecideRequest(path, "", authenticated)
}

// DecideRequest is Decide for a request target. Matching uses path only;
// rawQuery is carried into the sign-in callback so the visitor lands back on
// the exact page they asked for.
func (r Rules) DecideRequest(path, rawQuery string, authenticated bool) Decision {
	path = cleanPath(path)

	if !authenticated && r.isProtected(path) {
		target := path
		if rawQuery != "" {
			target += "?" + rawQuery
		}
		return Decision{Action: RedirectSignIn, Location: signInURL(target)}
	}
	if authenticated && r.isAuthPage(path) {
		return Decision{Action: RedirectDashboard, Location: DashboardPath}
	}
	return Decision{Action: Allow}
}

// IsProtected reports whether path requires a session.
func (r Rules) IsProtected(path string) bool { return r.isProtected(cleanPath(path)) }

func (r Rules) isProtected(path string) bool {
	for _, prefix := range r.Protected {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (r Rules) isAuthPage(path string) bool {
	for _, p := range r.AuthPages {
		if path == p {
			return true
		}
	}
	return false
}

func cleanPath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// signInURL keeps slashes readable in the callback value.
func signInURL(path string) string {
	callback := strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
	return SignInPath + "?" + callbackParam + "=" + callback
}
