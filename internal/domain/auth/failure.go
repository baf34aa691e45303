package auth

import (
	"errors"
	"fmt"
)

// FailureKind discriminates the outcomes of an auth operation that did not succeed.
type FailureKind string

const (
	// FailureValidation means the request payload was malformed.
	FailureValidation FailureKind = "validation"
	// FailureInvalid means credentials or tokens were rejected.
	// Callers must report it generically to avoid account enumeration.
	FailureInvalid FailureKind = "invalid"
	// FailureUnverified means the account exists but its email is not verified.
	FailureUnverified FailureKind = "unverified"
	// FailureUpstream means the backend could not be reached or failed. Retryable.
	FailureUpstream FailureKind = "upstream"
	// FailureInternal is anything else.
	FailureInternal FailureKind = "internal"
)

// Failure is the error value returned by the auth path. Callers branch on Kind.
type Failure struct {
	Kind   FailureKind
	Detail string
	// Status is the upstream HTTP status when the failure came from the backend.
	Status int
	// Fields holds field-level messages for validation failures.
	Fields map[string]string
	Cause  error
}

func (f *Failure) Error() string {
	msg := string(f.Kind)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Cause)
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Cause }

// Retryable reports whether the caller may retry the operation.
func (f *Failure) Retryable() bool { return f.Kind == FailureUpstream }

// ValidationFailure builds a validation failure with field messages.
func ValidationFailure(detail string, fields map[string]string) *Failure {
	return &Failure{Kind: FailureValidation, Detail: detail, Fields: fields}
}

// InvalidFailure builds a generic authentication failure.
func InvalidFailure(cause error) *Failure {
	return &Failure{Kind: FailureInvalid, Detail: "invalid credentials", Cause: cause}
}

// UnverifiedFailure builds the distinguished unverified-email failure.
func UnverifiedFailure(detail string) *Failure {
	if detail == "" {
		detail = "email address is not verified"
	}
	return &Failure{Kind: FailureUnverified, Detail: detail}
}

// UpstreamFailure builds a retryable backend failure.
func UpstreamFailure(status int, detail string, cause error) *Failure {
	return &Failure{Kind: FailureUpstream, Status: status, Detail: detail, Cause: cause}
}

// KindOf returns the FailureKind carried by err, FailureInternal for foreign
// errors, and "" for nil.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureInternal
}

// AsFailure extracts the Failure from err, wrapping foreign errors as internal.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: FailureInternal, Cause: err}
}
