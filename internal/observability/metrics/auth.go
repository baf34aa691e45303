// Package metrics names and tags the auth metrics emitted through a statsd.Sink.
package metrics

import (
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/observability/statsd"
)

// Result tag values.
const (
	ResultSuccess = "success"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

// Operation names.
const (
	OpExchange = "exchange"
	OpRefresh  = "refresh"
	OpMe       = "me"
)

// AuthMetric describes one finished auth operation.
type AuthMetric struct {
	Operation string
	// Credential is the credential kind for exchanges, empty otherwise.
	Credential string
	Duration   time.Duration
	Err        error
}

// EmitAuthOperation counts the operation tagged with its outcome and records
// its duration. Failures are tagged with their failure kind.
func EmitAuthOperation(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    Result(in.Err),
	}
	if in.Credential != "" {
		tags["credential"] = in.Credential
	}

	sink.Count("auth.operation", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSessionCacheLookup counts a session cache hit or miss.
func EmitSessionCacheLookup(sink statsd.Sink, hit bool) {
	if sink == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	sink.Count("auth.session_cache", 1, map[string]string{"result": result})
}

// EmitRateLimited counts a request rejected by the rate limiter.
func EmitRateLimited(sink statsd.Sink, path string) {
	if sink == nil {
		return
	}
	sink.Count("http.rate_limited", 1, map[string]string{"path": path})
}

// Result maps err to a tag value: "success" or the failure kind.
func Result(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return string(domainauth.KindOf(err))
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
