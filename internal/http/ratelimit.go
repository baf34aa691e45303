package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/fundwell/fundwell-web/internal/errors"
	"github.com/fundwell/fundwell-web/internal/observability/metrics"
	"github.com/fundwell/fundwell-web/internal/observability/statsd"
	"golang.org/x/time/rate"
)

// RateLimiter enforces per-client throttling on the credential and signup
// endpoints. A nil *RateLimiter lets every request through.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	// trustProxy keys clients by the first X-Forwarded-For hop.
	trustProxy bool
	now        func() time.Time
	sink       statsd.Sink

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the provided requests-per-minute budget.
// It returns nil when requestsPerMinute is not positive.
func NewRateLimiter(requestsPerMinute int, trustProxy bool) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:      rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:      burst,
		window:     5 * time.Minute,
		trustProxy: trustProxy,
		now:        time.Now,
		clients:    make(map[string]*clientLimiter),
	}
}

// SetSink sets the metrics sink counting rejected requests.
func (l *RateLimiter) SetSink(sink statsd.Sink) {
	if l == nil {
		return
	}
	l.sink = sink
}

// Middleware returns the middleware enforcing the budget.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.reserve(l.clientKey(r))
			if delay := res.DelayFrom(l.now()); delay > 0 {
				res.CancelAt(l.now())
				metrics.EmitRateLimited(l.sink, r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(delay.Round(time.Second).Seconds())+1))
				WriteError(w, ErrorParams{
					Code:    http.StatusTooManyRequests,
					ErrCode: string(apperrors.ErrCodeRateLimited),
					Err:     apperrors.Upstream(http.StatusTooManyRequests, "Too many requests. Please slow down."),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) reserve(key string) *rate.Reservation {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[key]
	if !ok {
		l.cleanupLocked(now)
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
		l.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.ReserveN(now, 1)
}

func (l *RateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range l.clients {
		if now.Sub(entry.lastSeen) > l.window {
			delete(l.clients, key)
		}
	}
}

func (l *RateLimiter) clientKey(r *http.Request) string {
	if l.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
