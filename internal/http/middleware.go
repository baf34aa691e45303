package httpx

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fundwell/fundwell-web/internal/domain/routeguard"
	apperrors "github.com/fundwell/fundwell-web/internal/errors"
	"github.com/fundwell/fundwell-web/internal/util"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestID returns a middleware that tags each request with an ID, reusing a
// well-formed inbound X-Request-Id and echoing it on the response.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(SetRequestIDInContext(r.Context(), id)))
		})
	}
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity, as net/http does
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: string(apperrors.ErrCodeInternal),
						Err:     apperrors.Internal("Internal server error"),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RouteGuardConfig configures the RouteGuard middleware.
type RouteGuardConfig struct {
	Rules routeguard.Rules
	// Now is the clock used to judge token expiry (optional, defaults to time.Now).
	Now    func() time.Time
	Logger *slog.Logger
}

// RouteGuard returns a middleware that applies the page route guard. A request
// counts as authenticated when it carries an accessToken cookie that is not an
// expired JWT. API paths are never redirected.
func RouteGuard(cfg RouteGuardConfig) func(http.Handler) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authenticated := hasLiveSession(r, now())
			r = r.WithContext(setAuthenticatedInContext(r.Context(), authenticated))

			if isAPIPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			decision := cfg.Rules.DecideRequest(r.URL.Path, r.URL.RawQuery, authenticated)
			if decision.Action == routeguard.Allow {
				next.ServeHTTP(w, r)
				return
			}

			logger.DebugContext(r.Context(), "route guard redirect",
				"path", r.URL.Path,
				"action", decision.Action.String(),
				"location", decision.Location)
			http.Redirect(w, r, decision.Location, http.StatusSeeOther)
		})
	}
}

func hasLiveSession(r *http.Request, now time.Time) bool {
	ck, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return false
	}
	return util.TokenLive(ck.Value, now)
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// Chain applies middlewares so that the first one listed runs outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
