package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/S1riyS/memfs9p/server/internal/metrics"
	"github.com/S1riyS/memfs9p/server/pkg/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// unmatchedRoute labels requests that no registered pattern served.
const unmatchedRoute = "other"

// AccessMiddleware logs every request at debug level and counts it in m under
// the ServeMux pattern that served it. A nil m only disables counting.
func AccessMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.AccessMiddleware"

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			m.ObserveRequest(route, rec.status)

			logger := logging.GetLoggerFromContextWithOp(r.Context(), op)
			logger.Debug("Request served",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
