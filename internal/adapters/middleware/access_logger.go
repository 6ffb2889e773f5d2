package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const skipAccessLogKey = "skip_access_log"

// AccessLogger logs one structured line per HTTP request handled by the
// topology library's companion health/readiness server.
type AccessLogger struct {
	logger zerolog.Logger
}

func NewAccessLogger(logger zerolog.Logger) *AccessLogger {
	return &AccessLogger{
		logger: logger.With().Str("component", "http_access").Logger(),
	}
}

func newResponseWriter(w http.ResponseWriter) *FlushableResponseWriter {
	return NewFlushableResponseWriter(w)
}

// Middleware times the downstream handler and logs the outcome at a level
// derived from the response status: 5xx as Error, 4xx as Warn, everything
// else as Info. A request carrying skipAccessLogKey=true in its context
// (set by the health-check filter) is passed through unlogged.
func (a *AccessLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip, ok := r.Context().Value(skipAccessLogKey).(bool); ok && skip {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()
		wrapped := NewFlushableResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		event := apply(a.logEvent(wrapped.StatusCode()), r, wrapped, time.Since(start))
		event.Msg("HTTP request completed")
	})
}

func (a *AccessLogger) logEvent(statusCode int) *zerolog.Event {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return a.logger.Error()
	case statusCode >= http.StatusBadRequest:
		return a.logger.Warn()
	default:
		return a.logger.Info()
	}
}

// apply populates the common request/response fields shared by every log
// level so Middleware doesn't repeat them per status-code branch.
func apply(e *zerolog.Event, r *http.Request, w *FlushableResponseWriter, duration time.Duration) *zerolog.Event {
	e.Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("query", r.URL.RawQuery).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Str("proto", r.Proto).
		Str("host", r.Host).
		Int("status_code", w.StatusCode()).
		Int64("response_size_bytes", w.BytesWritten()).
		Dur("duration", duration).
		Float64("duration_ms", float64(duration.Milliseconds()))

	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		e.Str("request_id", requestID)
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		e.Str("trace_id", traceID)
	}

	if referer := r.Referer(); referer != "" {
		e.Str("referer", referer)
	}

	return e
}
