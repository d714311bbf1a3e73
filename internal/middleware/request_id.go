package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/S1riyS/vfsd/pkg/logging"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags the request context with a request id, taken from
// the X-Request-ID header when the caller sent one, and echoes it back. The
// namespace server logs its replies under the same id.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := logging.GetRequestIDFromCtx(ctx)
		if requestID == "" {
			requestID = r.Header.Get(RequestIDHeader)
		}

		ctx = logging.MakeContextWithRequestID(ctx, requestID)

		w.Header().Set(RequestIDHeader, logging.GetRequestIDFromCtx(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs one line per request. It must run inside
// RequestIDMiddleware to pick up the id.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "middleware.LoggingMiddleware"

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger := logging.GetLoggerFromContextWithOp(r.Context(), op)
		logger.Debug("Request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)),
		)
	})
}
