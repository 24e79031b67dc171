package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/optsync/idgen"
)

// RequestID tags each request with an id (echoed in X-Request-ID, or taken
// from the client's header when present) and a logger carrying it, and
// logs the request once it completes.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	gen := idgen.Prefixed("req_", idgen.UUIDv7())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = gen()
			}
			w.Header().Set("X-Request-ID", id)

			log := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			ctx = context.WithValue(ctx, loggerKey, log)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(ctx))
			log.Info("shield: request", "status", sw.status, "duration", time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
