// Package middleware provides reusable HTTP middleware for the API server.
package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// wrappedWriter captures the status code and body size written by downstream handlers.
type wrappedWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newWrappedWriter(w http.ResponseWriter) *wrappedWriter {
	return &wrappedWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *wrappedWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *wrappedWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *wrappedWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger logs method, path, status, size and duration for every request.
// Server errors are logged at error level, client errors at warn.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := newWrappedWriter(w)
		next.ServeHTTP(ww, r)

		ev := log.Info()
		switch {
		case ww.statusCode >= http.StatusInternalServerError:
			ev = log.Error()
		case ww.statusCode >= http.StatusBadRequest:
			ev = log.Warn()
		}
		ev.Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.statusCode).
			Int64("bytes", ww.written).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
