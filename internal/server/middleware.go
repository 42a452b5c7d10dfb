package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/sitrep-go/internal/logging"
)

// requestIDHeader carries the request ID in both directions.
const requestIDHeader = "X-Request-ID"

// maxRequestIDLen caps inbound request IDs that are reused in logs.
const maxRequestIDLen = 64

// requestLogger attaches a request-scoped logger to the context and logs one
// line per request. An inbound X-Request-ID is reused when it is short and
// printable; otherwise a random one is generated. The ID is echoed in the
// response. 5xx responses log at error level.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if !validRequestID(reqID) {
			reqID = newRequestID()
		}
		w.Header().Set(requestIDHeader, reqID)

		log := base.With(
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(logging.WithLogger(r.Context(), log))

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(r.Context(), level, "request",
			slog.Int("status", rw.status),
			slog.Int("bytes", rw.bytes),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// responseWriter records the status code and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

// newRequestID returns 8 random bytes as hex.
func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
