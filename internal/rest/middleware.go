// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/pkg/adapters/logger"
)

// responseWriter wraps http.ResponseWriter to capture the status code for
// logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs request method, path, status, and duration.
func (s *Server) LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			s.logger.Info("request completed",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", wrapped.statusCode),
				logger.String("duration", time.Since(start).String()))
		})
	}
}

// RecoveryMiddleware recovers from panics in a handler and returns a 500
// through the standard error envelope instead of crashing the process.
func (s *Server) RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Error("panic recovered",
						logger.String("method", r.Method),
						logger.String("path", r.URL.Path),
						logger.Any("panic", rec))
					writeError(w, apperr.New(apperr.Internal, "an unexpected error occurred"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware attaches a fixed set of hardening headers to
// every response: the workbench is a local secret-handling tool, so these
// are unconditional rather than configurable.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// nonIdempotent reports whether a method mutates state and therefore needs
// CSRF and Origin checks.
func nonIdempotent(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// OriginMiddleware rejects non-idempotent requests whose Origin header is
// present and not loopback. Same-origin tools (curl, the CLI) send no
// Origin header at all and pass through; a browser tab on another site
// cannot forge a request here even with CSRF disabled, since the server
// only ever binds to loopback.
func OriginMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !nonIdempotent(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if origin == "" || isLoopbackOrigin(origin) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, apperr.New(apperr.OriginRejected, "request origin is not this loopback server"))
	})
}

func isLoopbackOrigin(origin string) bool {
	host := origin
	if i := strings.Index(origin, "://"); i >= 0 {
		host = origin[i+3:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, "/")
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// csrfTokenHeader is the header a caller must echo back on every
// non-idempotent request once it has fetched a token from GET /api/csrf.
const csrfTokenHeader = "X-Csrf-Token"

// CSRFMiddleware requires the caller to have first fetched a per-process
// token from GET /api/csrf and to echo it back exactly on every mutating
// request. Combined with OriginMiddleware this defends the loopback API
// against both a malicious page's fetch() and a malicious page's <form>.
func (s *Server) CSRFMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !nonIdempotent(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(csrfTokenHeader)
			if token == "" || token != s.csrfToken {
				writeError(w, apperr.New(apperr.CsrfRejected, "missing or invalid X-Csrf-Token header"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
