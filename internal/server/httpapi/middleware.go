package httpapi

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/apperr"
	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/logging"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/dmitrijs2005/assistauth/internal/server/ratelimit"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxUserKey struct{}

func userFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxUserKey{}).(*models.User)
	return u
}

// clientIP is the remote address without port. RealIP runs first, so
// proxy headers are already applied.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}

const maxRequestIDLen = 64

// requestID takes X-Request-ID from the client or makes one, echoes it and
// puts it into the context for logging.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(common.RequestIDHeaderName)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(common.RequestIDHeaderName, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_ip", clientIP(r),
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

// recoverer turns a panic into a logged Internal error response.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error(r.Context(), "panic", "panic", rec, "stack", string(debug.Stack()))
				h.respondError(w, r, apperr.Internal(fmt.Errorf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate requires a valid bearer access token and stores the user in
// the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || token == "" {
			h.respondError(w, r, apperr.Unauthorized("missing bearer token"))
			return
		}

		user, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			h.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, user)))
	})
}

// requireAdmin rejects users without an admin role.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := userFromContext(r.Context()); u == nil || !u.Role.IsAdmin() {
			h.respondError(w, r, apperr.Forbidden("insufficient permissions"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit throttles by client IP. Limiter failures let the request
// through.
func (h *Handler) rateLimit(l ratelimit.Limiter, rps float64) func(http.Handler) http.Handler {
	retryAfter := "1"
	if rps > 0 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / rps)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				h.logger.Warn(r.Context(), "rate limiter unavailable", "error", err)
				allowed = true
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				h.respondError(w, r, apperr.TooManyRequests("too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
