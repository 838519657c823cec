package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	"gitlab.com/timkado/api/waitlist-ops/internal/reqctx"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

const (
	// DefaultRealm is the basic-auth realm of the ops routes.
	DefaultRealm = "Orbitlink Ops"
	// unmatchedRoute labels requests chi could not route, keeping metric cardinality bounded.
	unmatchedRoute = "unmatched"
	// authAction labels refused ops requests in the ops action counter.
	authAction = "auth"
)

// requestContext binds a request-scoped logger and copies chi's request id
// onto the reqctx key read by the logger.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithLogger(r.Context(), logger.Log.With(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		))
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = reqctx.WithRequestID(ctx, id)
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instrument records request count and latency per route pattern and logs each request.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)

		observer.ObserveHTTPRequest(r.Method, route, status, duration)
		logger.FromContext(r.Context()).Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", duration),
		)
	})
}

// opsAuth guards the ops routes with HTTP basic auth. With no credentials
// configured every request is refused.
func opsAuth(user, pass, realm string) func(http.Handler) http.Handler {
	if user == "" || pass == "" {
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err := fmt.Errorf("%w: ops credentials not configured", apperrors.ErrUnauthorized)
				logger.FromContext(r.Context()).Warn("Refusing ops request", zap.Error(err))
				observer.IncOpsAction(authAction, err)
				unauthorized(w, realm)
			})
		}
	}

	basic := middleware.BasicAuth(realm, map[string]string{user: pass})
	return func(next http.Handler) http.Handler {
		return basic(withOperator(next))
	}
}

// withOperator publishes the authenticated user for reviewer defaults and log fields.
func withOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if ok && user != "" {
			r = r.WithContext(reqctx.WithOperator(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s", charset="UTF-8"`, realm))
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
