package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/pkg/volmgr"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext retrieves JWT claims placed by the JWTAuth
// middleware, or nil outside an authenticated route.
func GetClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// JWTAuth validates Bearer tokens and stores the claims in the request
// context. Missing or invalid tokens get a 401 problem response.
func JWTAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				unauthorized(w, "Authorization header required")
				return
			}

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestCounter counts each API request against the manager's service-wide
// outstanding counter, which gates the shutdown watchdog. Requests arriving
// after shutdown started get a 503.
func requestCounter(mgr *volmgr.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := mgr.BeginServiceRequest(); err != nil {
				serviceUnavailable(w, "shutdown in progress")
				return
			}
			defer mgr.EndServiceRequest()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs each request through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.KeyClientIP, r.RemoteAddr,
			logger.KeyRequestID, middleware.GetReqID(r.Context()),
			logger.DurationMs(float64(time.Since(start).Microseconds())/1000.0))
	})
}
