// Package middleware provides net/http middleware over the engine's token
// validation: a bearer-token guard and a role gate.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	checkmate "github.com/Mr-ivo/CheckMate-backend"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validated identity stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*checkmate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*checkmate.AuthResult)
	return res, ok
}

// Guard validates the Authorization bearer token on every request and
// stores the resulting identity in the request context. Client IP and
// User-Agent are attached so session activity and audit events carry them.
func Guard(engine *checkmate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := checkmate.WithClientIP(r.Context(), clientIP(r))
			ctx = checkmate.WithUserAgent(ctx, r.UserAgent())

			res, err := engine.Validate(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose validated identity does not carry one
// of the allowed roles. Must run inside [Guard].
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[res.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}

	// RemoteAddr is host:port, with IPv6 hosts bracketed. SplitHostPort
	// strips both; an address without a port passes through untouched.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
