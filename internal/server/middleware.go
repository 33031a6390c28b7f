// Package server carries the bearer token of an authenticated request through
// the request context.
package server

import (
	"context"
	"net/http"
	"strings"
)

type tokenContextKey struct{}

// BearerToken stores the token of an "Authorization: Bearer <token>" header
// in the request context.
func BearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := parseBearer(r.Header.Get("Authorization")); ok {
			r = r.WithContext(context.WithValue(r.Context(), tokenContextKey{}, token))
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromContext returns the token stored by BearerToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok && token != ""
}

func parseBearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// tokenFromRequest prefers the authenticated request context and falls back
// to the query parameter named param.
func tokenFromRequest(r *http.Request, param string) string {
	if token, ok := TokenFromContext(r.Context()); ok {
		return token
	}
	return r.URL.Query().Get(param)
}
