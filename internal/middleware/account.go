package middleware

import (
	"context"
	"net/http"
	"strings"
)

type accountContextKey struct{}

// AccountKey indexes the resolved account reference in the request context.
var AccountKey = accountContextKey{}

// The account reference is an opaque identity supplied by the caller: a
// stable user id, a wallet address, or an email-derived hash. Session and
// signature verification live outside this engine.
const accountHeader = "X-Account-Ref"

// Account extracts the account reference header into the request context.
func Account() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ref := strings.TrimSpace(r.Header.Get(accountHeader))
			ctx := context.WithValue(r.Context(), AccountKey, ref)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the account reference, or "" when absent.
func AccountFromContext(ctx context.Context) string {
	if ref, ok := ctx.Value(AccountKey).(string); ok {
		return ref
	}
	return ""
}
