// Package middleware provides HTTP middleware for the publish API.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// OperatorContextKey is the context key for the calling operator.
	OperatorContextKey contextKey = "operator"
)

// Operator headers set by the gateway in front of the API.
const (
	HeaderOperatorID    = "X-Operator-Id"
	HeaderOperatorName  = "X-Operator-Name"
	HeaderOperatorEmail = "X-Operator-Email"
)

// Operator is the person on whose behalf a request is made.
type Operator struct {
	ID    string
	Name  string
	Email string
}

// Auth returns middleware that checks the API key and records the operator.
// With no keys configured every caller is accepted.
func Auth(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) > 0 && !validAPIKey(apiKey(r), keys) {
				http.Error(w, "Unauthorized: invalid or missing API key", http.StatusUnauthorized)
				return
			}

			op := &Operator{
				ID:    r.Header.Get(HeaderOperatorID),
				Name:  r.Header.Get(HeaderOperatorName),
				Email: r.Header.Get(HeaderOperatorEmail),
			}
			if op.Name == "" {
				op.Name = op.ID
			}
			ctx := context.WithValue(r.Context(), OperatorContextKey, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// apiKey reads the key from X-API-Key, falling back to a bearer token.
func apiKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func validAPIKey(key string, keys []string) bool {
	if key == "" {
		return false
	}
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// GetOperator retrieves the operator from the request context.
func GetOperator(r *http.Request) *Operator {
	op, ok := r.Context().Value(OperatorContextKey).(*Operator)
	if !ok {
		return &Operator{}
	}
	return op
}
