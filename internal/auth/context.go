package auth

import "context"

type contextKey string

const userContextKey contextKey = "user"

// WithClaims attaches resolved identity claims to a request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

// ClaimsFromContext retrieves identity claims attached by the request gate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(userContextKey).(*Claims)
	return claims, ok
}
