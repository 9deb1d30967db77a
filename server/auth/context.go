package auth

import (
	"context"
)

type contextKey string

const (
	// PrincipalContextKey is the context key for the authenticated principal
	PrincipalContextKey contextKey = "principal"
)

// WithPrincipal returns a context carrying the caller's principal
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipalFromContext retrieves the authenticated principal from the context
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

// IsSyncAdapter reports whether the caller in ctx is a sync adapter
func IsSyncAdapter(ctx context.Context) bool {
	p := GetPrincipalFromContext(ctx)
	return p != nil && p.SyncAdapter
}
