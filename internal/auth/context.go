package auth

import (
	"context"

	"github.com/wolfeidau/ownerportal/internal/models"
)

type contextKey int

const (
	principalContextKey contextKey = iota
)

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalContextKey).(*models.Principal)
	return p
}
