package auth

import (
	"context"
	"strings"
)

// Identity is the decoded access-token view of the caller, attached to the
// request context by the HTTP middleware.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Status string
	Roles  []string
}

// HasAnyRole reports whether the identity's role list intersects the given
// set. Comparison is case-insensitive.
func (id Identity) HasAnyRole(names ...string) bool {
	for _, want := range names {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		for _, have := range id.Roles {
			if strings.ToLower(have) == want {
				return true
			}
		}
	}
	return false
}

type identityContextKey struct{}
type refreshTokenIDContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// ContextWithRefreshTokenID stores the validated refresh token id so the
// logout handler can revoke the exact record the caller presented.
func ContextWithRefreshTokenID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, refreshTokenIDContextKey{}, id)
}

// RefreshTokenIDFromContext returns the refresh token id attached by the
// refresh-cookie middleware.
func RefreshTokenIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(refreshTokenIDContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
