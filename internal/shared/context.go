package shared

import (
	"context"
	"time"
)

// Identity is the authenticated caller resolved from the bearer token.
type Identity struct {
	UserID string
}

// Elevation is the admin overlay attached by a valid escalation token.
type Elevation struct {
	Roles     []string
	Rights    []string
	ExpiresAt time.Time
}

type identityContextKey struct{}

type elevationContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// ContextWithElevation stores a copy of the elevation overlay in context.
func ContextWithElevation(ctx context.Context, e Elevation) context.Context {
	e.Roles = append([]string(nil), e.Roles...)
	e.Rights = append([]string(nil), e.Rights...)
	return context.WithValue(ctx, elevationContextKey{}, e)
}

// ElevationFromContext returns the elevation overlay, if any. Expired overlays are ignored.
func ElevationFromContext(ctx context.Context) (Elevation, bool) {
	e, ok := ctx.Value(elevationContextKey{}).(Elevation)
	if !ok {
		return Elevation{}, false
	}
	if !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt) {
		return Elevation{}, false
	}
	return e, true
}
