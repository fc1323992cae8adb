// Package auth defines the optional authentication and authorization
// boundary consulted by the protocol front-end before executing tool calls.
package auth

import (
	"context"
	"strings"

	"github.com/sciforge/toolbridge/protocol"
)

// Principal represents the authenticated entity (e.g. an agent client) after
// successful token validation. It carries the claims from the token.
type Principal interface {
	// GetClaims returns the claims associated with the principal.
	GetClaims() map[string]interface{}
	// GetSubject returns a unique identifier for the principal.
	GetSubject() string
}

// TokenValidator validates access tokens presented with protocol operations.
type TokenValidator interface {
	// ValidateToken attempts to validate the given token string, returning
	// the authenticated Principal on success.
	ValidateToken(ctx context.Context, tokenString string) (Principal, error)
}

// CallPermission describes a pending tools/call for permission checks. The
// annotation hints come from the annotation resolver.
type CallPermission struct {
	Tool        string
	ReadOnly    bool
	Destructive bool
}

// PermissionChecker decides whether a principal may perform a tool call.
type PermissionChecker interface {
	// CheckPermission returns nil if authorized, or an unauthorized bridge
	// error otherwise.
	CheckPermission(ctx context.Context, principal Principal, perm CallPermission) error
}

// --- Context Handling ---

type principalKeyType struct{}

var principalKey = principalKeyType{}

// ContextWithPrincipal returns a new context with the given Principal embedded.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext retrieves the Principal from the context, if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// --- Default Implementations ---

// AllowAll grants every call once authentication succeeded.
type AllowAll struct{}

// CheckPermission implements PermissionChecker.
func (AllowAll) CheckPermission(ctx context.Context, principal Principal, perm CallPermission) error {
	if principal == nil {
		return protocol.NewError(protocol.KindUnauthorized, "no authenticated principal")
	}
	return nil
}

var _ PermissionChecker = AllowAll{}

// ScopeChecker requires a scope claim for calls to tools that are not
// read-only; destructive tools additionally require DestructiveScope when set.
type ScopeChecker struct {
	// WriteScope is required for any non-read-only tool. Default "tools:write".
	WriteScope string
	// DestructiveScope, when non-empty, is additionally required for
	// destructive tools.
	DestructiveScope string
}

// CheckPermission implements PermissionChecker.
func (c ScopeChecker) CheckPermission(ctx context.Context, principal Principal, perm CallPermission) error {
	if principal == nil {
		return protocol.NewError(protocol.KindUnauthorized, "no authenticated principal")
	}
	if perm.ReadOnly && !perm.Destructive {
		return nil
	}

	scopes := scopesOf(principal)
	writeScope := c.WriteScope
	if writeScope == "" {
		writeScope = "tools:write"
	}
	if !scopes[writeScope] {
		return protocol.NewError(protocol.KindUnauthorized,
			"tool %q requires scope %q", perm.Tool, writeScope)
	}
	if perm.Destructive && c.DestructiveScope != "" && !scopes[c.DestructiveScope] {
		return protocol.NewError(protocol.KindUnauthorized,
			"destructive tool %q requires scope %q", perm.Tool, c.DestructiveScope)
	}
	return nil
}

var _ PermissionChecker = ScopeChecker{}

// scopesOf extracts the space-delimited "scope" claim (or a "scopes" list).
func scopesOf(principal Principal) map[string]bool {
	out := make(map[string]bool)
	claims := principal.GetClaims()
	if claims == nil {
		return out
	}
	if s, ok := claims["scope"].(string); ok {
		for _, scope := range strings.Fields(s) {
			out[scope] = true
		}
	}
	if list, ok := claims["scopes"].([]interface{}); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}
