package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Claims represents the verified operator token.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Scopes  []string `json:"scopes"`
}

// Roles
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Scopes
const (
	ScopeRead      = "read"
	ScopeConfigure = "configure"
	ScopeSecurity  = "security"
)

// actionScopes maps each administrative action to the scope it needs.
var actionScopes = map[string]string{
	"getlog":             ScopeRead,
	"getdevicelog":       ScopeRead,
	"setclusterversion":  ScopeConfigure,
	"updatefirmware":     ScopeConfigure,
	"unlock":             ScopeSecurity,
	"lock":               ScopeSecurity,
	"erase":              ScopeSecurity,
	"instantsecureerase": ScopeSecurity,
	"seterasepin":        ScopeSecurity,
	"setlockpin":         ScopeSecurity,
	"setacl":             ScopeSecurity,
	"security":           ScopeSecurity,
}

// ErrForbidden is returned when claims lack the scope an action needs.
var ErrForbidden = errors.New("FORBIDDEN")

// ScopeFor returns the scope required by action.
func ScopeFor(action string) (string, bool) {
	scope, ok := actionScopes[action]
	return scope, ok
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

// HasRole reports whether the claims carry role.
func (c *Claims) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

// Authorize checks that the claims allow action. Unknown actions are denied.
func (c *Claims) Authorize(action string) error {
	scope, ok := ScopeFor(action)
	if !ok {
		return fmt.Errorf("%w: unknown action %s", ErrForbidden, action)
	}
	if !c.HasScope(scope) {
		return fmt.Errorf("%w: %s requires scope %q", ErrForbidden, action, scope)
	}
	return nil
}

type contextKey struct{}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}
