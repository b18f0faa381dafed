// Package auth verifies bearer credentials and operator privilege for the HTTP
// surface.
package auth

import (
	"context"
	"strings"
)

const OperatorRole = "admin"

// Identity is a verified caller.
type Identity struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IdentityProvider turns a bearer credential into a verified identity. It returns
// an AUTHENTICATION_ERROR for any credential it cannot verify.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// OperatorChecker decides whether a verified identity may use the admin surface.
type OperatorChecker interface {
	IsOperator(ctx context.Context, id *Identity) (bool, error)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
