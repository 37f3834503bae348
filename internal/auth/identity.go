package auth

import (
	"context"
	"strings"
)

// Identity represents an authenticated principal. It is produced once per
// successful authentication event and not mutated afterwards.
type Identity struct {
	Email       string
	DisplayName string
	Role        Role
	Company     string // brokerage name, empty for non-realtor roles
}

// displayNameFromEmail derives a readable name from the local part of an
// email when the provider supplied none ("jane.doe" -> "Jane Doe").
func displayNameFromEmail(email string) string {
	local := email
	if at := strings.LastIndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	if len(parts) == 0 {
		return email
	}
	return strings.Join(parts, " ")
}

type contextKey struct{}

// WithIdentity stores an Identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns nil if no identity is set.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
