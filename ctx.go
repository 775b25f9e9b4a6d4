package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var principalCtxKey = &contextKey{"principal"}

// DefaultContextKey is the fiber locals key holding the Principal
const DefaultContextKey = "principal"

type contextKey struct {
	name string
}

// WithPrincipal stores the resolved principal in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal in the standard context
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	raw, ok := ctx.Value(principalCtxKey).(Principal)
	return raw, ok
}

// PrincipalFromFiber reads the principal stored by the auth middleware
func PrincipalFromFiber(c *fiber.Ctx, key string) (Principal, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw, ok := c.Locals(key).(Principal)
	return raw, ok
}
