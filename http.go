package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	"github.com/smartjobassistant/go-account-auth/middleware/jwtware"
)

// ErrForbidden the principal lacks a required role
var ErrForbidden = errors.New("access denied", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden).
	WithTextCode("FORBIDDEN")

// RouteAuthenticator puts the gateway in front of fiber routes
type RouteAuthenticator struct {
	auth        Authenticator
	ContextKey  string
	TokenLookup string
	AuthScheme  string
	Logger      Logger
}

func NewHTTPAuthenticator(auther Authenticator) *RouteAuthenticator {
	return &RouteAuthenticator{
		auth:        auther,
		ContextKey:  DefaultContextKey,
		TokenLookup: "header:" + fiber.HeaderAuthorization,
		AuthScheme:  "Bearer",
		Logger:      defLogger{},
	}
}

// ProtectedRoute rejects requests without a valid bearer token before
// the handler runs. A required role adds a 403 check.
func (a *RouteAuthenticator) ProtectedRoute(requiredRole ...string) fiber.Handler {
	cfg := jwtware.Config{
		ContextKey:     a.ContextKey,
		TokenLookup:    a.TokenLookup,
		AuthScheme:     a.AuthScheme,
		ErrorHandler:   a.authErrHandler,
		TokenValidator: jwtware.TokenValidatorFunc(a.validate),
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if p, ok := claims.(Principal); ok {
				return WithPrincipal(ctx, p)
			}
			return ctx
		},
	}
	if len(requiredRole) > 0 {
		cfg.RequiredRole = requiredRole[0]
	}

	return jwtware.New(cfg)
}

// Authenticated hands the resolved principal to fn. Use it behind
// ProtectedRoute.
func (a *RouteAuthenticator) Authenticated(fn func(c *fiber.Ctx, p Principal) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFromFiber(c, a.ContextKey)
		if !ok {
			return ErrUnauthorized
		}
		return fn(c, p)
	}
}

func (a *RouteAuthenticator) validate(token string) (jwtware.AuthClaims, error) {
	p, err := a.auth.Authenticate(token)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *RouteAuthenticator) authErrHandler(c *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrAccessDenied) {
		a.Logger.Info("access denied", "path", c.OriginalURL())
		return ErrForbidden
	}

	a.Logger.Debug("authentication rejected", "path", c.OriginalURL(), "error", err)

	return ErrUnauthorized
}
