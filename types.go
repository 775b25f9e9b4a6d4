package auth

import (
	"context"
	"fmt"
	"strings"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// UserIdentity holds the attributes of a stored account. The password
// credential never leaves the CredentialStore.
type UserIdentity struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	Phone       string   `json:"phoneNumber,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// NewUser is the input to CredentialStore.Create
type NewUser struct {
	DisplayName string
	Email       string
	Username    string
	Phone       string
}

// CredentialStore is the system of record for identities and password hashes
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*UserIdentity, error)
	VerifyPassword(ctx context.Context, identity *UserIdentity, plaintext string) (bool, error)
	Create(ctx context.Context, user NewUser, plaintext string) (*UserIdentity, error)
	RolesOf(ctx context.Context, identity *UserIdentity) ([]string, error)
}

// AuthResult is returned by login, registration and current user requests
type AuthResult struct {
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email"`
	Token       IssuedToken `json:"token"`
}

// Principal is the identity resolved from a validated bearer token.
type Principal struct {
	Email  string
	Name   string
	Roles  []string
	Claims ClaimSet
}

// HasRole reports whether the principal carried the role at issuance time
func (p Principal) HasRole(role string) bool {
	return p.Claims.HasRole(role)
}

func principalFromClaims(claims ClaimSet) Principal {
	return Principal{
		Email:  claims.Email(),
		Name:   claims.GivenName(),
		Roles:  claims.Roles(),
		Claims: claims,
	}
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + formatLine(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + formatLine(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + formatLine(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + formatLine(msg, args...))
}

// formatLine renders key/value pairs after the message, slog style
func formatLine(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(msg, "\n"))
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return b.String()
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards everything, handy in tests
func NoopLogger() Logger {
	return noopLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

// Authenticator is the gateway surface used by the HTTP layer
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Authenticate(token string) (Principal, error)
	CurrentUser(ctx context.Context, p Principal) (*AuthResult, error)
}
