package auth

import "time"

// TokenIssuer signs claim sets
type TokenIssuer interface {
	IssueWithExpiry(claims ClaimSet, issuedAt time.Time) (IssuedToken, time.Time, error)
}

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(token IssuedToken, now time.Time) (ClaimSet, error)
}

var (
	_ TokenIssuer    = (*TokenSigner)(nil)
	_ TokenValidator = (*TokenSigner)(nil)
)

// TokenService issues and validates, TokenSigner is the implementation
type TokenService interface {
	TokenIssuer
	TokenValidator
}

var _ TokenService = (*TokenSigner)(nil)
