package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claim types carried in issued tokens
const (
	ClaimGivenName = "given_name"
	ClaimEmail     = "email"
	ClaimRole      = "role"
)

// Claim is a typed assertion embedded in a token
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ClaimSet is an ordered list of claims built fresh per authentication
type ClaimSet []Claim

// BuildClaims assembles the claims for an authenticated user: one
// given name (the username), one email and one role claim per distinct
// role in the order supplied.
func BuildClaims(identity UserIdentity, roles []string) ClaimSet {
	claims := make(ClaimSet, 0, 2+len(roles))
	claims = append(claims,
		Claim{Type: ClaimGivenName, Value: identity.Username},
		Claim{Type: ClaimEmail, Value: identity.Email},
	)

	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		claims = append(claims, Claim{Type: ClaimRole, Value: role})
	}

	return claims
}

// First returns the value of the first claim of the given type
func (c ClaimSet) First(claimType string) (string, bool) {
	for _, claim := range c {
		if claim.Type == claimType {
			return claim.Value, true
		}
	}
	return "", false
}

// All returns every value of the given type, in order
func (c ClaimSet) All(claimType string) []string {
	var out []string
	for _, claim := range c {
		if claim.Type == claimType {
			out = append(out, claim.Value)
		}
	}
	return out
}

func (c ClaimSet) GivenName() string {
	v, _ := c.First(ClaimGivenName)
	return v
}

func (c ClaimSet) Email() string {
	v, _ := c.First(ClaimEmail)
	return v
}

func (c ClaimSet) Roles() []string {
	return c.All(ClaimRole)
}

// HasRole checks for a role claim with the given value
func (c ClaimSet) HasRole(role string) bool {
	for _, claim := range c {
		if claim.Type == ClaimRole && claim.Value == role {
			return true
		}
	}
	return false
}

// Equal compares type and value pairwise, order matters
func (c ClaimSet) Equal(other ClaimSet) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

func (c ClaimSet) clone() ClaimSet {
	if c == nil {
		return nil
	}
	out := make(ClaimSet, len(c))
	copy(out, c)
	return out
}

// JWTClaims is the signed payload: registered claims plus the
// ordered claim set.
type JWTClaims struct {
	jwt.RegisteredClaims
	Claims ClaimSet `json:"claims"`
}
