package auth

import (
	"fmt"
	"unicode"
)

// MaxPasswordLength bcrypt ignores anything past 72 bytes
const MaxPasswordLength = 72

// PasswordPolicy describes the rules a new password must meet
type PasswordPolicy struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// DefaultPasswordPolicy matches the rules the account service has always
// enforced for registrations.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:              6,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}
}

// Check returns one message per violated rule, nil when the password passes
func (p PasswordPolicy) Check(password string) []string {
	var msgs []string

	if len(password) < p.MinLength {
		msgs = append(msgs, fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength))
	}
	if len(password) > MaxPasswordLength {
		msgs = append(msgs, fmt.Sprintf("Passwords must be at most %d bytes.", MaxPasswordLength))
	}

	var digit, lower, upper, other bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			other = true
		}
	}

	if p.RequireNonAlphanumeric && !other {
		msgs = append(msgs, "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !digit {
		msgs = append(msgs, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLowercase && !lower {
		msgs = append(msgs, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUppercase && !upper {
		msgs = append(msgs, "Passwords must have at least one uppercase ('A'-'Z').")
	}

	return msgs
}
