package auth

import (
	"sort"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthorized     = "UNAUTHORIZED"
	TextCodeInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	TextCodeIssuerMismatch   = "TOKEN_ISSUER_MISMATCH"
	TextCodeAudienceMismatch = "TOKEN_AUDIENCE_MISMATCH"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeConfiguration    = "CONFIGURATION_FAILURE"
	TextCodeClock            = "CLOCK_FAILURE"
	TextCodeIdentityNotFound = "IDENTITY_NOT_FOUND"
)

// ErrUnauthorized is the only authentication failure callers ever see.
// It never tells which check failed.
var ErrUnauthorized = errors.New("unauthorized", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthorized)

// ErrIdentityNotFound is returned by stores for unknown identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound).
	WithTextCode(TextCodeIdentityNotFound)

// ErrInvalidSignature the token signature does not match the payload
var ErrInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidSignature)

// ErrIssuerMismatch the token was minted by a different issuer
var ErrIssuerMismatch = errors.New("token issuer mismatch", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeIssuerMismatch)

// ErrAudienceMismatch the token was minted for a different audience
var ErrAudienceMismatch = errors.New("token audience mismatch", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeAudienceMismatch)

// ErrTokenExpired the token is past its embedded expiry
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed the token could not be decoded
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrClock issuedAt is ahead of the system clock
var ErrClock = errors.New("token issue time is ahead of the system clock", errors.CategoryInternal).
	WithCode(errors.CodeInternal).
	WithTextCode(TextCodeClock)

// ErrNoEmptyString empty passwords are never hashed
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

func newConfigError(message string) *errors.Error {
	return errors.New(message, errors.CategoryInternal).
		WithCode(errors.CodeInternal).
		WithTextCode(TextCodeConfiguration)
}

// IsConfigurationError reports a missing or invalid signing configuration
func IsConfigurationError(err error) bool {
	return hasTextCode(err, TextCodeConfiguration)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsAuthError reports failures that must surface as a 401
func IsAuthError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuth
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// ValidationErrors aggregates per field validation messages. Stores
// return it from Create, request payload validation returns it too.
type ValidationErrors struct {
	Fields map[string][]string
	order  []string
}

// NewValidationErrors returns an empty aggregate
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Fields: map[string][]string{}}
}

// Add appends a message for field
func (v *ValidationErrors) Add(field, message string) *ValidationErrors {
	if v.Fields == nil {
		v.Fields = map[string][]string{}
	}
	if _, ok := v.Fields[field]; !ok {
		v.order = append(v.order, field)
	}
	v.Fields[field] = append(v.Fields[field], message)
	return v
}

// Empty is true when nothing was added
func (v *ValidationErrors) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// Messages flattens the aggregate, fields in insertion order
func (v *ValidationErrors) Messages() []string {
	if v.Empty() {
		return nil
	}

	fields := v.order
	if len(fields) != len(v.Fields) {
		fields = make([]string, 0, len(v.Fields))
		for f := range v.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
	}

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, v.Fields[f]...)
	}
	return out
}

// OrNil returns nil when empty so callers can `return errs.OrNil()`
func (v *ValidationErrors) OrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(v.Messages(), "; ")
}
