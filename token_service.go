package auth

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultMaxClockSkew is how far ahead of the system clock an issue
// time may be before Issue refuses it.
const DefaultMaxClockSkew = time.Minute

// IssuedToken is a compact HS256 JWT: header.payload.signature
type IssuedToken string

func (t IssuedToken) String() string { return string(t) }

// TokenSigner issues and validates self contained tokens. It holds no
// mutable state after construction and is safe for concurrent use.
type TokenSigner struct {
	key      []byte
	issuer   string
	audience string
	validity time.Duration
	maxSkew  time.Duration
	now      func() time.Time
	logger   Logger
}

// TokenSignerOption configures a TokenSigner
type TokenSignerOption func(*TokenSigner)

// WithSignerClock overrides the system clock
func WithSignerClock(now func() time.Time) TokenSignerOption {
	return func(s *TokenSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxClockSkew sets the tolerance for issue times in the future
func WithMaxClockSkew(d time.Duration) TokenSignerOption {
	return func(s *TokenSigner) {
		if d >= 0 {
			s.maxSkew = d
		}
	}
}

// WithSignerLogger sets the logger
func WithSignerLogger(logger Logger) TokenSignerOption {
	return func(s *TokenSigner) {
		s.logger = normalizeLogger(logger)
	}
}

// NewTokenSigner validates cfg and returns a signer. An invalid config
// is a ConfigurationFailure.
func NewTokenSigner(cfg TokenConfig, opts ...TokenSignerOption) (*TokenSigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key := []byte(cfg.Secret.Value())
	s := &TokenSigner{
		key:      append([]byte(nil), key...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		validity: cfg.Validity,
		maxSkew:  DefaultMaxClockSkew,
		now:      time.Now,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

func (s *TokenSigner) Issuer() string          { return s.issuer }
func (s *TokenSigner) Audience() string        { return s.audience }
func (s *TokenSigner) Validity() time.Duration { return s.validity }

// Issue signs claims, expiring at issuedAt plus the configured validity
func (s *TokenSigner) Issue(claims ClaimSet, issuedAt time.Time) (IssuedToken, error) {
	token, _, err := s.IssueWithExpiry(claims, issuedAt)
	return token, err
}

// IssueWithExpiry is Issue that also reports the embedded expiry
func (s *TokenSigner) IssueWithExpiry(claims ClaimSet, issuedAt time.Time) (IssuedToken, time.Time, error) {
	current := s.now()
	if issuedAt.IsZero() {
		issuedAt = current
	}

	if issuedAt.After(current.Add(s.maxSkew)) {
		s.logger.Error("token issue time ahead of system clock", "issued_at", issuedAt, "now", current)
		return "", time.Time{}, ErrClock
	}

	payload := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.validity)),
		},
		Claims: claims.clone(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return IssuedToken(signed), payload.ExpiresAt.Time, nil
}

// Validate checks signature, issuer, audience and expiry against now
// and returns the embedded claims. It performs no I/O.
func (s *TokenSigner) Validate(token IssuedToken, now time.Time) (ClaimSet, error) {
	if now.IsZero() {
		now = s.now()
	}

	raw := strings.TrimSpace(string(token))
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	payload := &JWTClaims{}
	if _, err := parser.ParseWithClaims(raw, payload, s.keyFunc); err != nil {
		mapped := classifyTokenError(raw, err)
		s.logger.Debug("token validation failed", "reason", mapped.Error())
		return nil, mapped
	}

	// expired at exp, not one tick after
	if payload.ExpiresAt == nil || !now.Before(payload.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	return payload.Claims.clone(), nil
}

func (s *TokenSigner) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return s.key, nil
}

// classifyTokenError maps parser errors onto our taxonomy. Signature
// problems win over claim problems because the parser verifies the
// signature before it looks at the claims.
func classifyTokenError(raw string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		if signatureSegmentCorrupt(raw) {
			return ErrInvalidSignature
		}
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

// signatureSegmentCorrupt is true when header and payload decode but the
// signature segment does not.
func signatureSegmentCorrupt(raw string) bool {
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) != 3 {
		return false
	}
	enc := base64.RawURLEncoding.Strict()
	if _, err := enc.DecodeString(parts[0]); err != nil {
		return false
	}
	if _, err := enc.DecodeString(parts[1]); err != nil {
		return false
	}
	_, err := enc.DecodeString(parts[2])
	return err != nil
}
