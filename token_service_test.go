package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/smartjobassistant/go-account-auth"
)

var issuedAt = time.Unix(1_700_000_000, 0).UTC()

func newTestSigner(t *testing.T, mutate ...func(*auth.TokenConfig)) *auth.TokenSigner {
	t.Helper()
	cfg := testTokenConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	signer, err := auth.NewTokenSigner(cfg, auth.WithSignerClock(func() time.Time {
		return issuedAt
	}), auth.WithSignerLogger(auth.NoopLogger()))
	require.NoError(t, err)
	return signer
}

func aliceClaims() auth.ClaimSet {
	return auth.BuildClaims(auth.UserIdentity{
		Email:    "alice@example.com",
		Username: "alice",
	}, []string{"admin"})
}

func TestNewTokenSigner_Configuration(t *testing.T) {
	cases := map[string]func(*auth.TokenConfig){
		"empty secret":    func(c *auth.TokenConfig) { c.Secret = "" },
		"short secret":    func(c *auth.TokenConfig) { c.Secret = "too-short" },
		"empty issuer":    func(c *auth.TokenConfig) { c.Issuer = "" },
		"empty audience":  func(c *auth.TokenConfig) { c.Audience = " " },
		"zero validity":   func(c *auth.TokenConfig) { c.Validity = 0 },
		"negative window": func(c *auth.TokenConfig) { c.Validity = -time.Hour },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testTokenConfig()
			mutate(&cfg)

			signer, err := auth.NewTokenSigner(cfg)
			require.Error(t, err)
			assert.Nil(t, signer)
			assert.True(t, auth.IsConfigurationError(err))
			assert.NotContains(t, err.Error(), testSecret)
		})
	}
}

func TestTokenSigner_RoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	claims := aliceClaims()

	token, exp, err := signer.IssueWithExpiry(claims, issuedAt)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(48*time.Hour), exp.UTC())
	assert.Len(t, strings.Split(token.String(), "."), 3)

	for _, now := range []time.Time{
		issuedAt,
		issuedAt.Add(time.Hour),
		exp.Add(-time.Second),
	} {
		got, err := signer.Validate(token, now)
		require.NoError(t, err, "now=%s", now)
		assert.True(t, claims.Equal(got))
	}
}

func TestTokenSigner_AliceScenario(t *testing.T) {
	signer := newTestSigner(t)

	token, err := signer.Issue(aliceClaims(), issuedAt)
	require.NoError(t, err)

	parsed := &auth.JWTClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token.String(), parsed)
	require.NoError(t, err)

	assert.Equal(t, []string{"admin"}, parsed.Claims.Roles())
	assert.Equal(t, []string{"alice@example.com"}, parsed.Claims.All(auth.ClaimEmail))
	assert.Equal(t, "https://accounts.example.com", parsed.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"https://app.example.com"}, parsed.Audience)
	assert.NotEmpty(t, parsed.ID)
}

func TestTokenSigner_Expired(t *testing.T) {
	signer := newTestSigner(t)

	token, exp, err := signer.IssueWithExpiry(aliceClaims(), issuedAt)
	require.NoError(t, err)

	for _, now := range []time.Time{exp, exp.Add(time.Nanosecond), exp.Add(24 * time.Hour)} {
		_, err := signer.Validate(token, now)
		assert.ErrorIs(t, err, auth.ErrTokenExpired, "now=%s", now)
		assert.True(t, auth.IsTokenExpiredError(err))
	}
}

func TestTokenSigner_TamperedSignature(t *testing.T) {
	signer := newTestSigner(t)

	token, err := signer.Issue(aliceClaims(), issuedAt)
	require.NoError(t, err)

	raw := token.String()
	sigStart := strings.LastIndex(raw, ".") + 1
	require.Greater(t, len(raw), sigStart)

	for i := sigStart; i < len(raw); i++ {
		for _, replacement := range []byte{'A', 'B', '_', '.', '!'} {
			if raw[i] == replacement {
				continue
			}
			tampered := raw[:i] + string(replacement) + raw[i+1:]

			claims, err := signer.Validate(auth.IssuedToken(tampered), issuedAt.Add(time.Minute))
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, auth.ErrInvalidSignature, "pos=%d char=%q", i, replacement)
		}
	}
}

func TestTokenSigner_SignatureCheckedFirst(t *testing.T) {
	signer := newTestSigner(t)

	token, exp, err := signer.IssueWithExpiry(aliceClaims(), issuedAt)
	require.NoError(t, err)

	raw := token.String()
	last := raw[len(raw)-2]
	swap := byte('A')
	if last == 'A' {
		swap = 'B'
	}
	tampered := raw[:len(raw)-2] + string(swap) + raw[len(raw)-1:]

	_, err = signer.Validate(auth.IssuedToken(tampered), exp.Add(time.Hour))
	assert.ErrorIs(t, err, auth.ErrInvalidSignature)
}

func TestTokenSigner_Mismatches(t *testing.T) {
	signer := newTestSigner(t)
	token, err := signer.Issue(aliceClaims(), issuedAt)
	require.NoError(t, err)
	now := issuedAt.Add(time.Minute)

	t.Run("other secret", func(t *testing.T) {
		other := newTestSigner(t, func(c *auth.TokenConfig) {
			c.Secret = auth.Secret(strings.Repeat("z", 40))
		})
		_, err := other.Validate(token, now)
		assert.ErrorIs(t, err, auth.ErrInvalidSignature)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := newTestSigner(t, func(c *auth.TokenConfig) { c.Issuer = "https://evil.example.com" })
		_, err := other.Validate(token, now)
		assert.ErrorIs(t, err, auth.ErrIssuerMismatch)
	})

	t.Run("other audience", func(t *testing.T) {
		other := newTestSigner(t, func(c *auth.TokenConfig) { c.Audience = "https://other.example.com" })
		_, err := other.Validate(token, now)
		assert.ErrorIs(t, err, auth.ErrAudienceMismatch)
	})

	t.Run("other algorithm", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &auth.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "https://accounts.example.com",
				Audience:  jwt.ClaimStrings{"https://app.example.com"},
				ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
			},
			Claims: aliceClaims(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = signer.Validate(auth.IssuedToken(forged), now)
		assert.ErrorIs(t, err, auth.ErrInvalidSignature)
	})
}

func TestTokenSigner_Malformed(t *testing.T) {
	signer := newTestSigner(t)

	for _, raw := range []string{"", "   ", "abc", "a.b", "not.a.jwt"} {
		_, err := signer.Validate(auth.IssuedToken(raw), issuedAt)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed, "token=%q", raw)
		assert.True(t, auth.IsMalformedError(err))
	}
}

func TestTokenSigner_ClockPolicy(t *testing.T) {
	signer := newTestSigner(t)

	_, err := signer.Issue(aliceClaims(), issuedAt.Add(2*time.Minute))
	assert.ErrorIs(t, err, auth.ErrClock)

	_, err = signer.Issue(aliceClaims(), issuedAt.Add(30*time.Second))
	assert.NoError(t, err)

	_, err = signer.Issue(aliceClaims(), issuedAt.Add(-time.Hour))
	assert.NoError(t, err, "backdated issue times are allowed")

	strict, err := auth.NewTokenSigner(testTokenConfig(),
		auth.WithSignerClock(func() time.Time { return issuedAt }),
		auth.WithMaxClockSkew(0),
		auth.WithSignerLogger(auth.NoopLogger()),
	)
	require.NoError(t, err)
	_, err = strict.Issue(aliceClaims(), issuedAt.Add(time.Second))
	assert.ErrorIs(t, err, auth.ErrClock)
}

func TestTokenSigner_ZeroTimesUseClock(t *testing.T) {
	signer := newTestSigner(t)

	token, exp, err := signer.IssueWithExpiry(aliceClaims(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(48*time.Hour), exp.UTC())

	_, err = signer.Validate(token, time.Time{})
	assert.NoError(t, err)
}
