package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	auth "github.com/smartjobassistant/go-account-auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:   auth.Secret(testSecret),
		Issuer:   "https://accounts.example.com",
		Audience: "https://app.example.com",
		Validity: 48 * time.Hour,
	}
}

// MockCredentialStore implements auth.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*auth.UserIdentity, error) {
	args := m.Called(ctx, email)
	if v := args.Get(0); v != nil {
		return v.(*auth.UserIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCredentialStore) VerifyPassword(ctx context.Context, identity *auth.UserIdentity, plaintext string) (bool, error) {
	args := m.Called(ctx, identity, plaintext)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) Create(ctx context.Context, user auth.NewUser, plaintext string) (*auth.UserIdentity, error) {
	args := m.Called(ctx, user, plaintext)
	if v := args.Get(0); v != nil {
		return v.(*auth.UserIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCredentialStore) RolesOf(ctx context.Context, identity *auth.UserIdentity) ([]string, error) {
	args := m.Called(ctx, identity)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTokenService implements auth.TokenService
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) IssueWithExpiry(claims auth.ClaimSet, issuedAt time.Time) (auth.IssuedToken, time.Time, error) {
	args := m.Called(claims, issuedAt)
	return args.Get(0).(auth.IssuedToken), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenService) Validate(token auth.IssuedToken, now time.Time) (auth.ClaimSet, error) {
	args := m.Called(token, now)
	if v := args.Get(0); v != nil {
		return v.(auth.ClaimSet), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingSink keeps every activity event
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, e auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Events() []auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.ActivityEvent(nil), r.events...)
}
