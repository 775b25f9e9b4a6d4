package auth_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/smartjobassistant/go-account-auth"
)

var alice = &auth.UserIdentity{
	ID:          "5f1c7a8e-0000-4000-8000-000000000001",
	DisplayName: "Alice",
	Email:       "alice@example.com",
	Username:    "alice",
}

func newTestAuther(t *testing.T, store auth.CredentialStore) (*auth.Auther, *auth.TokenSigner, *recordingSink) {
	t.Helper()
	signer := newTestSigner(t)
	sink := &recordingSink{}
	auther := auth.NewAuthenticator(store, signer).
		WithLogger(auth.NoopLogger()).
		WithActivitySink(sink).
		WithClock(func() time.Time { return issuedAt })
	return auther, signer, sink
}

func TestAuther_Login_Alice(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("FindByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
	store.On("VerifyPassword", mock.Anything, alice, "Sup3r$ecret").Return(true, nil)
	store.On("RolesOf", mock.Anything, alice).Return([]string{"admin"}, nil)

	auther, signer, sink := newTestAuther(t, store)

	result, err := auther.Login(context.Background(), "alice@example.com", "Sup3r$ecret")
	require.NoError(t, err)
	assert.Equal(t, "Alice", result.DisplayName)
	assert.Equal(t, "alice@example.com", result.Email)

	claims, err := signer.Validate(result.Token, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, claims.Roles())
	assert.Equal(t, []string{"alice@example.com"}, claims.All(auth.ClaimEmail))
	assert.Equal(t, "alice", claims.GivenName())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, auth.ActivityEventLoginSuccess, events[0].EventType)
	assert.Equal(t, alice.ID, events[0].UserID)

	store.AssertExpectations(t)
}

func TestAuther_Login_EnumerationResistance(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrIdentityNotFound)
	store.On("FindByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
	store.On("VerifyPassword", mock.Anything, alice, "wrong").Return(false, nil)

	auther, _, sink := newTestAuther(t, store)

	_, unknownErr := auther.Login(context.Background(), "ghost@example.com", "wrong")
	_, wrongErr := auther.Login(context.Background(), "alice@example.com", "wrong")

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.ErrorIs(t, unknownErr, auth.ErrUnauthorized)
	assert.ErrorIs(t, wrongErr, auth.ErrUnauthorized)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())

	translator := auth.NewErrorTranslator(false, auth.NoopLogger())
	assert.Equal(t, translator.Translate(unknownErr), translator.Translate(wrongErr))
	assert.Equal(t, 401, translator.Translate(unknownErr).StatusCode)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, auth.ActivityEventLoginFailure, events[0].EventType)
	assert.Equal(t, auth.ActivityEventLoginFailure, events[1].EventType)
	assert.NotEqual(t, events[0].Reason, events[1].Reason)

	store.AssertNotCalled(t, "RolesOf", mock.Anything, mock.Anything)
}

func TestAuther_Login_StoreOutage(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("FindByEmail", mock.Anything, "alice@example.com").Return(nil, stderrors.New("connection refused"))

	auther, _, sink := newTestAuther(t, store)

	_, err := auther.Login(context.Background(), "alice@example.com", "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, auth.ErrUnauthorized))

	var richErr *errors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, errors.CategoryInternal, richErr.Category)
	assert.NotEmpty(t, richErr.StackTrace)

	dev := auth.NewErrorTranslator(true, auth.NoopLogger()).Translate(err)
	assert.Equal(t, 500, dev.StatusCode)
	assert.Equal(t, "failed to look up identity", dev.Message)
	assert.Contains(t, dev.Details, "Login")

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "store_error", events[0].Reason)
	assert.Contains(t, events[0].Metadata["error"], "connection refused")
}

func TestAuther_Login_SignerFailure(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("FindByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
	store.On("VerifyPassword", mock.Anything, alice, "pw").Return(true, nil)
	store.On("RolesOf", mock.Anything, alice).Return([]string{}, nil)

	tokens := new(MockTokenService)
	tokens.On("IssueWithExpiry", mock.Anything, mock.Anything).
		Return(auth.IssuedToken(""), time.Time{}, auth.ErrClock)

	auther := auth.NewAuthenticator(store, tokens).WithLogger(auth.NoopLogger())

	_, err := auther.Login(context.Background(), "alice@example.com", "pw")
	require.Error(t, err)

	translated := auth.NewErrorTranslator(false, auth.NoopLogger()).Translate(err)
	assert.Equal(t, 500, translated.StatusCode)
	assert.Equal(t, "failed to issue token: token issue time is ahead of the system clock", translated.Message)
}

func TestAuther_Register(t *testing.T) {
	store := new(MockCredentialStore)
	created := &auth.UserIdentity{
		ID:          "id-1",
		DisplayName: "Bob",
		Email:       "bob@x.com",
		Username:    "bob",
	}
	store.On("Create", mock.Anything, auth.NewUser{
		DisplayName: "Bob",
		Email:       "bob@x.com",
		Username:    "bob",
		Phone:       "0123456789",
	}, "Str0ng!pw").Return(created, nil)

	auther, signer, sink := newTestAuther(t, store)

	result, err := auther.Register(context.Background(), auth.RegisterRequest{
		DisplayName: "Bob",
		Email:       "bob@x.com",
		PhoneNumber: "0123456789",
		Password:    "Str0ng!pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bob", result.DisplayName)

	claims, err := signer.Validate(result.Token, issuedAt)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles())
	assert.Len(t, claims, 2)

	store.AssertNotCalled(t, "RolesOf", mock.Anything, mock.Anything)
	require.Len(t, sink.Events(), 1)
	assert.Equal(t, auth.ActivityEventRegisterSuccess, sink.Events()[0].EventType)
}

func TestAuther_Register_ValidationFailure(t *testing.T) {
	verrs := auth.NewValidationErrors().
		Add("password", "Passwords must have at least one digit ('0'-'9').")

	store := new(MockCredentialStore)
	store.On("Create", mock.Anything, mock.Anything, "Weak").Return(nil, verrs)

	auther, _, sink := newTestAuther(t, store)

	_, err := auther.Register(context.Background(), auth.RegisterRequest{
		DisplayName: "Bob",
		Email:       "bob@x.com",
		PhoneNumber: "0123456789",
		Password:    "Weak",
	})

	var got *auth.ValidationErrors
	require.True(t, errors.As(err, &got))
	assert.Equal(t, verrs.Messages(), got.Messages())

	apiErr := auth.NewErrorTranslator(false, nil).Translate(err)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Contains(t, apiErr.Errors[0], "Passwords must")

	require.Len(t, sink.Events(), 1)
	assert.Equal(t, auth.ActivityEventRegisterFailure, sink.Events()[0].EventType)
}

func TestAuther_Authenticate(t *testing.T) {
	auther, signer, sink := newTestAuther(t, new(MockCredentialStore))

	token, err := signer.Issue(auth.BuildClaims(*alice, []string{"admin"}), issuedAt)
	require.NoError(t, err)

	p, err := auther.Authenticate(token.String())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "alice", p.Name)
	assert.True(t, p.HasRole("admin"))

	for _, bad := range []string{"", "garbage", token.String() + "x"} {
		_, err := auther.Authenticate(bad)
		assert.ErrorIs(t, err, auth.ErrUnauthorized, "token=%q", bad)
	}

	expired := auth.NewAuthenticator(new(MockCredentialStore), signer).
		WithLogger(auth.NoopLogger()).
		WithClock(func() time.Time { return issuedAt.Add(72 * time.Hour) })
	_, err = expired.Authenticate(token.String())
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	var rejected int
	for _, e := range sink.Events() {
		if e.EventType == auth.ActivityEventTokenRejected {
			rejected++
		}
	}
	assert.Equal(t, 3, rejected)
}

func TestAuther_CurrentUser(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("FindByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
	store.On("FindByEmail", mock.Anything, "gone@example.com").Return(nil, auth.ErrIdentityNotFound)
	store.On("RolesOf", mock.Anything, alice).Return([]string{"admin", "editor"}, nil)

	auther, signer, _ := newTestAuther(t, store)

	result, err := auther.CurrentUser(context.Background(), auth.Principal{Email: "alice@example.com"})
	require.NoError(t, err)

	claims, err := signer.Validate(result.Token, issuedAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "editor"}, claims.Roles())

	_, err = auther.CurrentUser(context.Background(), auth.Principal{Email: "gone@example.com"})
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestAuther_SinkErrorsAreNotFatal(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("FindByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
	store.On("VerifyPassword", mock.Anything, alice, "pw").Return(true, nil)
	store.On("RolesOf", mock.Anything, alice).Return(nil, nil)

	auther, _, _ := newTestAuther(t, store)
	auther.WithActivitySink(auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return stderrors.New("sink down")
	}))

	_, err := auther.Login(context.Background(), "alice@example.com", "pw")
	assert.NoError(t, err)
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "bob", auth.UsernameFromEmail("bob@x.com"))
	assert.Equal(t, "first.last", auth.UsernameFromEmail(" first.last@example.com "))
	assert.Equal(t, "plain", auth.UsernameFromEmail("plain"))
}
