package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/smartjobassistant/go-account-auth"

// failure reasons reported to the activity sink and metrics
const (
	reasonUnknownIdentity = "unknown_identity"
	reasonBadPassword     = "invalid_password"
	reasonStore           = "store_error"
	reasonIssue           = "issue_failed"
	reasonValidation      = "validation"
)

// Auther runs the login, registration and request authentication flows
type Auther struct {
	store        CredentialStore
	tokens       TokenService
	logger       Logger
	activitySink ActivitySink
	tracer       trace.Tracer
	now          func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store CredentialStore, tokens TokenService) *Auther {
	return &Auther{
		store:        store,
		tokens:       tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		tracer:       otel.Tracer(tracerName),
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClock sets the issue and validation clock
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Auther) WithTracer(tracer trace.Tracer) *Auther {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// Login verifies the credential and issues a token. Unknown email and
// wrong password return the same ErrUnauthorized.
func (s *Auther) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer span.End()

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			burnPasswordCheck(password)
			s.emit(ctx, ActivityEventLoginFailure, nil, email, reasonUnknownIdentity)
			return nil, s.fail(span, ErrUnauthorized)
		}
		s.logger.Error("login lookup failed", "error", err)
		s.emit(ctx, ActivityEventLoginFailure, nil, email, reasonStore, errorMetadata(err))
		return nil, s.fail(span, errors.Wrap(err, errors.CategoryInternal, "failed to look up identity").
			WithCode(errors.CodeInternal).
			WithStackTrace())
	}

	ok, err := s.store.VerifyPassword(ctx, identity, password)
	if err != nil {
		s.logger.Error("login password check failed", "error", err)
		s.emit(ctx, ActivityEventLoginFailure, identity, email, reasonStore, errorMetadata(err))
		return nil, s.fail(span, errors.Wrap(err, errors.CategoryInternal, "failed to verify credential").
			WithCode(errors.CodeInternal).
			WithStackTrace())
	}
	if !ok {
		s.emit(ctx, ActivityEventLoginFailure, identity, email, reasonBadPassword)
		return nil, s.fail(span, ErrUnauthorized)
	}

	result, err := s.issueFor(ctx, identity)
	if err != nil {
		s.emit(ctx, ActivityEventLoginFailure, identity, email, reasonIssue)
		return nil, s.fail(span, err)
	}

	span.SetAttributes(attribute.String("auth.user_id", identity.ID))
	s.emit(ctx, ActivityEventLoginSuccess, identity, identity.Email, "")

	return result, nil
}

// Register creates the account and issues a token with no roles.
// Store validation failures come back as *ValidationErrors.
func (s *Auther) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer span.End()

	identity, err := s.store.Create(ctx, NewUser{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Username:    UsernameFromEmail(req.Email),
		Phone:       req.PhoneNumber,
	}, req.Password)
	if err != nil {
		if isValidationFailure(err) {
			s.emit(ctx, ActivityEventRegisterFailure, nil, req.Email, reasonValidation, errorMetadata(err))
			return nil, s.fail(span, err)
		}
		s.logger.Error("register create failed", "error", err)
		s.emit(ctx, ActivityEventRegisterFailure, nil, req.Email, reasonStore, errorMetadata(err))
		return nil, s.fail(span, errors.Wrap(err, errors.CategoryInternal, "failed to create identity").
			WithCode(errors.CodeInternal).
			WithStackTrace())
	}

	claims := BuildClaims(*identity, nil)
	token, err := s.issue(claims)
	if err != nil {
		s.emit(ctx, ActivityEventRegisterFailure, identity, identity.Email, reasonIssue)
		return nil, s.fail(span, err)
	}

	s.emit(ctx, ActivityEventRegisterSuccess, identity, identity.Email, "")

	return &AuthResult{
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
		Token:       token,
	}, nil
}

// Authenticate validates a bearer token. Every validation failure maps
// to ErrUnauthorized, the reason is only logged.
func (s *Auther) Authenticate(token string) (Principal, error) {
	claims, err := s.tokens.Validate(IssuedToken(token), s.now())
	if err != nil {
		reason := "invalid"
		var richErr *errors.Error
		if errors.As(err, &richErr) && richErr.TextCode != "" {
			reason = strings.ToLower(richErr.TextCode)
		}
		s.logger.Debug("token rejected", "reason", reason)
		s.emit(context.Background(), ActivityEventTokenRejected, nil, "", reason, errorMetadata(err))
		return Principal{}, ErrUnauthorized
	}

	p := principalFromClaims(claims)
	if p.Email == "" {
		s.emit(context.Background(), ActivityEventTokenRejected, nil, "", "missing_email")
		return Principal{}, ErrUnauthorized
	}

	return p, nil
}

// CurrentUser re-issues a token for the principal with roles as of now
func (s *Auther) CurrentUser(ctx context.Context, p Principal) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.CurrentUser")
	defer span.End()

	identity, err := s.store.FindByEmail(ctx, p.Email)
	if err != nil {
		if isNotFound(err) {
			return nil, s.fail(span, ErrUnauthorized)
		}
		s.logger.Error("current user lookup failed", "error", err)
		return nil, s.fail(span, errors.Wrap(err, errors.CategoryInternal, "failed to look up identity").
			WithCode(errors.CodeInternal).
			WithStackTrace())
	}

	result, err := s.issueFor(ctx, identity)
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.emit(ctx, ActivityEventCurrentUserRefresh, identity, identity.Email, "")

	return result, nil
}

func (s *Auther) issueFor(ctx context.Context, identity *UserIdentity) (*AuthResult, error) {
	roles, err := s.store.RolesOf(ctx, identity)
	if err != nil {
		s.logger.Error("failed to load roles", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load roles").
			WithCode(errors.CodeInternal).
			WithStackTrace()
	}

	token, err := s.issue(BuildClaims(*identity, roles))
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
		Token:       token,
	}, nil
}

func (s *Auther) issue(claims ClaimSet) (IssuedToken, error) {
	token, _, err := s.tokens.IssueWithExpiry(claims, s.now())
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to issue token").
			WithCode(errors.CodeInternal).
			WithStackTrace()
	}
	return token, nil
}

func (s *Auther) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, identity *UserIdentity, email, reason string, metadata ...map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Email:      normalizeEmail(email),
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	}
	for _, m := range metadata {
		if len(m) == 0 {
			continue
		}
		if event.Metadata == nil {
			event.Metadata = map[string]any{}
		}
		for k, v := range m {
			event.Metadata[k] = v
		}
	}
	if identity != nil {
		event.UserID = identity.ID
	}

	if err := s.activitySink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink failed", "event", string(eventType), "error", err)
	}
}

// errorMetadata describes a failure for the audit trail, never the
// credential itself
func errorMetadata(err error) map[string]any {
	if err == nil {
		return nil
	}
	meta := map[string]any{"error": err.Error()}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode != "" {
		meta["text_code"] = richErr.TextCode
	}
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		meta["fields"] = verrs.Messages()
	}
	return meta
}

// UsernameFromEmail is the local part of the address
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}

func isNotFound(err error) bool {
	if errors.Is(err, ErrIdentityNotFound) {
		return true
	}
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.Category == errors.CategoryNotFound
}

func isValidationFailure(err error) bool {
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput, errors.CategoryConflict:
		return true
	}
	return false
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck spends a bcrypt comparison for unknown emails so
// both login failures take about the same time.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = HashPassword("unknown-identity-placeholder")
	})
	if dummyHash != "" {
		_ = ComparePasswordAndHash(password, dummyHash)
	}
}

var _ Authenticator = (*Auther)(nil)
