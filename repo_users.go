package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the bun backed CredentialStore
type Users struct {
	repository.Repository[*User]
	db         *bun.DB
	policy     PasswordPolicy
	bcryptCost int
	useHashid  bool
	logger     Logger
}

var _ CredentialStore = (*Users)(nil)

type UsersOption func(*Users)

// WithPasswordPolicy overrides DefaultPasswordPolicy
func WithPasswordPolicy(p PasswordPolicy) UsersOption {
	return func(u *Users) {
		u.policy = p
	}
}

// WithBcryptCost sets the hashing cost, zero keeps the default
func WithBcryptCost(cost int) UsersOption {
	return func(u *Users) {
		if cost != 0 {
			u.bcryptCost = cost
		}
	}
}

// WithHashidIDs derives user IDs from the email so the same account
// gets the same ID across environments.
func WithHashidIDs(enabled bool) UsersOption {
	return func(u *Users) {
		u.useHashid = enabled
	}
}

// WithUsersLogger sets the logger
func WithUsersLogger(logger Logger) UsersOption {
	return func(u *Users) {
		u.logger = normalizeLogger(logger)
	}
}

func NewUsers(db *bun.DB, opts ...UsersOption) *Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	users := &Users{
		Repository: repo,
		db:         db,
		policy:     DefaultPasswordPolicy(),
		bcryptCost: DefaultBcryptCost,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(users)
		}
	}

	return users
}

// EnsureSchema creates the users and user_roles tables when missing
func (a *Users) EnsureSchema(ctx context.Context) error {
	models := []any{(*User)(nil), (*UserRole)(nil)}
	for _, m := range models {
		if _, err := a.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to create table")
		}
	}

	_, err := a.db.NewCreateIndex().
		Model((*UserRole)(nil)).
		Index("user_roles_user_id_role_idx").
		Column("user_id", "role").
		Unique().
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create user_roles index")
	}

	return nil
}

// FindByEmail looks the user up case insensitively
func (a *Users) FindByEmail(ctx context.Context, email string) (*UserIdentity, error) {
	user, err := a.getByEmail(ctx, a.db, email)
	if err != nil {
		return nil, err
	}
	return user.Identity(nil), nil
}

// VerifyPassword compares plaintext with the stored hash. A mismatch is
// (false, nil), errors are reserved for store failures.
func (a *Users) VerifyPassword(ctx context.Context, identity *UserIdentity, plaintext string) (bool, error) {
	if identity == nil {
		return false, ErrIdentityNotFound
	}

	user, err := a.getByEmail(ctx, a.db, identity.Email)
	if err != nil {
		return false, err
	}

	if err := ComparePasswordAndHash(plaintext, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to compare password hash")
	}

	return true, nil
}

// Create validates and stores a new user. Duplicate email or username
// and password policy failures come back together as *ValidationErrors.
func (a *Users) Create(ctx context.Context, nu NewUser, plaintext string) (*UserIdentity, error) {
	email := normalizeEmail(nu.Email)
	username := strings.TrimSpace(nu.Username)

	verrs := NewValidationErrors()
	if email == "" {
		verrs.Add("email", "Email is required.")
	}
	if username == "" {
		verrs.Add("username", "Username is required.")
	}
	for _, msg := range a.policy.Check(plaintext) {
		verrs.Add("password", msg)
	}

	// check uniqueness before paying for the hash
	if email != "" || username != "" {
		if err := a.checkTaken(ctx, a.db, email, username, verrs); err != nil {
			return nil, err
		}
	}

	if !verrs.Empty() {
		return nil, verrs
	}

	hash, err := HashPasswordWithCost(plaintext, a.bcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	record := &User{
		ID:           uuid.New(),
		DisplayName:  strings.TrimSpace(nu.DisplayName),
		Username:     username,
		Email:        email,
		Phone:        strings.TrimSpace(nu.Phone),
		PasswordHash: hash,
	}

	if a.useHashid {
		if id, err := hashid.NewUUID(email); err == nil {
			record.ID = id
		}
	}

	err = a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// a concurrent registration may have won since the first check
		if err := a.checkTaken(ctx, tx, email, username, verrs); err != nil {
			return err
		}
		if !verrs.Empty() {
			return verrs
		}

		created, err := a.Repository.CreateTx(ctx, tx, record)
		if err != nil {
			if isUniqueViolation(err) {
				verrs.Add("email", fmt.Sprintf("Email '%s' is already taken.", email))
				return verrs
			}
			return errors.Wrap(err, errors.CategoryInternal, "could not create user")
		}
		record = created
		return nil
	})

	if err != nil {
		var ve *ValidationErrors
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, err
	}

	a.logger.Info("user created", "user_id", record.ID.String())

	return record.Identity(nil), nil
}

// RolesOf returns role names in the order they were granted
func (a *Users) RolesOf(ctx context.Context, identity *UserIdentity) ([]string, error) {
	if identity == nil {
		return nil, ErrIdentityNotFound
	}

	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid user id")
	}

	roles := []string{}
	err = a.db.NewSelect().
		Model((*UserRole)(nil)).
		Column("role").
		Where("?TableAlias.user_id = ?", id).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx, &roles)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user roles")
	}

	return roles, nil
}

// AddRole grants role to the user with email. Granting a role twice is
// a no-op.
func (a *Users) AddRole(ctx context.Context, email, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return errors.New("role name is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	user, err := a.getByEmail(ctx, a.db, email)
	if err != nil {
		return err
	}

	exists, err := a.db.NewSelect().
		Model((*UserRole)(nil)).
		Where("?TableAlias.user_id = ?", user.ID).
		Where("?TableAlias.role = ?", role).
		Exists(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to check user role")
	}
	if exists {
		return nil
	}

	_, err = a.db.NewInsert().Model(&UserRole{UserID: user.ID, Role: role}).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to grant role")
	}

	return nil
}

func (a *Users) getByEmail(ctx context.Context, db bun.IDB, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrIdentityNotFound
	}

	record := &User{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user")
	}

	return record, nil
}

func (a *Users) checkTaken(ctx context.Context, db bun.IDB, email, username string, verrs *ValidationErrors) error {
	if email != "" && !hasFieldMessage(verrs, "email", "already taken") {
		taken, err := db.NewSelect().Model((*User)(nil)).Where("?TableAlias.email = ?", email).Exists(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to check email")
		}
		if taken {
			verrs.Add("email", fmt.Sprintf("Email '%s' is already taken.", email))
		}
	}

	if username != "" && !hasFieldMessage(verrs, "username", "already taken") {
		taken, err := db.NewSelect().Model((*User)(nil)).Where("?TableAlias.username = ?", username).Exists(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to check username")
		}
		if taken {
			verrs.Add("username", fmt.Sprintf("Username '%s' is already taken.", username))
		}
	}

	return nil
}

func hasFieldMessage(verrs *ValidationErrors, field, fragment string) bool {
	for _, msg := range verrs.Fields[field] {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
