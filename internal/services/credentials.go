// Package services implements the identity core: the credential store, the
// tenant graph of organizations, roles and memberships, and the membership
// workflows (signup, invite, role changes) that span several repositories
// inside one transaction.
package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/db/repositories"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/notify"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

// MinPasswordBytes is the shortest password accepted at registration or reset.
const MinPasswordBytes = 8

// CredentialStore owns user records and password verification, and issues
// the token pair handed out after authentication.
type CredentialStore struct {
	db       repositories.Handle
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenIssuer
	notifier *notify.Notifier
}

// NewCredentialStore creates a credential store. notifier may be nil.
func NewCredentialStore(db repositories.Handle, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, notifier *notify.Notifier) *CredentialStore {
	return &CredentialStore{db: db, hasher: hasher, tokens: tokens, notifier: notifier}
}

// NormalizeEmail trims and lower-cases email and checks that it is a bare
// address. Emails are compared case-insensitively everywhere.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", domain.ErrValidation("email_required", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", domain.ErrValidation("invalid_email", "email address is not valid")
	}
	return email, nil
}

// ValidatePassword enforces the accepted password length. The upper bound is
// bcrypt's input limit.
func ValidatePassword(password string) error {
	switch {
	case len(password) < MinPasswordBytes:
		return domain.ErrValidation("weak_password", "password must be at least %d bytes", MinPasswordBytes)
	case len(password) > auth.MaxPasswordBytes:
		return domain.ErrValidation("password_too_long", "password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	return nil
}

// Register creates an account on h and returns its ID. It runs on the
// caller's handle so signup can include it in its transaction. No
// notification is sent; the caller decides when the account is final.
func (s *CredentialStore) Register(ctx context.Context, h repositories.Handle, email, password string) (int64, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}
	if err := ValidatePassword(password); err != nil {
		return 0, err
	}

	users := repositories.NewUserRepository(h)
	exists, err := users.EmailExists(ctx, email)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, domain.ErrConflict(domain.CodeDuplicateEmail, "an account with this email already exists")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, domain.ErrInternal("hash password: %v", err)
	}

	user := &models.User{Email: email, Password: hash, Status: models.UserStatusActive}
	// a concurrent signup that passed the check above still hits the unique index
	if err := users.Create(ctx, user); err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Authenticate verifies email and password. An unknown email, a wrong
// password and a disabled account all yield the same invalid_credentials
// error, and cost the same bcrypt work.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		s.hasher.VerifyDummy(password)
		return nil, s.rejectCredentials()
	}

	user, err := repositories.NewUserRepository(s.db).GetByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.hasher.VerifyDummy(password)
		return nil, s.rejectCredentials()
	}

	ok, err := s.hasher.Verify(user.Password, password)
	if err != nil {
		return nil, domain.ErrInternal("verify password for user %d: %v", user.ID, err)
	}
	if !ok || !user.IsActive() {
		return nil, s.rejectCredentials()
	}

	s.notifier.LoginAlert(user.Email)
	return user, nil
}

// SignIn authenticates and issues a token pair.
func (s *CredentialStore) SignIn(ctx context.Context, email, password string) (*models.User, auth.TokenPair, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, auth.TokenPair{}, err
	}
	pair, err := s.IssueTokens(user.ID, user.Email)
	if err != nil {
		return nil, auth.TokenPair{}, err
	}
	return user, pair, nil
}

// ResetPassword replaces the password of the account registered under email
// and sends a confirmation. The confirmation is best-effort.
func (s *CredentialStore) ResetPassword(ctx context.Context, email, newPassword string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	users := repositories.NewUserRepository(s.db)
	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrNotFound(domain.EntityUser, "no account is registered for this email")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return domain.ErrInternal("hash password: %v", err)
	}
	if err := users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.notifier.PasswordUpdated(user.Email)
	return nil
}

// IssueTokens creates the access/refresh pair for a user.
func (s *CredentialStore) IssueTokens(userID int64, email string) (auth.TokenPair, error) {
	pair, err := s.tokens.IssuePair(userID, email)
	if err != nil {
		return auth.TokenPair{}, domain.ErrInternal("issue tokens: %v", err)
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The account must still
// exist and be active.
func (s *CredentialStore) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		telemetry.AuthFailuresTotal.WithLabelValues(domain.CodeInvalidToken).Inc()
		return auth.TokenPair{}, err
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return auth.TokenPair{}, err
	}
	return s.IssueTokens(user.ID, user.Email)
}

// CheckActive reports an AuthError when userID no longer exists or has been
// disabled. Access tokens are checked with it on every request.
func (s *CredentialStore) CheckActive(ctx context.Context, userID int64) error {
	_, err := s.activeUser(ctx, userID)
	return err
}

func (s *CredentialStore) activeUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := repositories.NewUserRepository(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		telemetry.AuthFailuresTotal.WithLabelValues(domain.CodeInvalidToken).Inc()
		return nil, &domain.AuthError{Code: domain.CodeInvalidToken, Message: "invalid or expired token"}
	}
	return user, nil
}

func (s *CredentialStore) rejectCredentials() error {
	telemetry.AuthFailuresTotal.WithLabelValues(domain.CodeInvalidCredentials).Inc()
	return domain.ErrInvalidCredentials()
}
