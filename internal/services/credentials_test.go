package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/domain"
)

// ---------------------------------------------------------------------------
// Input validation
// ---------------------------------------------------------------------------

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"alice@example.com", "alice@example.com", false},
		{"  Alice@Example.COM ", "alice@example.com", false},
		{"", "", true},
		{"not-an-email", "", true},
		{"Alice <alice@example.com>", "", true},
		{"<alice@example.com>", "", true},
		{"a@b@c", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				if domain.KindOf(err) != domain.KindValidation {
					t.Fatalf("NormalizeEmail(%q) error = %v, want validation", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantCode string
	}{
		{"ok", "correct-horse", ""},
		{"exactly min", "12345678", ""},
		{"exactly max", strings.Repeat("x", auth.MaxPasswordBytes), ""},
		{"too short", "short", "weak_password"},
		{"empty", "", "weak_password"},
		{"too long", strings.Repeat("x", auth.MaxPasswordBytes+1), "password_too_long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("ValidatePassword() unexpected error: %v", err)
				}
				return
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Code != tt.wantCode {
				t.Errorf("ValidatePassword() error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qEmailExists).WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery(qInsertUser).
		WithArgs("alice@example.com", sqlmock.AnyArg(), []byte("{}"), []byte("{}"), models.UserStatusActive, sqlmock.AnyArg()).
		WillReturnRows(idRow(11))

	id, err := f.credentials.Register(context.Background(), f.db, " Alice@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if id != 11 {
		t.Errorf("Register() = %d, want 11", id)
	}
	f.verify(t)
	if f.sender.count("alice@example.com") != 0 {
		t.Error("Register must not send the welcome email itself")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qEmailExists).WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := f.credentials.Register(context.Background(), f.db, "ALICE@example.com", "correct-horse")
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || ce.Code != domain.CodeDuplicateEmail {
		t.Fatalf("Register() error = %v, want duplicate_email conflict", err)
	}
	f.verify(t)
}

func TestRegister_ConcurrentDuplicateCaughtByIndex(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qEmailExists).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery(qInsertUser).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_lower_key"})

	_, err := f.credentials.Register(context.Background(), f.db, "alice@example.com", "correct-horse")
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("Register() error = %v, want conflict", err)
	}
	f.verify(t)
}

func TestRegister_InvalidInputTouchesNothing(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ email, password string }{
		{"bad", "correct-horse"},
		{"alice@example.com", "short"},
	} {
		if _, err := f.credentials.Register(context.Background(), f.db, tc.email, tc.password); domain.KindOf(err) != domain.KindValidation {
			t.Errorf("Register(%q, %q) error = %v, want validation", tc.email, tc.password, err)
		}
	}
	f.verify(t)
}

// ---------------------------------------------------------------------------
// Authenticate / SignIn
// ---------------------------------------------------------------------------

func TestAuthenticate_Success(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qUserByEmail).WithArgs("alice@example.com").
		WillReturnRows(userRow(3, "alice@example.com", f.hash(t, "correct-horse"), models.UserStatusActive))

	user, err := f.credentials.Authenticate(context.Background(), "Alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if user.ID != 3 {
		t.Errorf("user ID = %d, want 3", user.ID)
	}
	f.verify(t)
	if f.sender.count("alice@example.com") != 1 {
		t.Error("expected a login alert")
	}
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	hash := f.hash(t, "correct-horse")

	f.mock.ExpectQuery(qUserByEmail).WithArgs("ghost@example.com").WillReturnRows(emptyRows(userCols))
	_, unknownErr := f.credentials.Authenticate(context.Background(), "ghost@example.com", "correct-horse")

	f.mock.ExpectQuery(qUserByEmail).WithArgs("alice@example.com").
		WillReturnRows(userRow(3, "alice@example.com", hash, models.UserStatusActive))
	_, wrongErr := f.credentials.Authenticate(context.Background(), "alice@example.com", "wrong-password")

	f.mock.ExpectQuery(qUserByEmail).WithArgs("bob@example.com").
		WillReturnRows(userRow(4, "bob@example.com", hash, models.UserStatusDisabled))
	_, disabledErr := f.credentials.Authenticate(context.Background(), "bob@example.com", "correct-horse")

	_, malformedErr := f.credentials.Authenticate(context.Background(), "not an email", "correct-horse")

	for name, err := range map[string]error{
		"unknown email":   unknownErr,
		"wrong password":  wrongErr,
		"disabled":        disabledErr,
		"malformed email": malformedErr,
	} {
		var ae *domain.AuthError
		if !errors.As(err, &ae) {
			t.Errorf("%s: error = %T %v, want *AuthError", name, err, err)
			continue
		}
		if ae.Code != domain.CodeInvalidCredentials || ae.Error() != unknownErr.Error() {
			t.Errorf("%s: error = %+v, want the same invalid_credentials error as unknown email", name, ae)
		}
	}
	f.verify(t)
	if f.sender.count("alice@example.com")+f.sender.count("bob@example.com") != 0 {
		t.Error("failed signins must not send login alerts")
	}
}

func TestAuthenticate_StoreFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qUserByEmail).WillReturnError(&pq.Error{Code: "08006"})

	_, err := f.credentials.Authenticate(context.Background(), "alice@example.com", "correct-horse")
	if !domain.IsRetryable(err) {
		t.Fatalf("Authenticate() error = %v, want infrastructure", err)
	}
	f.verify(t)
}

func TestSignIn_IssuesTokens(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qUserByEmail).
		WillReturnRows(userRow(3, "alice@example.com", f.hash(t, "correct-horse"), models.UserStatusActive))

	_, pair, err := f.credentials.SignIn(context.Background(), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	claims, err := f.tokens.Parse(pair.AccessToken, auth.TokenTypeAccess)
	if err != nil || claims.UserID != 3 {
		t.Errorf("access token claims = %+v, %v", claims, err)
	}
	if pair.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", pair.ExpiresIn)
	}
	f.verify(t)
}

// ---------------------------------------------------------------------------
// ResetPassword
// ---------------------------------------------------------------------------

func TestResetPassword_Success(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qUserByEmail).WithArgs("alice@example.com").
		WillReturnRows(userRow(3, "alice@example.com", "old-hash", models.UserStatusActive))
	f.mock.ExpectExec(qUpdatePassword).
		WithArgs(int64(3), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := f.credentials.ResetPassword(context.Background(), "alice@example.com", "brand-new-pass"); err != nil {
		t.Fatalf("ResetPassword() error: %v", err)
	}
	f.verify(t)
	if f.sender.count("alice@example.com") != 1 {
		t.Error("expected a password confirmation email")
	}
}

func TestResetPassword_UnknownUser(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qUserByEmail).WillReturnRows(emptyRows(userCols))

	err := f.credentials.ResetPassword(context.Background(), "ghost@example.com", "brand-new-pass")
	if !domain.IsNotFound(err, domain.EntityUser) {
		t.Fatalf("ResetPassword() error = %v, want user not found", err)
	}
	f.verify(t)
}

func TestResetPassword_WeakPasswordRejectedFirst(t *testing.T) {
	f := newFixture(t)
	err := f.credentials.ResetPassword(context.Background(), "alice@example.com", "short")
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("ResetPassword() error = %v, want validation", err)
	}
	f.verify(t)
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	pair, err := f.tokens.IssuePair(3, "alice@example.com")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	t.Run("refresh token accepted", func(t *testing.T) {
		f.mock.ExpectQuery(qUserByID).WithArgs(int64(3)).
			WillReturnRows(userRow(3, "alice@example.com", "h", models.UserStatusActive))
		next, err := f.credentials.Refresh(context.Background(), pair.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh() error: %v", err)
		}
		if next.AccessToken == "" || next.RefreshToken == pair.RefreshToken {
			t.Errorf("Refresh() returned %+v", next)
		}
	})

	t.Run("access token rejected", func(t *testing.T) {
		_, err := f.credentials.Refresh(context.Background(), pair.AccessToken)
		if domain.KindOf(err) != domain.KindAuth {
			t.Errorf("Refresh(access) error = %v, want auth", err)
		}
	})

	t.Run("disabled user rejected", func(t *testing.T) {
		f.mock.ExpectQuery(qUserByID).WithArgs(int64(3)).
			WillReturnRows(userRow(3, "alice@example.com", "h", models.UserStatusDisabled))
		_, err := f.credentials.Refresh(context.Background(), pair.RefreshToken)
		if domain.KindOf(err) != domain.KindAuth {
			t.Errorf("Refresh() error = %v, want auth", err)
		}
	})

	t.Run("deleted user rejected", func(t *testing.T) {
		f.mock.ExpectQuery(qUserByID).WithArgs(int64(3)).WillReturnRows(emptyRows(userCols))
		_, err := f.credentials.Refresh(context.Background(), pair.RefreshToken)
		if domain.KindOf(err) != domain.KindAuth {
			t.Errorf("Refresh() error = %v, want auth", err)
		}
	})

	f.verify(t)
}

func TestCheckActive(t *testing.T) {
	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		queryErr error
		wantKind domain.Kind
	}{
		{"active", userRow(3, "alice@example.com", "h", models.UserStatusActive), nil, ""},
		{"disabled after issuance", userRow(3, "alice@example.com", "h", models.UserStatusDisabled), nil, domain.KindAuth},
		{"deleted", emptyRows(userCols), nil, domain.KindAuth},
		{"store down", nil, sql.ErrConnDone, domain.KindInfrastructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			q := f.mock.ExpectQuery(qUserByID).WithArgs(int64(3))
			if tt.queryErr != nil {
				q.WillReturnError(tt.queryErr)
			} else {
				q.WillReturnRows(tt.rows)
			}

			err := f.credentials.CheckActive(context.Background(), 3)
			if got := domain.KindOf(err); got != tt.wantKind {
				t.Errorf("CheckActive() kind = %q (%v), want %q", got, err, tt.wantKind)
			}
			f.verify(t)
		})
	}
}
