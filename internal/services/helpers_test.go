package services

import (
	"context"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/notify"
)

const (
	testSecret = "services-test-secret-of-32-bytes!"
	testNow    = int64(1700000000)
)

var (
	userCols       = []string{"id", "email", "password", "profile", "settings", "status", "created_at", "updated_at"}
	orgCols        = []string{"id", "name", "status", "personal", "settings", "details", "created_at", "updated_at"}
	roleCols       = []string{"id", "org_id", "name", "description", "created_at"}
	membershipCols = []string{"id", "org_id", "user_id", "role_id", "status", "settings", "created_at", "updated_at", "email", "name", "name"}
)

// recordingSender captures notifications instead of delivering them.
type recordingSender struct {
	mu       sync.Mutex
	subjects map[string][]string // by recipient
}

func (s *recordingSender) Send(_ context.Context, to, subject, _ string) (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subjects == nil {
		s.subjects = map[string][]string{}
	}
	s.subjects[to] = append(s.subjects[to], subject)
	return 202, "", nil
}

func (s *recordingSender) count(to string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subjects[to])
}

type fixture struct {
	db          *sqlx.DB
	mock        sqlmock.Sqlmock
	hasher      *auth.PasswordHasher
	tokens      *auth.TokenIssuer
	sender      *recordingSender
	notifier    *notify.Notifier
	credentials *CredentialStore
	tenants     *TenantGraph
	memberships *MembershipService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	f := &fixture{
		db:     sqlx.NewDb(raw, "sqlmock"),
		mock:   mock,
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		tokens: auth.NewTokenIssuer(testSecret, "auth-service", 0, 0),
		sender: &recordingSender{},
	}
	f.notifier = notify.NewNotifier(f.sender, "https://app.example.com", 0)
	f.credentials = NewCredentialStore(f.db, f.hasher, f.tokens, f.notifier)
	f.tenants = NewTenantGraph(f.db)
	f.memberships = NewMembershipService(f.db, f.credentials, f.tenants, f.notifier)
	return f
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	f.notifier.Wait()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sql expectations: %v", err)
	}
}

func (f *fixture) hash(t *testing.T, password string) string {
	t.Helper()
	h, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return h
}

func userRow(id int64, email, hash string, status models.UserStatus) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).AddRow(id, email, hash, []byte(`{}`), []byte(`{}`), int16(status), testNow, testNow)
}

func orgRow(id int64, name string) *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).AddRow(id, name, int16(0), false, []byte(`{}`), "", testNow, testNow)
}

func roleRow(id, orgID int64, name string) *sqlmock.Rows {
	return sqlmock.NewRows(roleCols).AddRow(id, orgID, name, "", testNow)
}

func membershipRow(id, orgID, userID, roleID int64, status models.MembershipStatus, roleName string) *sqlmock.Rows {
	return sqlmock.NewRows(membershipCols).
		AddRow(id, orgID, userID, roleID, int16(status), []byte(`{}`), testNow, testNow, "member@example.com", "Acme", roleName)
}

func idRow(id int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"}).AddRow(id)
}

func emptyRows(cols []string) *sqlmock.Rows {
	return sqlmock.NewRows(cols)
}

// SQL patterns, matched as regular expressions.
const (
	qEmailExists    = `SELECT EXISTS\(SELECT 1 FROM users`
	qUserByEmail    = `FROM users WHERE lower\(email\) = lower\(\$1\)`
	qUserByID       = `FROM users WHERE id = \$1`
	qInsertUser     = `INSERT INTO users`
	qUpdatePassword = `UPDATE users SET password`
	qOrgByID        = `FROM organizations\s+WHERE id = \$1`
	qInsertOrg      = `INSERT INTO organizations`
	qRoleByID       = `FROM roles WHERE id = \$1`
	qRoleByName     = `FROM roles WHERE org_id = \$1 AND name = \$2`
	qInsertRole     = `INSERT INTO roles`
	qLiveMembership = `FROM memberships m .* WHERE m.org_id = \$1 AND m.user_id = \$2 AND m.status <> 2`
	qInsertMember   = `INSERT INTO memberships`
	qSetStatus      = `UPDATE memberships SET status`
	qUpdateRole     = `UPDATE memberships SET role_id`
	qLockOwners     = `WHERE m.org_id = \$1 AND m.status = 1 AND r.name = \$2\s+FOR UPDATE OF m`
)
