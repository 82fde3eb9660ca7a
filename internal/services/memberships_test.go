package services

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/domain"
)

// expectSignup queues the statements of a successful signup for email that
// creates user 1, organization 1 and owner role 5.
func expectSignup(f *fixture, email, orgName string) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qEmailExists).WithArgs(email).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery(qInsertUser).
		WithArgs(email, sqlmock.AnyArg(), []byte("{}"), []byte("{}"), models.UserStatusActive, sqlmock.AnyArg()).
		WillReturnRows(idRow(1))
	f.mock.ExpectQuery(qInsertOrg).
		WithArgs(orgName, sqlmock.AnyArg(), true, []byte("{}"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(idRow(1))
	f.mock.ExpectQuery(qOrgByID).WithArgs(int64(1)).WillReturnRows(orgRow(1, orgName))
	f.mock.ExpectQuery(qRoleByName).WithArgs(int64(1), models.RoleOwner).WillReturnRows(emptyRows(roleCols))
	f.mock.ExpectQuery(qInsertRole).
		WithArgs(int64(1), models.RoleOwner, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(idRow(5))
	f.mock.ExpectQuery(qUserByID).WithArgs(int64(1)).WillReturnRows(userRow(1, email, "h", models.UserStatusActive))
	f.mock.ExpectQuery(qOrgByID).WithArgs(int64(1)).WillReturnRows(orgRow(1, orgName))
	f.mock.ExpectQuery(qRoleByID).WithArgs(int64(5)).WillReturnRows(roleRow(5, 1, models.RoleOwner))
	f.mock.ExpectQuery(qLiveMembership).WithArgs(int64(1), int64(1)).WillReturnRows(emptyRows(membershipCols))
	// the membership row points at organization 1 and role 5, which belongs to organization 1
	f.mock.ExpectQuery(qInsertMember).
		WithArgs(int64(1), int64(1), int64(5), models.MembershipActive, []byte("{}"), sqlmock.AnyArg()).
		WillReturnRows(idRow(1))
	f.mock.ExpectCommit()
}

// ---------------------------------------------------------------------------
// Signup
// ---------------------------------------------------------------------------

func TestSignup_CreatesUserOrgRoleMembership(t *testing.T) {
	f := newFixture(t)
	expectSignup(f, "a@x.com", "Acme")

	res, err := f.memberships.Signup(context.Background(), SignupRequest{
		Email: "A@x.com", Password: "password1", OrgName: "Acme",
	})
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if res.UserID != 1 || res.OrgID != 1 || res.RoleID != 5 {
		t.Errorf("Signup() = %+v", res)
	}
	claims, err := f.tokens.Parse(res.Tokens.AccessToken, auth.TokenTypeAccess)
	if err != nil || claims.UserID != 1 || claims.Email != "a@x.com" {
		t.Errorf("access token claims = %+v, %v", claims, err)
	}
	f.verify(t)
	if f.sender.count("a@x.com") != 1 {
		t.Error("expected exactly one welcome email after commit")
	}
}

func TestSignup_DefaultsOrgNameToEmail(t *testing.T) {
	f := newFixture(t)
	expectSignup(f, "solo@x.com", "solo@x.com")

	if _, err := f.memberships.Signup(context.Background(), SignupRequest{Email: "solo@x.com", Password: "password1"}); err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	f.verify(t)
}

func TestSignup_DuplicateEmailRollsBack(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qEmailExists).WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	f.mock.ExpectRollback()

	_, err := f.memberships.Signup(context.Background(), SignupRequest{Email: "a@x.com", Password: "password1", OrgName: "Acme"})
	if errorCode(err) != domain.CodeDuplicateEmail {
		t.Fatalf("Signup() error = %v, want duplicate_email", err)
	}
	f.verify(t)
	if f.sender.count("a@x.com") != 0 {
		t.Error("no welcome email may be sent for a failed signup")
	}
}

func TestSignup_FailureMidwayRollsBackEverything(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name: "organization insert fails",
			setup: func(f *fixture) {
				f.mock.ExpectQuery(qInsertOrg).WillReturnError(errors.New("disk full"))
			},
		},
		{
			name: "role insert fails",
			setup: func(f *fixture) {
				f.mock.ExpectQuery(qInsertOrg).WillReturnRows(idRow(1))
				f.mock.ExpectQuery(qOrgByID).WillReturnRows(orgRow(1, "Acme"))
				f.mock.ExpectQuery(qRoleByName).WillReturnRows(emptyRows(roleCols))
				f.mock.ExpectQuery(qInsertRole).WillReturnError(&pq.Error{Code: "08006"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mock.ExpectBegin()
			f.mock.ExpectQuery(qEmailExists).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			f.mock.ExpectQuery(qInsertUser).WillReturnRows(idRow(1))
			tt.setup(f)
			f.mock.ExpectRollback()

			if _, err := f.memberships.Signup(context.Background(), SignupRequest{Email: "a@x.com", Password: "password1", OrgName: "Acme"}); err == nil {
				t.Fatal("Signup() expected error")
			}
			f.verify(t)
		})
	}
}

func TestSignup_InvalidInputNeverOpensTransaction(t *testing.T) {
	f := newFixture(t)
	for _, req := range []SignupRequest{
		{Email: "nope", Password: "password1"},
		{Email: "a@x.com", Password: "pw"},
	} {
		if _, err := f.memberships.Signup(context.Background(), req); domain.KindOf(err) != domain.KindValidation {
			t.Errorf("Signup(%+v) error = %v, want validation", req, err)
		}
	}
	f.verify(t)
}

// ---------------------------------------------------------------------------
// Invite
// ---------------------------------------------------------------------------

func TestInvite_CreatesPendingMembership(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qUserByEmail).WithArgs("b@x.com").WillReturnRows(userRow(2, "b@x.com", "h", models.UserStatusActive))
	f.mock.ExpectQuery(qOrgByID).WithArgs(int64(1)).WillReturnRows(orgRow(1, "Acme"))
	f.mock.ExpectQuery(qRoleByID).WithArgs(int64(5)).WillReturnRows(roleRow(5, 1, "member"))
	f.mock.ExpectQuery(qLiveMembership).WithArgs(int64(1), int64(2)).WillReturnRows(emptyRows(membershipCols))
	f.mock.ExpectQuery(qInsertMember).
		WithArgs(int64(1), int64(2), int64(5), models.MembershipPending, []byte("{}"), sqlmock.AnyArg()).
		WillReturnRows(idRow(30))
	f.mock.ExpectCommit()

	id, err := f.memberships.Invite(context.Background(), InviteRequest{Email: "b@x.com", OrgID: 1, RoleID: 5})
	if err != nil || id != 30 {
		t.Fatalf("Invite() = %d, %v; want 30", id, err)
	}
	f.verify(t)
	if f.sender.count("b@x.com") != 1 {
		t.Error("expected an invitation email")
	}
}

func TestInvite_CrossTenantRoleRejected(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qUserByEmail).WithArgs("b@x.com").WillReturnRows(userRow(2, "b@x.com", "h", models.UserStatusActive))
	f.mock.ExpectQuery(qOrgByID).WithArgs(int64(1)).WillReturnRows(orgRow(1, "Acme"))
	// role 5 belongs to organization 2
	f.mock.ExpectQuery(qRoleByID).WithArgs(int64(5)).WillReturnRows(roleRow(5, 2, "member"))
	f.mock.ExpectRollback()

	_, err := f.memberships.Invite(context.Background(), InviteRequest{Email: "b@x.com", OrgID: 1, RoleID: 5})
	if domain.KindOf(err) != domain.KindValidation || errorCode(err) != domain.CodeCrossTenantRole {
		t.Fatalf("Invite() error = %v, want cross_tenant_role validation", err)
	}
	// no INSERT INTO memberships was expected, so none ran
	f.verify(t)
	if f.sender.count("b@x.com") != 0 {
		t.Error("a rejected invite must not send email")
	}
}

func TestInvite_DistinctNotFound(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		entity domain.Entity
	}{
		{"unknown user", func(f *fixture) {
			f.mock.ExpectQuery(qUserByEmail).WillReturnRows(emptyRows(userCols))
		}, domain.EntityUser},
		{"unknown organization", func(f *fixture) {
			f.mock.ExpectQuery(qUserByEmail).WillReturnRows(userRow(2, "b@x.com", "h", models.UserStatusActive))
			f.mock.ExpectQuery(qOrgByID).WillReturnRows(emptyRows(orgCols))
		}, domain.EntityOrganization},
		{"unknown role", func(f *fixture) {
			f.mock.ExpectQuery(qUserByEmail).WillReturnRows(userRow(2, "b@x.com", "h", models.UserStatusActive))
			f.mock.ExpectQuery(qOrgByID).WillReturnRows(orgRow(1, "Acme"))
			f.mock.ExpectQuery(qRoleByID).WillReturnRows(emptyRows(roleCols))
		}, domain.EntityRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mock.ExpectBegin()
			tt.setup(f)
			f.mock.ExpectRollback()

			_, err := f.memberships.Invite(context.Background(), InviteRequest{Email: "b@x.com", OrgID: 1, RoleID: 5})
			if !domain.IsNotFound(err, tt.entity) {
				t.Fatalf("Invite() error = %v, want %s not found", err, tt.entity)
			}
			f.verify(t)
		})
	}
}

// ---------------------------------------------------------------------------
// ChangeRole / Remove / AcceptInvite / CreateRole
// ---------------------------------------------------------------------------

func TestRemove_Twice(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qLiveMembership).WillReturnRows(membershipRow(20, 1, 3, 6, models.MembershipActive, "admin"))
	f.mock.ExpectExec(qSetStatus).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qLiveMembership).WillReturnRows(emptyRows(membershipCols))
	f.mock.ExpectExec(qSetStatus).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	if err := f.memberships.Remove(context.Background(), 1, 3); err != nil {
		t.Fatalf("first Remove() error: %v", err)
	}
	if err := f.memberships.Remove(context.Background(), 1, 3); !domain.IsNotFound(err, domain.EntityMembership) {
		t.Fatalf("second Remove() error = %v, want membership not found", err)
	}
	f.verify(t)
}

func TestChangeRole_Commits(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qRoleByID).WillReturnRows(roleRow(6, 1, "admin"))
	f.mock.ExpectQuery(qLiveMembership).WillReturnRows(membershipRow(20, 1, 3, 7, models.MembershipActive, "member"))
	f.mock.ExpectExec(qUpdateRole).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	if err := f.memberships.ChangeRole(context.Background(), 1, 3, 6); err != nil {
		t.Fatalf("ChangeRole() error: %v", err)
	}
	f.verify(t)
}

func TestRemove_LastOwnerRollsBack(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qLiveMembership).WillReturnRows(membershipRow(20, 1, 3, 5, models.MembershipActive, models.RoleOwner))
	f.mock.ExpectQuery(qLockOwners).WillReturnRows(idRow(20))
	f.mock.ExpectRollback()

	err := f.memberships.Remove(context.Background(), 1, 3)
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("Remove() error = %v, want conflict", err)
	}
	f.verify(t)
}

func TestAcceptInvite_Commits(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(qSetStatus).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	if err := f.memberships.AcceptInvite(context.Background(), 1, 3); err != nil {
		t.Fatalf("AcceptInvite() error: %v", err)
	}
	f.verify(t)
}

func TestMembershipService_CreateRole(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qOrgByID).WillReturnRows(orgRow(1, "Acme"))
	f.mock.ExpectQuery(qRoleByName).WillReturnRows(emptyRows(roleCols))
	f.mock.ExpectQuery(qInsertRole).WillReturnRows(idRow(8))
	f.mock.ExpectCommit()

	id, err := f.memberships.CreateRole(context.Background(), 1, "member", "")
	if err != nil || id != 8 {
		t.Fatalf("CreateRole() = %d, %v", id, err)
	}
	f.verify(t)
}

// ---------------------------------------------------------------------------
// Authorization
// ---------------------------------------------------------------------------

func TestRequireOrgAdmin(t *testing.T) {
	tests := []struct {
		name     string
		rows     func() *sqlmock.Rows
		wantKind domain.Kind
	}{
		{"owner", func() *sqlmock.Rows { return membershipRow(1, 1, 3, 5, models.MembershipActive, models.RoleOwner) }, ""},
		{"admin", func() *sqlmock.Rows { return membershipRow(1, 1, 3, 5, models.MembershipActive, models.RoleAdmin) }, ""},
		{"plain member", func() *sqlmock.Rows { return membershipRow(1, 1, 3, 5, models.MembershipActive, "member") }, domain.KindForbidden},
		{"pending owner", func() *sqlmock.Rows { return membershipRow(1, 1, 3, 5, models.MembershipPending, models.RoleOwner) }, domain.KindForbidden},
		{"not a member", func() *sqlmock.Rows { return emptyRows(membershipCols) }, domain.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mock.ExpectQuery(qLiveMembership).WithArgs(int64(1), int64(3)).WillReturnRows(tt.rows())

			err := f.memberships.RequireOrgAdmin(context.Background(), 3, 1)
			if domain.KindOf(err) != tt.wantKind {
				t.Fatalf("RequireOrgAdmin() error = %v, want kind %q", err, tt.wantKind)
			}
			f.verify(t)
		})
	}
}

func TestRequireOrgMember(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(qLiveMembership).WillReturnRows(membershipRow(1, 1, 3, 5, models.MembershipActive, "member"))
	f.mock.ExpectQuery(qLiveMembership).WillReturnRows(emptyRows(membershipCols))

	if err := f.memberships.RequireOrgMember(context.Background(), 3, 1); err != nil {
		t.Errorf("RequireOrgMember(member) error: %v", err)
	}
	if err := f.memberships.RequireOrgMember(context.Background(), 4, 1); domain.KindOf(err) != domain.KindForbidden {
		t.Errorf("RequireOrgMember(outsider) error = %v, want forbidden", err)
	}
	f.verify(t)
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestSignupThenSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expectSignup(f, "a@x.com", "Acme")
	res, err := f.memberships.Signup(ctx, SignupRequest{Email: "a@x.com", Password: "password1", OrgName: "Acme"})
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}

	// the stored row carries a hash of the signup password
	stored := f.hash(t, "password1")
	f.mock.ExpectQuery(qUserByEmail).WithArgs("a@x.com").
		WillReturnRows(userRow(res.UserID, "a@x.com", stored, models.UserStatusActive))
	user, pair, err := f.credentials.SignIn(ctx, "a@x.com", "password1")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if user.ID != res.UserID || pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Errorf("SignIn() = %+v, %+v", user, pair)
	}

	f.mock.ExpectQuery(qUserByEmail).WithArgs("a@x.com").
		WillReturnRows(userRow(res.UserID, "a@x.com", stored, models.UserStatusActive))
	_, _, err = f.credentials.SignIn(ctx, "a@x.com", "wrong")
	if domain.KindOf(err) != domain.KindAuth {
		t.Fatalf("SignIn(wrong) error = %v, want auth", err)
	}

	// no INSERT beyond the signup's was expected
	f.verify(t)
	// welcome + one login alert
	if got := f.sender.count("a@x.com"); got != 2 {
		t.Errorf("emails sent = %d, want 2", got)
	}
}
