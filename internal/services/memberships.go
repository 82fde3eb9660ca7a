package services

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/db"
	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/db/repositories"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/notify"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

// Store is the connection membership workflows run their transactions on.
// *sqlx.DB satisfies it.
type Store interface {
	repositories.Handle
	db.TxBeginner
}

// SignupRequest is the input of Signup. OrgName defaults to the email address.
type SignupRequest struct {
	Email      string
	Password   string
	OrgName    string
	OrgDetails string
}

// SignupResult identifies the records created by Signup and carries the
// caller's first token pair.
type SignupResult struct {
	UserID int64
	OrgID  int64
	RoleID int64
	Tokens auth.TokenPair
}

// InviteRequest is the input of Invite. The invited email must belong to an
// existing account.
type InviteRequest struct {
	Email  string
	OrgID  int64
	RoleID int64
}

// MembershipService runs the workflows that touch several entities at once.
// Every mutation runs in a single transaction; notifications go out only
// after commit.
type MembershipService struct {
	store       Store
	credentials *CredentialStore
	tenants     *TenantGraph
	notifier    *notify.Notifier
}

// NewMembershipService creates a MembershipService. notifier may be nil.
func NewMembershipService(store Store, credentials *CredentialStore, tenants *TenantGraph, notifier *notify.Notifier) *MembershipService {
	return &MembershipService{
		store:       store,
		credentials: credentials,
		tenants:     tenants,
		notifier:    notifier,
	}
}

// Signup creates an account, its personal organization, the organization's
// owner role and the owner's active membership. All four rows commit
// together or not at all.
func (s *MembershipService) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	orgName := strings.TrimSpace(req.OrgName)
	if orgName == "" {
		orgName = email
	}
	if _, err := validateName("organization name", orgName); err != nil {
		return nil, err
	}

	res := &SignupResult{}
	err = db.WithTx(ctx, s.store, func(tx *sqlx.Tx) error {
		var err error
		if res.UserID, err = s.credentials.Register(ctx, tx, email, req.Password); err != nil {
			return err
		}
		if res.OrgID, err = s.tenants.CreateOrganization(ctx, tx, OrganizationInput{
			Name:     orgName,
			Details:  req.OrgDetails,
			Personal: true,
		}); err != nil {
			return err
		}
		if res.RoleID, err = s.tenants.CreateRole(ctx, tx, res.OrgID, models.RoleOwner, "Organization owner"); err != nil {
			return err
		}
		_, err = s.tenants.CreateMembership(ctx, tx, res.OrgID, res.UserID, res.RoleID, models.MembershipActive)
		return err
	})
	if err != nil {
		return nil, err
	}

	telemetry.SignupsTotal.Inc()
	s.notifier.Welcome(email)

	// the account exists now; a token failure must not hide that
	if res.Tokens, err = s.credentials.IssueTokens(res.UserID, email); err != nil {
		return res, err
	}
	return res, nil
}

// Invite adds a pending membership for an existing account and emails the
// invitee an acceptance link.
func (s *MembershipService) Invite(ctx context.Context, req InviteRequest) (int64, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return 0, err
	}

	var membershipID int64
	var orgName string
	err = db.WithTx(ctx, s.store, func(tx *sqlx.Tx) error {
		user, err := repositories.NewUserRepository(tx).GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound(domain.EntityUser, "no account is registered for %s", email)
		}
		org, err := s.tenants.requireOrganization(ctx, tx, req.OrgID)
		if err != nil {
			return err
		}
		orgName = org.Name
		membershipID, err = s.tenants.addMember(ctx, tx, req.OrgID, user.ID, req.RoleID, models.MembershipPending)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.notifier.Invite(email, orgName, req.OrgID)
	return membershipID, nil
}

// AcceptInvite activates the caller's pending membership in orgID.
func (s *MembershipService) AcceptInvite(ctx context.Context, orgID, userID int64) error {
	return db.WithTx(ctx, s.store, func(tx *sqlx.Tx) error {
		return s.tenants.AcceptInvite(ctx, tx, orgID, userID)
	})
}

// ChangeRole moves userID's membership in orgID to roleID.
func (s *MembershipService) ChangeRole(ctx context.Context, orgID, userID, roleID int64) error {
	return db.WithTx(ctx, s.store, func(tx *sqlx.Tx) error {
		return s.tenants.UpdateMembershipRole(ctx, tx, orgID, userID, roleID)
	})
}

// Remove soft-removes userID's membership in orgID.
func (s *MembershipService) Remove(ctx context.Context, orgID, userID int64) error {
	return db.WithTx(ctx, s.store, func(tx *sqlx.Tx) error {
		return s.tenants.RemoveMembership(ctx, tx, orgID, userID)
	})
}

// CreateRole adds a role to orgID.
func (s *MembershipService) CreateRole(ctx context.Context, orgID int64, name, description string) (int64, error) {
	var roleID int64
	err := db.WithTx(ctx, s.store, func(tx *sqlx.Tx) error {
		var err error
		roleID, err = s.tenants.CreateRole(ctx, tx, orgID, name, description)
		return err
	})
	return roleID, err
}

// RequireOrgAdmin succeeds when callerID holds an active owner or admin
// membership in orgID.
func (s *MembershipService) RequireOrgAdmin(ctx context.Context, callerID, orgID int64) error {
	m, err := s.activeMembership(ctx, callerID, orgID)
	if err != nil {
		return err
	}
	if !models.IsAdministrativeRole(m.RoleName) {
		return forbidden(orgID)
	}
	return nil
}

// RequireOrgMember succeeds when callerID holds any active membership in
// orgID.
func (s *MembershipService) RequireOrgMember(ctx context.Context, callerID, orgID int64) error {
	_, err := s.activeMembership(ctx, callerID, orgID)
	return err
}

func (s *MembershipService) activeMembership(ctx context.Context, callerID, orgID int64) (*models.MembershipDetail, error) {
	m, err := s.tenants.FindMembership(ctx, orgID, callerID)
	if err != nil {
		return nil, err
	}
	// a pending invite grants nothing until accepted
	if m == nil || m.Status != models.MembershipActive {
		return nil, forbidden(orgID)
	}
	return m, nil
}

func forbidden(orgID int64) error {
	telemetry.AuthFailuresTotal.WithLabelValues(domain.CodeForbidden).Inc()
	return domain.ErrForbidden("insufficient permissions for organization %d", orgID)
}
