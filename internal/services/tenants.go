package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/db/repositories"
	"github.com/MURUGANQA/auth-service/internal/domain"
)

const maxNameLength = 255

// OrganizationInput carries the fields of a new organization.
type OrganizationInput struct {
	Name     string
	Details  string
	Personal bool
	Settings json.RawMessage
}

// TenantGraph maintains organizations, their roles and the memberships that
// link users to them. Mutations take a handle so they can join a caller's
// transaction; reads use the graph's own connection.
//
// Invariants: at most one non-removed membership per (organization, user),
// and a membership's role always belongs to the membership's organization.
type TenantGraph struct {
	db repositories.Handle
}

// NewTenantGraph creates a tenant graph reading through db.
func NewTenantGraph(db repositories.Handle) *TenantGraph {
	return &TenantGraph{db: db}
}

// CreateOrganization inserts an organization and returns its ID.
func (g *TenantGraph) CreateOrganization(ctx context.Context, h repositories.Handle, in OrganizationInput) (int64, error) {
	name, err := validateName("organization name", in.Name)
	if err != nil {
		return 0, err
	}
	org := &models.Organization{
		Name:     name,
		Details:  strings.TrimSpace(in.Details),
		Personal: in.Personal,
		Settings: in.Settings,
	}
	if err := repositories.NewOrganizationRepository(h).Create(ctx, org); err != nil {
		return 0, err
	}
	return org.ID, nil
}

// CreateRole adds a role named name to orgID. Names are unique per
// organization.
func (g *TenantGraph) CreateRole(ctx context.Context, h repositories.Handle, orgID int64, name, description string) (int64, error) {
	name, err := validateName("role name", name)
	if err != nil {
		return 0, err
	}
	if _, err := g.requireOrganization(ctx, h, orgID); err != nil {
		return 0, err
	}

	roles := repositories.NewRoleRepository(h)
	existing, err := roles.GetByName(ctx, orgID, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, domain.ErrConflict(domain.CodeDuplicateRole, "role %q already exists in organization %d", name, orgID)
	}

	role := &models.Role{OrgID: orgID, Name: name, Description: strings.TrimSpace(description)}
	if err := roles.Create(ctx, role); err != nil {
		return 0, err
	}
	return role.ID, nil
}

// CreateMembership links userID to orgID with roleID. Each referenced record
// must exist, the role must belong to orgID, and the pair must not already
// have a live membership.
func (g *TenantGraph) CreateMembership(ctx context.Context, h repositories.Handle, orgID, userID, roleID int64, status models.MembershipStatus) (int64, error) {
	user, err := repositories.NewUserRepository(h).GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, domain.ErrNotFound(domain.EntityUser, "user %d not found", userID)
	}
	if _, err := g.requireOrganization(ctx, h, orgID); err != nil {
		return 0, err
	}
	return g.addMember(ctx, h, orgID, userID, roleID, status)
}

// addMember is CreateMembership for callers that have already loaded the
// user and the organization.
func (g *TenantGraph) addMember(ctx context.Context, h repositories.Handle, orgID, userID, roleID int64, status models.MembershipStatus) (int64, error) {
	if !status.Valid() || status == models.MembershipRemoved {
		return 0, domain.ErrValidation("invalid_status", "membership status %d cannot be created", status)
	}
	if _, err := g.requireRoleInOrg(ctx, h, orgID, roleID); err != nil {
		return 0, err
	}

	memberships := repositories.NewMembershipRepository(h)
	live, err := memberships.GetLive(ctx, orgID, userID)
	if err != nil {
		return 0, err
	}
	if live != nil {
		return 0, domain.ErrConflict(domain.CodeDuplicateMembership,
			"user %d already has a %s membership in organization %d", userID, live.Status, orgID)
	}

	m := &models.Membership{OrgID: orgID, UserID: userID, RoleID: roleID, Status: status}
	// the partial unique index catches a concurrent insert that passed the check
	if err := memberships.Create(ctx, m); err != nil {
		return 0, err
	}
	return m.ID, nil
}

// FindMembership returns the live membership of userID in orgID, or nil.
func (g *TenantGraph) FindMembership(ctx context.Context, orgID, userID int64) (*models.MembershipDetail, error) {
	return repositories.NewMembershipRepository(g.db).GetLive(ctx, orgID, userID)
}

// ListByRole returns the live memberships in orgID holding roleID.
func (g *TenantGraph) ListByRole(ctx context.Context, orgID, roleID int64) ([]*models.MembershipDetail, error) {
	return repositories.NewMembershipRepository(g.db).ListByRole(ctx, orgID, roleID)
}

// ListByOrg returns the live memberships of orgID.
func (g *TenantGraph) ListByOrg(ctx context.Context, orgID int64) ([]*models.MembershipDetail, error) {
	return repositories.NewMembershipRepository(g.db).ListByOrg(ctx, orgID)
}

// ListByUser returns the live memberships of userID in every organization.
func (g *TenantGraph) ListByUser(ctx context.Context, userID int64) ([]*models.MembershipDetail, error) {
	return repositories.NewMembershipRepository(g.db).ListByUser(ctx, userID)
}

// ListRoles returns the roles defined in orgID.
func (g *TenantGraph) ListRoles(ctx context.Context, orgID int64) ([]*models.Role, error) {
	return repositories.NewRoleRepository(g.db).ListByOrg(ctx, orgID)
}

// UpdateMembershipRole moves the live membership of userID in orgID to
// newRoleID, which must belong to orgID. The organization's last active
// owner cannot be moved off the owner role.
func (g *TenantGraph) UpdateMembershipRole(ctx context.Context, h repositories.Handle, orgID, userID, newRoleID int64) error {
	role, err := g.requireRoleInOrg(ctx, h, orgID, newRoleID)
	if err != nil {
		return err
	}
	if role.Name != models.RoleOwner {
		if err := g.guardLastOwner(ctx, h, orgID, userID); err != nil {
			return err
		}
	}
	changed, err := repositories.NewMembershipRepository(h).UpdateRole(ctx, orgID, userID, newRoleID)
	if err != nil {
		return err
	}
	if !changed {
		return membershipNotFound(orgID, userID)
	}
	return nil
}

// RemoveMembership marks the live membership of userID in orgID removed.
// Removing again reports NotFoundError; other memberships are untouched.
// The organization's last active owner cannot be removed.
func (g *TenantGraph) RemoveMembership(ctx context.Context, h repositories.Handle, orgID, userID int64) error {
	if err := g.guardLastOwner(ctx, h, orgID, userID); err != nil {
		return err
	}
	changed, err := repositories.NewMembershipRepository(h).SetStatus(ctx, orgID, userID, models.MembershipRemoved)
	if err != nil {
		return err
	}
	if !changed {
		return membershipNotFound(orgID, userID)
	}
	return nil
}

// AcceptInvite activates a pending membership. Accepting an already active
// membership is a no-op.
func (g *TenantGraph) AcceptInvite(ctx context.Context, h repositories.Handle, orgID, userID int64) error {
	memberships := repositories.NewMembershipRepository(h)
	changed, err := memberships.SetStatus(ctx, orgID, userID, models.MembershipActive, models.MembershipPending)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}

	live, err := memberships.GetLive(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if live == nil {
		return membershipNotFound(orgID, userID)
	}
	return nil
}

// guardLastOwner rejects losing userID's owner membership in orgID when it
// is the only active one. Owner rows stay locked until h's transaction ends.
func (g *TenantGraph) guardLastOwner(ctx context.Context, h repositories.Handle, orgID, userID int64) error {
	memberships := repositories.NewMembershipRepository(h)
	live, err := memberships.GetLive(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if live == nil || live.Status != models.MembershipActive || live.RoleName != models.RoleOwner {
		return nil
	}

	owners, err := memberships.LockActiveWithRole(ctx, orgID, models.RoleOwner)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return domain.ErrConflict(domain.CodeLastOwner,
			"user %d is the last owner of organization %d", userID, orgID)
	}
	return nil
}

func (g *TenantGraph) requireOrganization(ctx context.Context, h repositories.Handle, orgID int64) (*models.Organization, error) {
	org, err := repositories.NewOrganizationRepository(h).GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound(domain.EntityOrganization, "organization %d not found", orgID)
	}
	return org, nil
}

// requireRoleInOrg loads roleID and rejects roles owned by another tenant.
func (g *TenantGraph) requireRoleInOrg(ctx context.Context, h repositories.Handle, orgID, roleID int64) (*models.Role, error) {
	role, err := repositories.NewRoleRepository(h).GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, domain.ErrNotFound(domain.EntityRole, "role %d not found", roleID)
	}
	if role.OrgID != orgID {
		return nil, domain.ErrValidation(domain.CodeCrossTenantRole,
			"role %d belongs to organization %d, not %d", roleID, role.OrgID, orgID)
	}
	return role, nil
}

func membershipNotFound(orgID, userID int64) error {
	return domain.ErrNotFound(domain.EntityMembership, "user %d has no membership in organization %d", userID, orgID)
}

func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrValidation("name_required", "%s is required", field)
	}
	if len(name) > maxNameLength {
		return "", domain.ErrValidation("name_too_long", "%s must be at most %d characters", field, maxNameLength)
	}
	return name, nil
}
