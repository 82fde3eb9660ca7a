// Package orgs implements the organization-scoped endpoints: member listing,
// invitations, role changes, removal, role definitions and membership
// reports. Authorization is enforced by the middleware mounted in router.go;
// handlers read the organization id it stores.
package orgs

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/middleware"
	"github.com/MURUGANQA/auth-service/internal/services"
)

// Memberships runs membership mutations. *services.MembershipService
// satisfies it.
type Memberships interface {
	Invite(ctx context.Context, req services.InviteRequest) (int64, error)
	AcceptInvite(ctx context.Context, orgID, userID int64) error
	ChangeRole(ctx context.Context, orgID, userID, roleID int64) error
	Remove(ctx context.Context, orgID, userID int64) error
	CreateRole(ctx context.Context, orgID int64, name, description string) (int64, error)
}

// Directory reads the tenant graph. *services.TenantGraph satisfies it.
type Directory interface {
	ListByOrg(ctx context.Context, orgID int64) ([]*models.MembershipDetail, error)
	ListByRole(ctx context.Context, orgID, roleID int64) ([]*models.MembershipDetail, error)
	ListRoles(ctx context.Context, orgID int64) ([]*models.Role, error)
}

// MemberHandlers handles membership and role endpoints
type MemberHandlers struct {
	memberships Memberships
	directory   Directory
}

// NewMemberHandlers creates a new MemberHandlers instance
func NewMemberHandlers(memberships Memberships, directory Directory) *MemberHandlers {
	return &MemberHandlers{memberships: memberships, directory: directory}
}

// InviteRequest is the body of POST /organizations/:org_id/members
type InviteRequest struct {
	Email  string `json:"email" binding:"required"`
	RoleID int64  `json:"role_id" binding:"required"`
}

// ChangeRoleRequest is the body of PUT /organizations/:org_id/members/:user_id
type ChangeRoleRequest struct {
	RoleID int64 `json:"role_id" binding:"required"`
}

// @Summary      List members
// @Description  Lists the live memberships of an organization, optionally filtered by role.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        org_id   path   int  true   "Organization ID"
// @Param        role_id  query  int  false  "Only members holding this role"
// @Success      200  {object}  map[string]interface{}  "members: []models.MembershipDetail"
// @Failure      403  {object}  map[string]interface{}  "Caller is not a member"
// @Router       /api/v1/organizations/{org_id}/members [get]
// ListMembersHandler lists an organization's members
func (h *MemberHandlers) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrgID(c)

		var (
			members []*models.MembershipDetail
			err     error
		)
		if raw := c.Query("role_id"); raw != "" {
			roleID, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil || roleID <= 0 {
				middleware.RespondError(c, domain.ErrValidation("invalid_role_id", "role_id must be a positive integer"))
				return
			}
			members, err = h.directory.ListByRole(c.Request.Context(), orgID, roleID)
		} else {
			members, err = h.directory.ListByOrg(c.Request.Context(), orgID)
		}
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

// @Summary      Invite member
// @Description  Adds a pending membership for an existing account and emails an acceptance link.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        org_id  path  int            true  "Organization ID"
// @Param        body    body  InviteRequest  true  "Invitee"
// @Success      201  {object}  map[string]interface{}  "membership_id, status"
// @Failure      404  {object}  map[string]interface{}  "Unknown account or role"
// @Failure      409  {object}  map[string]interface{}  "Already a member"
// @Router       /api/v1/organizations/{org_id}/members [post]
// InviteMemberHandler invites an account into the organization
func (h *MemberHandlers) InviteMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InviteRequest
		if !middleware.BindJSON(c, &req) {
			return
		}

		id, err := h.memberships.Invite(c.Request.Context(), services.InviteRequest{
			Email:  req.Email,
			OrgID:  middleware.OrgID(c),
			RoleID: req.RoleID,
		})
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"membership_id": id,
			"status":        models.MembershipPending.String(),
		})
	}
}

// @Summary      Change member role
// @Description  Moves a member to another role of the same organization. The last owner cannot be demoted.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        org_id   path  int                true  "Organization ID"
// @Param        user_id  path  int                true  "User ID"
// @Param        body     body  ChangeRoleRequest  true  "New role"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Role belongs to another organization"
// @Failure      404  {object}  map[string]interface{}  "Unknown membership or role"
// @Failure      409  {object}  map[string]interface{}  "Last owner"
// @Router       /api/v1/organizations/{org_id}/members/{user_id} [put]
// UpdateMemberRoleHandler moves a member to another role of the same
// organization
func (h *MemberHandlers) UpdateMemberRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := middleware.ParseIDParam(c, "user_id")
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		var req ChangeRoleRequest
		if !middleware.BindJSON(c, &req) {
			return
		}

		if err := h.memberships.ChangeRole(c.Request.Context(), middleware.OrgID(c), userID, req.RoleID); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "member role updated"})
	}
}

// @Summary      Remove member
// @Description  Soft-removes a membership. The last owner cannot be removed.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        org_id   path  int  true  "Organization ID"
// @Param        user_id  path  int  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "No live membership"
// @Failure      409  {object}  map[string]interface{}  "Last owner"
// @Router       /api/v1/organizations/{org_id}/members/{user_id} [delete]
// RemoveMemberHandler removes a member from the organization
func (h *MemberHandlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := middleware.ParseIDParam(c, "user_id")
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		if err := h.memberships.Remove(c.Request.Context(), middleware.OrgID(c), userID); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "member removed"})
	}
}

// @Summary      Accept invite
// @Description  Activates the caller's pending membership in the organization.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        org_id  path  int  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "status: active"
// @Failure      404  {object}  map[string]interface{}  "No invite"
// @Router       /api/v1/organizations/{org_id}/invites/accept [post]
// AcceptInviteHandler activates the caller's pending membership. It runs
// without the org membership check: a pending invitee is not yet a member.
func (h *MemberHandlers) AcceptInviteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := middleware.UserID(c)
		if !ok {
			middleware.RespondError(c, &domain.AuthError{Code: domain.CodeInvalidToken, Message: "authentication required"})
			return
		}
		orgID, err := middleware.ParseIDParam(c, "org_id")
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		if err := h.memberships.AcceptInvite(c.Request.Context(), orgID, callerID); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": models.MembershipActive.String()})
	}
}
