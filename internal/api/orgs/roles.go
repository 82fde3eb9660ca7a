package orgs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/middleware"
)

// CreateRoleRequest is the body of POST /organizations/:org_id/roles
type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// @Summary      List roles
// @Description  Lists the roles defined in the organization.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        org_id  path  int  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "roles: []models.Role"
// @Failure      403  {object}  map[string]interface{}  "Caller is not a member"
// @Router       /api/v1/organizations/{org_id}/roles [get]
// ListRolesHandler lists the roles defined in the organization
func (h *MemberHandlers) ListRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := h.directory.ListRoles(c.Request.Context(), middleware.OrgID(c))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"roles": roles})
	}
}

// @Summary      Create role
// @Description  Defines a new role in the organization. Names are unique per organization.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        org_id  path  int                true  "Organization ID"
// @Param        body    body  CreateRoleRequest  true  "Role"
// @Success      201  {object}  map[string]interface{}  "role_id"
// @Failure      403  {object}  map[string]interface{}  "Caller is not an administrator"
// @Failure      409  {object}  map[string]interface{}  "Role name taken"
// @Router       /api/v1/organizations/{org_id}/roles [post]
// CreateRoleHandler defines a new role in the organization
func (h *MemberHandlers) CreateRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRoleRequest
		if !middleware.BindJSON(c, &req) {
			return
		}

		id, err := h.memberships.CreateRole(c.Request.Context(), middleware.OrgID(c), req.Name, req.Description)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"role_id": id})
	}
}
