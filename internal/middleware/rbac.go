// Package middleware (rbac.go) implements organization-scoped authorization.
//
// Membership is resolved on every request rather than embedded in the access
// token, so a role change or removal takes effect on the caller's next request.
package middleware

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/domain"
)

// OrgIDKey is the gin.Context key holding the parsed :org_id parameter.
const OrgIDKey = "org_id"

// OrgAuthorizer decides whether a caller may act within an organization.
// *services.MembershipService satisfies it.
type OrgAuthorizer interface {
	RequireOrgMember(ctx context.Context, callerID, orgID int64) error
	RequireOrgAdmin(ctx context.Context, callerID, orgID int64) error
}

// RequireOrgMember admits callers holding an active membership in :org_id.
func RequireOrgMember(authz OrgAuthorizer) gin.HandlerFunc {
	return requireOrg(authz.RequireOrgMember)
}

// RequireOrgAdmin admits callers holding an active owner or admin membership
// in :org_id.
func RequireOrgAdmin(authz OrgAuthorizer) gin.HandlerFunc {
	return requireOrg(authz.RequireOrgAdmin)
}

func requireOrg(check func(ctx context.Context, callerID, orgID int64) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := requireCaller(c)
		if !ok {
			return
		}

		orgID, err := ParseIDParam(c, "org_id")
		if err != nil {
			abortWithError(c, err)
			return
		}

		if err := check(c.Request.Context(), callerID, orgID); err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(OrgIDKey, orgID)
		c.Next()
	}
}

// OrgID returns the organization id stored by the org checks.
func OrgID(c *gin.Context) int64 {
	v, _ := c.Get(OrgIDKey)
	id, _ := v.(int64)
	return id
}

// ParseIDParam reads a positive integer path parameter.
func ParseIDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrValidation("invalid_"+name, "%s must be a positive integer", name)
	}
	return id, nil
}
