// stats.go implements the membership reporting endpoints.
package orgs

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/middleware"
)

// StatsReader runs the reporting queries. *repositories.StatsRepository
// satisfies it.
type StatsReader interface {
	RoleWiseUsers(ctx context.Context, f models.StatsFilter) ([]models.RoleUserCount, error)
	OrgWiseMembers(ctx context.Context, f models.StatsFilter) ([]models.OrgMemberCount, error)
	OrgRoleWiseUsers(ctx context.Context, f models.StatsFilter) ([]models.OrgRoleUserCount, error)
}

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	stats StatsReader
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(stats StatsReader) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// @Summary      Users per role
// @Description  Counts members per role name across the caller's organizations.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Param        from_date  query  string  false  "Epoch seconds or YYYY-MM-DD"
// @Param        to_date    query  string  false  "Epoch seconds or YYYY-MM-DD"
// @Param        status     query  string  false  "pending, active, removed or the numeric code"
// @Success      200  {object}  map[string]interface{}  "role_wise_users: []models.RoleUserCount"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/stats/role-wise-users [get]
// RoleWiseUsers reports member counts per role name
func (h *StatsHandler) RoleWiseUsers(c *gin.Context) {
	f, ok := statsFilter(c)
	if !ok {
		return
	}
	rows, err := h.stats.RoleWiseUsers(c.Request.Context(), f)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role_wise_users": rows})
}

// @Summary      Members per organization
// @Description  Counts members of each of the caller's organizations.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Param        from_date  query  string  false  "Epoch seconds or YYYY-MM-DD"
// @Param        to_date    query  string  false  "Epoch seconds or YYYY-MM-DD"
// @Param        status     query  string  false  "pending, active, removed or the numeric code"
// @Success      200  {object}  map[string]interface{}  "org_wise_members: []models.OrgMemberCount"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/stats/org-wise-members [get]
// OrgWiseMembers reports member counts per organization
func (h *StatsHandler) OrgWiseMembers(c *gin.Context) {
	f, ok := statsFilter(c)
	if !ok {
		return
	}
	rows, err := h.stats.OrgWiseMembers(c.Request.Context(), f)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"org_wise_members": rows})
}

// @Summary      Users per organization and role
// @Description  Counts members per role within each of the caller's organizations.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Param        from_date  query  string  false  "Epoch seconds or YYYY-MM-DD"
// @Param        to_date    query  string  false  "Epoch seconds or YYYY-MM-DD"
// @Param        status     query  string  false  "pending, active, removed or the numeric code"
// @Success      200  {object}  map[string]interface{}  "org_role_wise_users: []models.OrgRoleUserCount"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/stats/org-role-wise-users [get]
// OrgRoleWiseUsers reports member counts per organization and role
func (h *StatsHandler) OrgRoleWiseUsers(c *gin.Context) {
	f, ok := statsFilter(c)
	if !ok {
		return
	}
	rows, err := h.stats.OrgRoleWiseUsers(c.Request.Context(), f)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"org_role_wise_users": rows})
}

// statsFilter reads from_date, to_date and status and scopes the report to
// the caller's active organizations. Dates are epoch seconds or YYYY-MM-DD
// (UTC); a bare to_date covers the whole day. status is the numeric code or
// its name.
func statsFilter(c *gin.Context) (models.StatsFilter, bool) {
	var f models.StatsFilter
	var err error

	viewer, ok := middleware.UserID(c)
	if !ok {
		middleware.RespondError(c, &domain.AuthError{Code: domain.CodeInvalidToken, Message: "authentication required"})
		return f, false
	}
	f.ViewerID = viewer

	if f.FromDate, err = parseDate(c.Query("from_date"), false); err != nil {
		middleware.RespondError(c, err)
		return f, false
	}
	if f.ToDate, err = parseDate(c.Query("to_date"), true); err != nil {
		middleware.RespondError(c, err)
		return f, false
	}
	if f.FromDate > 0 && f.ToDate > 0 && f.FromDate > f.ToDate {
		middleware.RespondError(c, domain.ErrValidation("invalid_date_range", "from_date must not be after to_date"))
		return f, false
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := parseStatus(raw)
		if err != nil {
			middleware.RespondError(c, err)
			return f, false
		}
		f.Status = &status
	}
	return f, true
}

func parseDate(raw string, endOfDay bool) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
		return n, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return 0, domain.ErrValidation("invalid_date", "%q is neither epoch seconds nor YYYY-MM-DD", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t.Unix(), nil
}

func parseStatus(raw string) (models.MembershipStatus, error) {
	if n, err := strconv.ParseInt(raw, 10, 16); err == nil {
		if s := models.MembershipStatus(n); s.Valid() {
			return s, nil
		}
	}
	for _, s := range []models.MembershipStatus{models.MembershipPending, models.MembershipActive, models.MembershipRemoved} {
		if strings.EqualFold(raw, s.String()) {
			return s, nil
		}
	}
	return 0, domain.ErrValidation("invalid_status", "unknown membership status %q", raw)
}
