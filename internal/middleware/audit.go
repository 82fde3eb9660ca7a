// audit.go provides Gin middleware that records successful write operations as
// structured audit log records.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/audit"
	"github.com/MURUGANQA/auth-service/internal/safego"
)

const auditShipTimeout = 5 * time.Second

// AuditMiddleware emits one "audit" record per successful mutating request.
// Reads and failed requests are not recorded. A nil logger uses slog.Default.
// When sink is non-nil each record is also shipped to it in the background.
func AuditMiddleware(logger *slog.Logger, sink audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() >= 400 {
			return
		}

		l := logger
		if l == nil {
			l = slog.Default()
		}

		route := c.FullPath()
		entry := &audit.Entry{
			Timestamp:    time.Now().UTC(),
			Action:       auditAction(c.Request.Method, route),
			ResourceType: resourceType(route),
			Route:        route,
			Status:       c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			RequestID:    c.GetString(RequestIDKey),
			OrgID:        OrgID(c),
			TargetUserID: c.Param("user_id"),
		}
		if uid, ok := UserID(c); ok {
			entry.UserID = uid
		}

		l.LogAttrs(c.Request.Context(), slog.LevelInfo, "audit", entryAttrs(entry)...)

		if sink != nil {
			safego.Go("audit.ship", func() {
				ctx, cancel := context.WithTimeout(context.Background(), auditShipTimeout)
				defer cancel()
				if err := sink.Ship(ctx, entry); err != nil {
					l.Warn("failed to ship audit record", "action", entry.Action, "error", err)
				}
			})
		}
	}
}

func entryAttrs(e *audit.Entry) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.String("resource_type", e.ResourceType),
		slog.String("route", e.Route),
		slog.Int("status", e.Status),
		slog.String("ip", e.IPAddress),
		slog.String("request_id", e.RequestID),
	}
	if e.UserID > 0 {
		attrs = append(attrs, slog.Int64("user_id", e.UserID))
	}
	if e.OrgID > 0 {
		attrs = append(attrs, slog.Int64("org_id", e.OrgID))
	}
	if e.TargetUserID != "" {
		attrs = append(attrs, slog.String("target_user_id", e.TargetUserID))
	}
	return attrs
}

// resourceType names the entity a route template mutates.
func resourceType(route string) string {
	switch {
	case strings.Contains(route, "/invites"):
		return "invite"
	case strings.Contains(route, "/members"):
		return "membership"
	case strings.Contains(route, "/roles"):
		return "role"
	case strings.Contains(route, "/auth/"):
		return "credential"
	case strings.Contains(route, "/organizations"):
		return "organization"
	default:
		return "unknown"
	}
}

func auditAction(method, route string) string {
	resource := resourceType(route)
	switch {
	case strings.HasSuffix(route, "/accept"):
		return resource + ".accepted"
	case strings.HasSuffix(route, "/signup"):
		return "account.created"
	case strings.HasSuffix(route, "/reset-password"):
		return "password.updated"
	case strings.HasSuffix(route, "/signin"):
		return "session.created"
	case strings.HasSuffix(route, "/refresh"):
		return "session.refreshed"
	}
	switch method {
	case http.MethodPost:
		return resource + ".created"
	case http.MethodPut, http.MethodPatch:
		return resource + ".updated"
	case http.MethodDelete:
		return resource + ".deleted"
	default:
		return strings.ToLower(method) + " " + route
	}
}
