// Package middleware provides Gin HTTP middleware for authentication,
// organization-scoped authorization, rate limiting, security headers and
// audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Org check → Audit → Handler
//
// Rate limiting runs before auth so credential guessing is refused before any
// bcrypt or store work. Auth populates the caller identity; the org checks
// read it and resolve the caller's membership in the :org_id path parameter.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
)

// TokenParser verifies a signed token of the given type. *auth.TokenIssuer
// satisfies it.
type TokenParser interface {
	Parse(token, wantType string) (*auth.Claims, error)
}

// AccountChecker confirms the token's subject is still an active account.
// *services.CredentialStore satisfies it.
type AccountChecker interface {
	CheckActive(ctx context.Context, userID int64) error
}

// AuthMiddleware requires a valid access token in the Authorization header.
// Refresh tokens are rejected here. When accounts is non-nil the subject must
// still be active, so disabling an account revokes its outstanding tokens.
func AuthMiddleware(tokens TokenParser, accounts AccountChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			telemetry.AuthFailuresTotal.WithLabelValues(domain.CodeInvalidToken).Inc()
			abortWithError(c, &domain.AuthError{
				Code:    domain.CodeInvalidToken,
				Message: "missing or malformed bearer token",
			})
			return
		}

		claims, err := tokens.Parse(token, auth.TokenTypeAccess)
		if err != nil {
			telemetry.AuthFailuresTotal.WithLabelValues(domain.CodeInvalidToken).Inc()
			abortWithError(c, err)
			return
		}

		if accounts != nil {
			if err := accounts.CheckActive(c.Request.Context(), claims.UserID); err != nil {
				abortWithError(c, err)
				return
			}
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserEmailKey, claims.Email)
		c.Next()
	}
}

// UserID returns the authenticated caller's id.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

// UserEmail returns the authenticated caller's email.
func UserEmail(c *gin.Context) string {
	return c.GetString(UserEmailKey)
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// requireCaller aborts with 401 when AuthMiddleware did not run first.
func requireCaller(c *gin.Context) (int64, bool) {
	id, ok := UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(domain.KindAuth, domain.CodeInvalidToken, "", "authentication required"))
		return 0, false
	}
	return id, true
}
