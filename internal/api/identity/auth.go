// Package identity implements the account endpoints: signup, signin, token
// refresh, password reset and the caller's own memberships.
package identity

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/middleware"
	"github.com/MURUGANQA/auth-service/internal/services"
)

// Accounts creates new accounts. *services.MembershipService satisfies it.
type Accounts interface {
	Signup(ctx context.Context, req services.SignupRequest) (*services.SignupResult, error)
}

// Credentials verifies and rotates credentials. *services.CredentialStore
// satisfies it.
type Credentials interface {
	SignIn(ctx context.Context, email, password string) (*models.User, auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	ResetPassword(ctx context.Context, email, newPassword string) error
}

// MembershipLister lists a user's memberships. *services.TenantGraph
// satisfies it.
type MembershipLister interface {
	ListByUser(ctx context.Context, userID int64) ([]*models.MembershipDetail, error)
}

// AuthHandlers handles account endpoints
type AuthHandlers struct {
	accounts    Accounts
	credentials Credentials
	memberships MembershipLister
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(accounts Accounts, credentials Credentials, memberships MembershipLister) *AuthHandlers {
	return &AuthHandlers{
		accounts:    accounts,
		credentials: credentials,
		memberships: memberships,
	}
}

// SignupRequest is the body of POST /api/v1/auth/signup
type SignupRequest struct {
	Email               string `json:"email" binding:"required"`
	Password            string `json:"password" binding:"required"`
	OrganizationName    string `json:"organization_name"`
	OrganizationDetails string `json:"organization_details"`
}

// SignInRequest is the body of POST /api/v1/auth/signin
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest is the body of POST /api/v1/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ResetPasswordRequest is the body of POST /api/v1/auth/reset-password
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// @Summary      Sign up
// @Description  Creates an account with its personal organization and owner membership, and returns a token pair.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  SignupRequest  true  "Account details"
// @Success      201  {object}  map[string]interface{}  "user_id, organization_id, role_id, access_token, refresh_token, expires_in"
// @Failure      400  {object}  map[string]interface{}  "Invalid email or weak password"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/auth/signup [post]
// SignupHandler registers a new account
func (h *AuthHandlers) SignupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignupRequest
		if !middleware.BindJSON(c, &req) {
			return
		}

		res, err := h.accounts.Signup(c.Request.Context(), services.SignupRequest{
			Email:      req.Email,
			Password:   req.Password,
			OrgName:    req.OrganizationName,
			OrgDetails: req.OrganizationDetails,
		})
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user_id":         res.UserID,
			"organization_id": res.OrgID,
			"role_id":         res.RoleID,
			"access_token":    res.Tokens.AccessToken,
			"refresh_token":   res.Tokens.RefreshToken,
			"expires_in":      res.Tokens.ExpiresIn,
		})
	}
}

// @Summary      Sign in
// @Description  Verifies email and password and returns a token pair. Unknown emails and wrong passwords are indistinguishable.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  SignInRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "user, access_token, refresh_token, expires_in"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      429  {object}  map[string]interface{}  "Rate limited"
// @Router       /api/v1/auth/signin [post]
// SignInHandler authenticates an account
func (h *AuthHandlers) SignInHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignInRequest
		if !middleware.BindJSON(c, &req) {
			return
		}

		user, pair, err := h.credentials.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":          user,
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_in":    pair.ExpiresIn,
		})
	}
}

// @Summary      Refresh tokens
// @Description  Exchanges a refresh token for a new token pair. The account must still be active.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  RefreshRequest  true  "Refresh token"
// @Success      200  {object}  auth.TokenPair
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired token"
// @Router       /api/v1/auth/refresh [post]
// RefreshHandler exchanges a refresh token for a new pair
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if !middleware.BindJSON(c, &req) {
			return
		}

		pair, err := h.credentials.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, pair)
	}
}

// @Summary      Reset password
// @Description  Replaces the authenticated caller's password and sends a confirmation email.
// @Tags         Authentication
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ResetPasswordRequest  true  "New password"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Weak password"
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Failure      429  {object}  map[string]interface{}  "Rate limited"
// @Router       /api/v1/auth/reset-password [post]
// ResetPasswordHandler replaces the authenticated caller's password
func (h *AuthHandlers) ResetPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := middleware.UserEmail(c)
		if email == "" {
			middleware.RespondError(c, &domain.AuthError{Code: domain.CodeInvalidToken, Message: "authentication required"})
			return
		}

		var req ResetPasswordRequest
		if !middleware.BindJSON(c, &req) {
			return
		}

		if err := h.credentials.ResetPassword(c.Request.Context(), email, req.NewPassword); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}

// @Summary      My memberships
// @Description  Lists the caller's live memberships across organizations, including pending invites.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "memberships: []models.MembershipDetail"
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/me/memberships [get]
// MyMembershipsHandler lists the caller's memberships across organizations,
// including pending invites
func (h *AuthHandlers) MyMembershipsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			middleware.RespondError(c, &domain.AuthError{Code: domain.CodeInvalidToken, Message: "authentication required"})
			return
		}

		memberships, err := h.memberships.ListByUser(c.Request.Context(), userID)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"memberships": memberships})
	}
}
