// Package auth - jwt.go issues and verifies the HS256 access/refresh token pair
// handed out at signin and signup.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MURUGANQA/auth-service/internal/domain"
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	minSecretLength   = 32
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is returned to clients after a successful signin, signup or
// refresh. ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ResolveJWTSecret validates the configured signing secret. When it is empty,
// development mode gets a random per-process secret and production fails.
func ResolveJWTSecret(secret string, devMode bool) (string, error) {
	if secret == "" {
		if !devMode {
			return "", errors.New("SECURITY ERROR: AUTHSVC_JWT_SECRET environment variable is required in production. " +
				"Generate a secure secret with: openssl rand -hex 32")
		}
		slog.Warn("AUTHSVC_JWT_SECRET not set, using auto-generated secret for development; sessions will not survive restarts")
		return generateRandomSecret(), nil
	}
	if len(secret) < minSecretLength {
		slog.Warn("AUTHSVC_JWT_SECRET is shorter than recommended", "min_length", minSecretLength)
	}
	return secret, nil
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// TokenIssuer signs and verifies tokens with a single HMAC secret.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates an issuer. Zero TTLs fall back to one hour for
// access tokens and seven days for refresh tokens.
func NewTokenIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL returns the access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.accessTTL }

// IssuePair creates a fresh access and refresh token for the user.
func (i *TokenIssuer) IssuePair(userID int64, email string) (TokenPair, error) {
	access, err := i.sign(userID, email, TokenTypeAccess, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(userID, email, TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(i.accessTTL / time.Second),
	}, nil
}

func (i *TokenIssuer) sign(userID int64, email, typ string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return s, nil
}

// Parse verifies tokenString and checks that it carries wantType. Every
// failure is reported as the same invalid_token AuthError.
func (i *TokenIssuer) Parse(tokenString, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithTimeFunc(i.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, invalidToken()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Type != wantType || claims.UserID <= 0 {
		return nil, invalidToken()
	}
	return claims, nil
}

func invalidToken() error {
	return &domain.AuthError{Code: domain.CodeInvalidToken, Message: "invalid or expired token"}
}
