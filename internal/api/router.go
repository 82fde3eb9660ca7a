// Package api wires together all HTTP routes for the auth service.
//
// Route grouping:
//   - /health and /ready are unauthenticated probes.
//   - /api/v1/auth/signup, signin and refresh are public; the credential
//     endpoints sit behind the Redis rate limiter.
//   - Everything else under /api/v1 requires an access token. Routes under
//     /api/v1/organizations/:org_id additionally require an active membership
//     in that organization, and mutations require the owner or admin role.
//     Accepting an invite only needs the token: the invitee is not yet active.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/MURUGANQA/auth-service/internal/api/identity"
	"github.com/MURUGANQA/auth-service/internal/api/orgs"
	"github.com/MURUGANQA/auth-service/internal/audit"
	"github.com/MURUGANQA/auth-service/internal/auth"
	"github.com/MURUGANQA/auth-service/internal/config"
	"github.com/MURUGANQA/auth-service/internal/db/repositories"
	"github.com/MURUGANQA/auth-service/internal/middleware"
	"github.com/MURUGANQA/auth-service/internal/notify"
	"github.com/MURUGANQA/auth-service/internal/services"
)

// Version is reported by /version and the server's version command.
var Version = "0.1.0"

// NewRouter creates and configures the Gin router. rdb may be nil, which
// disables rate limiting and the Redis readiness check. notifier and
// auditSink may be nil.
func NewRouter(cfg *config.Config, database *sqlx.DB, rdb *redis.Client, notifier *notify.Notifier, auditSink audit.Shipper) (*gin.Engine, error) {
	secret, err := auth.ResolveJWTSecret(cfg.Auth.JWTSecret, cfg.Server.DevMode)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenIssuer(secret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	credentials := services.NewCredentialStore(database, hasher, tokens, notifier)
	tenants := services.NewTenantGraph(database)
	memberships := services.NewMembershipService(database, credentials, tenants, notifier)

	authHandlers := identity.NewAuthHandlers(memberships, credentials, tenants)
	memberHandlers := orgs.NewMemberHandlers(memberships, tenants)
	statsHandler := orgs.NewStatsHandler(repositories.NewStatsRepository(database))

	router := gin.New()
	// ClientIP keys the rate limiter; only listed proxies may set X-Forwarded-For.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(database))
	router.GET("/ready", readinessHandler(database, redisPinger(rdb)))
	router.GET("/version", versionHandler())

	// Credential endpoints get the stricter limiter
	limit := func(c *gin.Context) { c.Next() }
	if cfg.Security.RateLimiting.Enabled && rdb != nil {
		limit = middleware.NewRateLimiter(rdb).Middleware(middleware.RateLimitConfigFrom(cfg.Security.RateLimiting))
	}

	requireAuth := middleware.AuthMiddleware(tokens, credentials)

	v1 := router.Group("/api/v1")
	v1.Use(RequestTimeoutMiddleware(cfg.Server.RequestTimeout))
	v1.Use(middleware.AuditMiddleware(slog.Default().With("component", "audit"), auditSink))
	{
		authGroup := v1.Group("/auth")
		authGroup.POST("/signup", limit, authHandlers.SignupHandler())
		authGroup.POST("/signin", limit, authHandlers.SignInHandler())
		authGroup.POST("/refresh", authHandlers.RefreshHandler())
		authGroup.POST("/reset-password", limit, requireAuth, authHandlers.ResetPasswordHandler())

		protected := v1.Group("", requireAuth)
		protected.GET("/me/memberships", authHandlers.MyMembershipsHandler())

		stats := protected.Group("/stats")
		stats.GET("/role-wise-users", statsHandler.RoleWiseUsers)
		stats.GET("/org-wise-members", statsHandler.OrgWiseMembers)
		stats.GET("/org-role-wise-users", statsHandler.OrgRoleWiseUsers)

		member := middleware.RequireOrgMember(memberships)
		admin := middleware.RequireOrgAdmin(memberships)

		org := protected.Group("/organizations/:org_id")
		org.GET("/members", member, memberHandlers.ListMembersHandler())
		org.POST("/members", admin, memberHandlers.InviteMemberHandler())
		org.PUT("/members/:user_id", admin, memberHandlers.UpdateMemberRoleHandler())
		org.DELETE("/members/:user_id", admin, memberHandlers.RemoveMemberHandler())
		org.GET("/roles", member, memberHandlers.ListRolesHandler())
		org.POST("/roles", admin, memberHandlers.CreateRoleHandler())
		org.POST("/invites/accept", memberHandlers.AcceptInviteHandler())
	}

	return router, nil
}

// Pinger is a dependency the probes can check.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func redisPinger(rdb *redis.Client) Pinger {
	if rdb == nil {
		return nil
	}
	return pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
}

const probeTimeout = 2 * time.Second

// @Summary      Health check
// @Description  Liveness probe. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Readiness probe. Checks the database and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks"
// @Router       /ready [get]
// readinessHandler reports whether the service can take traffic. Unlike
// /health it also checks Redis, which backs rate limiting.
func readinessHandler(db Pinger, cache Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()

		checks := gin.H{}
		ready := true

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			ready = false
		} else {
			checks["database"] = "healthy"
		}

		if cache != nil {
			if err := cache.PingContext(ctx); err != nil {
				checks["redis"] = "unhealthy"
				ready = false
			} else {
				checks["redis"] = "healthy"
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  ready,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// RequestTimeoutMiddleware bounds the context handed to handlers, so store
// calls made on behalf of a request give up after d. Zero disables it.
func RequestTimeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// LoggerMiddleware logs one structured record per request. The output format
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}
	wildcard := slices.Contains(cfg.Security.CORS.AllowedOrigins, "*")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && (wildcard || slices.Contains(cfg.Security.CORS.AllowedOrigins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
