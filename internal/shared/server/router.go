package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/export"
	"onboarding-backend/internal/selection"
	"onboarding-backend/internal/services/health"
	"onboarding-backend/internal/shared/config"
	"onboarding-backend/internal/shared/metrics"
	"onboarding-backend/internal/shared/server/middleware"
	"onboarding-backend/internal/shared/server/respond"
	"onboarding-backend/internal/usage"
)

const healthPath = "/api/v1/health"

// RouterDeps bundles the handlers and services the router mounts.
type RouterDeps struct {
	Config           config.Config
	Verifier         middleware.TokenVerifier
	Health           *health.Service
	AnalysisHandler  *analyses.Handler
	SelectionHandler *selection.Handler
	UsageHandler     *usage.Handler
	ExportHandler    *export.Handler
	RateLimiter      *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Auth(deps.Verifier, healthPath),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: "DEFAULT",
			GroupFor:     rateLimitGroup,
			Limiter:      deps.RateLimiter,
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 10, Burst: 40},
				"SUBMIT":  {Rate: 0.2, Burst: 3},
				"EXPORT":  {Rate: 0.5, Burst: 5},
				"HEALTH":  {}, // unthrottled for probes
			},
		}),
	)
	api.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		payload := gin.H{"ok": true}
		if deps.Health != nil {
			report := deps.Health.Check(c.Request.Context())
			if !report.OK {
				status = http.StatusServiceUnavailable
			}
			payload = gin.H{"ok": report.OK, "storage": report.Storage, "db": report.Database, "pool": report.Pool}
		}
		respond.JSON(c, status, payload)
	})
	registerMeRoutes(api)

	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.ExportHandler != nil {
		deps.ExportHandler.RegisterRoutes(api)
	}
	if deps.SelectionHandler != nil {
		deps.SelectionHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	switch {
	case c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/analyses/submit":
		return "SUBMIT"
	case c.FullPath() == "/api/v1/analyses/export.xlsx",
		c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/exports":
		return "EXPORT"
	case strings.HasSuffix(c.Request.URL.Path, "/health"):
		return "HEALTH"
	default:
		return "DEFAULT"
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
