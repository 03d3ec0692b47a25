package v1

import (
	"time"

	"go-marketplace-backend/config"
	"go-marketplace-backend/internal/delivery/http/middleware"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/internal/session"
	"go-marketplace-backend/internal/usecase"
	"go-marketplace-backend/pkg/metrics"
	"go-marketplace-backend/pkg/security"
	"go-marketplace-backend/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	AuthFlowUC  domain.AuthFlowUsecase
	AuthUC      domain.AuthUsecase
	ProfileUC   domain.ProfileUsecase
	PaymentUC   domain.PaymentUsecase
	DashboardUC domain.DashboardUsecase
	AdminUC     domain.AdminUsecase
	HealthUC    usecase.HealthUsecase
	Tokens      *token.Service
	Sessions    *session.Manager
	Validate    *validator.Validate
	SecurityLog *security.SecurityLogger
	Config      *config.Config
}

func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	r := gin.New()

	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	globalLimit := middleware.DefaultRateLimitConfig(cfg.RateLimitGlobalThreshold)
	globalLimit.Window = window
	authLimit := middleware.AuthRateLimitConfig(cfg.RateLimitLoginThreshold)
	authLimit.Window = window

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.IsProduction())) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(middleware.AccessLogger(nil))
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeadersMiddleware(cfg.AvatarPublicURL))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimitMiddleware(globalLimit))

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	v1 := r.Group("/v1")

	NewHealthHandler(v1, deps.HealthUC)

	// Swagger
	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	NewNavigationHandler(v1, middleware.OptionalSession(deps.Tokens, deps.Sessions))

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.CSRFProtect(cfg.IsProduction()), middleware.SessionAuth(deps.Tokens, deps.Sessions))
	{
		NewAuthHandler(v1, protected, deps.AuthFlowUC, deps.AuthUC, AuthRouteOptions{
			AuthLimit:     middleware.RateLimitMiddleware(authLimit),
			OTPLimit:      middleware.RateLimitMiddleware(middleware.OTPRateLimitConfig()),
			SecureCookies: cfg.IsProduction(),
		})
		NewSessionHandler(protected, deps.ProfileUC, deps.Validate, SessionRouteOptions{
			Origins:       middleware.NewOriginPolicy(cfg.AllowedOrigins, cfg.IsProduction()),
			SecureCookies: cfg.IsProduction(),
			SecurityLog:   deps.SecurityLog,
		})
		NewProfileHandler(protected, deps.ProfileUC, middleware.RateLimitMiddleware(middleware.UploadRateLimitConfig()))
		NewPaymentHandler(protected, deps.PaymentUC)
		NewDashboardHandler(protected, deps.DashboardUC, deps.SecurityLog)
		NewAdminHandler(protected, deps.AdminUC, deps.SecurityLog)
	}

	return r
}
