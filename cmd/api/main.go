package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-marketplace-backend/config"
	_ "go-marketplace-backend/docs" // Important for Swagger
	v1 "go-marketplace-backend/internal/delivery/http/v1"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/internal/repository/flowstore"
	"go-marketplace-backend/internal/repository/identity"
	"go-marketplace-backend/internal/repository/postgres"
	"go-marketplace-backend/internal/session"
	"go-marketplace-backend/internal/usecase"
	"go-marketplace-backend/pkg/auth"
	"go-marketplace-backend/pkg/avatar"
	"go-marketplace-backend/pkg/database"
	"go-marketplace-backend/pkg/email"
	"go-marketplace-backend/pkg/logger"
	"go-marketplace-backend/pkg/otp"
	"go-marketplace-backend/pkg/redis"
	"go-marketplace-backend/pkg/security"
	"go-marketplace-backend/pkg/supabase"
	"go-marketplace-backend/pkg/token"
	"go-marketplace-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

// @title           Engineering Marketplace Auth API
// @version         1.0
// @description     Signup flow, sessions and role-guarded areas for the engineering marketplace.
// @host            localhost:8080
// @BasePath        /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Setup Loggers
	logger.Init(cfg.LogLevel)
	secLog := security.InitSecurityLogger("marketplace-auth", cfg.Environment)
	defer secLog.Sync()
	logger.Log.Info("Starting marketplace auth backend", "port", cfg.Port, "env", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Setup Database
	dbPool, err := database.NewPostgresConnection(ctx, cfg.DBUrl)
	if err != nil {
		logger.Log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	secLog.SetPersistFunc(security.NewEventStore(dbPool).Persist)

	// 4. Setup Redis. Everything backed by it has an in-process fallback.
	if err := redis.Initialize(redis.Config{URL: cfg.UpstashRedisURL, Password: cfg.UpstashRedisPassword}); err != nil {
		if !errors.Is(err, redis.ErrNotConfigured) {
			logger.Log.Warn("Redis unavailable, using in-memory stores", "error", err)
		}
	}
	defer redis.Close()
	rdb := redis.Client()

	// 5. Setup Repositories
	userRepo := postgres.NewUserRepository(dbPool)
	profileRepo := postgres.NewProfileRepository(dbPool)
	paymentRepo := postgres.NewPaymentRepository(dbPool)
	adminRepo := postgres.NewAdminRepository(dbPool)

	var flows domain.SignupFlowRepository
	var sessionStorage session.Storage
	if rdb != nil {
		flows = flowstore.NewRedisRepository(rdb)
		sessionStorage = session.NewRedisStorage(rdb, cfg.SessionTTL)
	} else {
		flows = flowstore.NewMemoryRepository()
		sessionStorage = session.NewMemoryStorage(cfg.SessionTTL)
	}

	// 6. Identity provider
	gotrue := supabase.NewClient(supabase.Config{
		URL:     cfg.SupabaseUrl,
		AnonKey: cfg.SupabaseKey,
		RPS:     cfg.IdentityRPS,
	})
	jwksProvider := auth.NewProvider(cfg.SupabaseUrl + "/auth/v1/.well-known/jwks.json")
	providerTokens := identity.NewTokenVerifier(auth.NewTokenVerifier(jwksProvider, cfg.SupabaseJWTSecret), gotrue)

	var identityProvider domain.IdentityProvider
	switch cfg.IdentityProvider {
	case "local":
		if cfg.IsProduction() {
			logger.Log.Error("IDENTITY_PROVIDER=local is not allowed in production")
			os.Exit(1)
		}
		identityProvider = identity.NewLocalProvider(dbPool)
	default:
		identityProvider = identity.NewSupabaseProvider(gotrue)
	}

	// 7. OTP verifier
	emailService := email.NewEmailService(cfg)
	otpVerifier, err := newOTPVerifier(cfg, gotrue, emailService, secLog)
	if err != nil {
		logger.Log.Error("Failed to configure OTP verifier", "provider", cfg.OTPProvider, "error", err)
		os.Exit(1)
	}

	// 8. Sessions
	authUC := usecase.NewAuthUsecase(userRepo, profileRepo)
	sessionManager := session.NewManager(sessionStorage, authUC, session.Options{
		InitTimeout: cfg.SessionInitTimeout,
		IdleTimeout: cfg.SessionIdleTimeout,
	})
	defer sessionManager.Close()
	tokens := token.NewService(cfg.SessionJWTSecret, cfg.SessionTTL)
	sessions := session.NewService(sessionManager, tokens)

	// 9. Setup UseCases
	validate := validation.New()
	loginTracker := security.NewLoginTracker(security.LoginTrackerConfig{
		MaxAttempts:   cfg.FailedLoginMaxAttempts,
		AttemptWindow: time.Duration(cfg.FailedLoginBlockMinutes) * time.Minute,
		BlockDuration: time.Duration(cfg.FailedLoginBlockMinutes) * time.Minute,
		UseIPTracking: true,
	}, rdb, secLog)

	authFlowUC := usecase.NewAuthFlowUsecase(usecase.AuthFlowDeps{
		Identity:       identityProvider,
		ProviderTokens: providerTokens,
		Flows:          flows,
		OTP:            otpVerifier,
		Auth:           authUC,
		Users:          userRepo,
		Profiles:       profileRepo,
		Sessions:       sessions,
		Logins:         loginTracker,
		SecurityLog:    secLog,
		Validate:       validate,
	}, usecase.AuthFlowConfig{
		FlowTTL:        cfg.SignupFlowTTL,
		MaxOTPAttempts: cfg.OTPMaxAttempts,
		ResendCooldown: cfg.OTPResendCooldown,
	})

	var avatars usecase.AvatarProcessor
	var avatarCheck usecase.HealthChecker
	if cfg.S3AccessKeyID != "" {
		store, err := avatar.NewS3Store(ctx, avatar.S3Config{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.AvatarBucket,
			PublicURL:       cfg.AvatarPublicURL,
		})
		if err != nil {
			logger.Log.Warn("Avatar storage unavailable", "error", err)
		} else {
			avatars = avatar.NewProcessor(store)
			avatarCheck = usecase.HealthCheckFunc(store.Ping)
		}
	} else {
		logger.Log.Warn("S3 credentials not configured - avatar uploads disabled")
	}

	profileUC := usecase.NewProfileUsecase(profileRepo, avatars, validate)
	paymentUC := usecase.NewPaymentUsecase(paymentRepo)
	dashboardUC := usecase.NewDashboardUsecase(profileRepo, paymentRepo)
	adminUC := usecase.NewAdminUsecase(adminRepo, secLog)

	var redisCheck usecase.HealthChecker
	if rdb != nil {
		redisCheck = usecase.HealthCheckFunc(redis.HealthCheck)
	}
	healthUC := usecase.NewHealthUsecase(map[string]usecase.HealthChecker{
		"database": usecase.HealthCheckFunc(dbPool.Ping),
		"redis":    redisCheck,
		"storage":  avatarCheck,
	})

	// 10. Background maintenance
	scheduler, err := scheduleMaintenance(flows, sessionManager)
	if err != nil {
		logger.Log.Error("Failed to schedule maintenance", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// 11. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		AuthFlowUC:  authFlowUC,
		AuthUC:      authUC,
		ProfileUC:   profileUC,
		PaymentUC:   paymentUC,
		DashboardUC: dashboardUC,
		AdminUC:     adminUC,
		HealthUC:    healthUC,
		Tokens:      tokens,
		Sessions:    sessionManager,
		Validate:    validate,
		SecurityLog: secLog,
		Config:      cfg,
	})

	// 12. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
			stop()
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}

// newOTPVerifier selects the code verifier. The fixed-code verifier is refused
// in production and logged as a security event everywhere else.
func newOTPVerifier(cfg *config.Config, gotrue *supabase.Client, mailer *email.EmailService, secLog *security.SecurityLogger) (domain.OTPVerifier, error) {
	switch cfg.OTPProvider {
	case "dev":
		v, err := otp.NewFixedCodeVerifier(cfg.IsProduction())
		if err != nil {
			return nil, err
		}
		secLog.Log(context.Background(), security.SecurityEvent{
			Event:       security.EventPlaceholderOTP,
			SubjectType: "system",
			Details:     map[string]interface{}{"environment": cfg.Environment},
		})
		logger.Log.Warn("Fixed OTP codes are accepted; never enable this outside development")
		return v, nil
	case "supabase":
		return otp.NewSupabaseService(gotrue), nil
	default:
		if !mailer.IsConfigured() {
			logger.Log.Warn("SMTP not configured - OTP emails cannot be delivered")
		}
		return otp.NewTOTPService("Muhandis", cfg.OTPPeriod, mailer), nil
	}
}

// scheduleMaintenance purges expired signup flows and closes idle session
// stores.
func scheduleMaintenance(flows domain.SignupFlowRepository, sessions *session.Manager) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc("@every 5m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := flows.PurgeExpired(ctx, time.Now())
		if err != nil {
			logger.Log.Warn("flow purge failed", "error", err)
			return
		}
		if n > 0 {
			logger.Log.Info("purged expired signup flows", "count", n)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every 1m", func() {
		if n := sessions.Sweep(time.Now()); n > 0 {
			logger.Log.Debug("closed idle session stores", "count", n)
		}
	}); err != nil {
		return nil, err
	}
	return c, nil
}
