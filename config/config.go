package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	DBUrl             string
	SupabaseUrl       string
	SupabaseKey       string
	SupabaseJWTSecret string
	FrontendURL       string
	AllowedOrigins    []string
	// Identity & OTP
	IdentityProvider  string // supabase | local
	OTPProvider       string // totp | supabase | dev
	OTPPeriod         time.Duration
	OTPMaxAttempts    int
	OTPResendCooldown time.Duration
	SignupFlowTTL     time.Duration
	// Session
	SessionJWTSecret   string
	SessionTTL         time.Duration
	SessionInitTimeout time.Duration
	SessionIdleTimeout time.Duration
	// SMTP Configuration (Brevo)
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	// Redis/Upstash Configuration
	UpstashRedisURL      string
	UpstashRedisPassword string
	// Rate Limiting Configuration
	RateLimitWindowSeconds   int
	RateLimitLoginThreshold  int
	RateLimitGlobalThreshold int
	FailedLoginBlockMinutes  int
	FailedLoginMaxAttempts   int
	// Outbound identity provider throttle (requests per second)
	IdentityRPS int
	// Avatar storage (S3-compatible)
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	AvatarBucket      string
	AvatarPublicURL   string
	// Observability
	MetricsEnabled bool
}

func LoadConfig() (*Config, error) {
	// Only effective locally; production injects the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBUrl:       getEnv("DATABASE_URL", ""),
		// Trailing slash would produce .co//auth
		SupabaseUrl:       strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseKey:       getEnv("SUPABASE_KEY", getEnv("SUPABASE_ANON_KEY", "")),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", getEnv("SUPABASE_JWT_KEY", "")),
		FrontendURL:       strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", nil),

		IdentityProvider:  strings.ToLower(getEnv("IDENTITY_PROVIDER", "supabase")),
		OTPProvider:       strings.ToLower(getEnv("OTP_PROVIDER", "totp")),
		OTPPeriod:         time.Duration(getEnvInt("OTP_PERIOD_SECONDS", 300)) * time.Second,
		OTPMaxAttempts:    getEnvInt("OTP_MAX_ATTEMPTS", 5),
		OTPResendCooldown: getEnvDuration("OTP_RESEND_COOLDOWN", 30*time.Second),
		SignupFlowTTL:     getEnvDuration("SIGNUP_FLOW_TTL", 30*time.Minute),

		SessionJWTSecret:   getEnv("SESSION_JWT_SECRET", ""),
		SessionTTL:         getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionInitTimeout: getEnvDuration("SESSION_INIT_TIMEOUT", 10*time.Second),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		SMTPHost:      getEnv("SMTP_HOST", "smtp-relay.brevo.com"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", "no-reply@muhandis.sa"),

		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),

		RateLimitWindowSeconds:   getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitLoginThreshold:  getEnvInt("RATE_LIMIT_LOGIN_THRESHOLD", 10),
		RateLimitGlobalThreshold: getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 100),
		FailedLoginBlockMinutes:  getEnvInt("FAILED_LOGIN_BLOCK_MINUTES", 15),
		FailedLoginMaxAttempts:   getEnvInt("FAILED_LOGIN_MAX_ATTEMPTS", 5),
		IdentityRPS:              getEnvInt("IDENTITY_RPS", 20),

		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "me-south-1"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		AvatarBucket:      getEnv("AVATAR_BUCKET", "avatars"),
		AvatarPublicURL:   strings.TrimRight(getEnv("AVATAR_PUBLIC_URL", ""), "/"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}
	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Flow and session storage will use in-memory fallback.")
	}
	if cfg.SessionJWTSecret == "" {
		log.Println("WARNING: SESSION_JWT_SECRET not configured. Falling back to SUPABASE_JWT_SECRET for session tokens.")
		cfg.SessionJWTSecret = cfg.SupabaseJWTSecret
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in release mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || os.Getenv("GIN_MODE") == "release"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration parses Go duration syntax ("10s", "24h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
