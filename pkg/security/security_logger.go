package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of security event
type EventType string

const (
	EventLoginFailed        EventType = "login_failed"
	EventLoginBlocked       EventType = "login_blocked"
	EventLoginSuccess       EventType = "login_success"
	EventLogout             EventType = "logout"
	EventOTPFailed          EventType = "otp_failed"
	EventOTPExhausted       EventType = "otp_exhausted"
	EventRateLimitTriggered EventType = "rate_limit_triggered"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventRouteDenied        EventType = "route_denied"
	EventBlockCreated       EventType = "block_created"
	EventValidationFailed   EventType = "validation_failed"
	EventRoleModified       EventType = "role_modified"
	EventUserDisabled       EventType = "user_disabled"
	EventPlaceholderOTP     EventType = "placeholder_otp_enabled"
)

// SecurityEvent represents a security-related event to be logged
type SecurityEvent struct {
	Timestamp    time.Time              `json:"timestamp"`
	Service      string                 `json:"service"`
	Environment  string                 `json:"env"`
	Level        string                 `json:"level"`
	Event        EventType              `json:"event"`
	SubjectType  string                 `json:"subject_type,omitempty"`  // "email", "ip", "user_id", "flow"
	SubjectValue string                 `json:"subject_value,omitempty"` // Masked or hashed for PII
	IP           string                 `json:"ip,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// SecurityLogger provides structured logging for security events
type SecurityLogger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
	persist     PersistFunc
}

// PersistFunc stores an event outside the log stream.
type PersistFunc func(ctx context.Context, event SecurityEvent) error

// SetPersistFunc attaches a durable sink. Only HIGH and CRITICAL events are
// handed to it, off the request path.
func (sl *SecurityLogger) SetPersistFunc(fn PersistFunc) {
	sl.persist = fn
}

var defaultLogger *SecurityLogger

// InitSecurityLogger initializes the security logger with Zap
func InitSecurityLogger(serviceName, environment string) *SecurityLogger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	sl := &SecurityLogger{
		zapLogger:   logger,
		serviceName: serviceName,
		environment: environment,
	}
	defaultLogger = sl
	return sl
}

// NewNopSecurityLogger discards every event. Used in tests.
func NewNopSecurityLogger() *SecurityLogger {
	return &SecurityLogger{zapLogger: zap.NewNop(), serviceName: "test", environment: "test"}
}

// DefaultLogger returns the default security logger instance
func DefaultLogger() *SecurityLogger {
	if defaultLogger == nil {
		return InitSecurityLogger("marketplace-auth", getEnvironment())
	}
	return defaultLogger
}

// Log logs a security event
func (sl *SecurityLogger) Log(ctx context.Context, event SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Service = sl.serviceName
	event.Environment = sl.environment

	level := levelFor(event.Event)
	event.Level = level.String()

	fields := []zap.Field{
		zap.String("service", event.Service),
		zap.String("env", event.Environment),
		zap.String("event", string(event.Event)),
		zap.String("severity", string(GetSeverity(event.Event))),
	}
	if event.SubjectType != "" {
		fields = append(fields, zap.String("subject_type", event.SubjectType))
	}
	if event.SubjectValue != "" {
		fields = append(fields, zap.String("subject_value", event.SubjectValue))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}

	sl.zapLogger.Log(level, string(event.Event), fields...)

	if sl.persist != nil && IsHighOrAbove(event.Event) {
		go func(ev SecurityEvent) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := sl.persist(ctx, ev); err != nil {
				sl.zapLogger.Warn("security event not persisted", zap.String("event", string(ev.Event)), zap.Error(err))
			}
		}(event)
	}
}

func levelFor(event EventType) zapcore.Level {
	switch GetSeverity(event) {
	case SeverityINFO:
		return zapcore.InfoLevel
	case SeverityHIGH, SeverityCRITICAL:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// LogLoginFailed logs a failed login attempt
func (sl *SecurityLogger) LogLoginFailed(ctx context.Context, email, ip, userAgent, requestID, reason string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventLoginFailed,
		SubjectType:  "email",
		SubjectValue: MaskEmail(email),
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
		Details:      map[string]interface{}{"reason": reason},
	})
}

// LogLoginBlocked logs when a login is blocked due to too many attempts
func (sl *SecurityLogger) LogLoginBlocked(ctx context.Context, email, ip, userAgent, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventLoginBlocked,
		SubjectType:  "email",
		SubjectValue: MaskEmail(email),
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
		Details:      map[string]interface{}{"reason": "too_many_failed_attempts"},
	})
}

func (sl *SecurityLogger) LogLoginSuccess(ctx context.Context, userID, ip, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventLoginSuccess,
		SubjectType:  "user_id",
		SubjectValue: HashValue(userID),
		IP:           ip,
		RequestID:    requestID,
	})
}

func (sl *SecurityLogger) LogLogout(ctx context.Context, userID, sessionID, ip, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventLogout,
		SubjectType:  "user_id",
		SubjectValue: HashValue(userID),
		IP:           ip,
		RequestID:    requestID,
		Details:      map[string]interface{}{"session_id": sessionID},
	})
}

// LogOTPFailed logs a rejected verification code for a signup flow.
func (sl *SecurityLogger) LogOTPFailed(ctx context.Context, flowID, email string, attemptsRemaining int) {
	event := EventOTPFailed
	if attemptsRemaining <= 0 {
		event = EventOTPExhausted
	}
	sl.Log(ctx, SecurityEvent{
		Event:        event,
		SubjectType:  "email",
		SubjectValue: MaskEmail(email),
		Details: map[string]interface{}{
			"flow_id":            flowID,
			"attempts_remaining": attemptsRemaining,
		},
	})
}

// LogRateLimitTriggered logs when rate limiting is triggered
func (sl *SecurityLogger) LogRateLimitTriggered(ctx context.Context, ip, userAgent, requestID, endpoint string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventRateLimitTriggered,
		SubjectType:  "ip",
		SubjectValue: ip,
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
		Details:      map[string]interface{}{"endpoint": endpoint},
	})
}

// LogRouteDenied logs a role guard redirect on a protected API group.
func (sl *SecurityLogger) LogRouteDenied(ctx context.Context, userID, role, path, redirect, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventRouteDenied,
		SubjectType:  "user_id",
		SubjectValue: HashValue(userID),
		RequestID:    requestID,
		Details: map[string]interface{}{
			"role":     role,
			"path":     path,
			"redirect": redirect,
		},
	})
}

// LogBlockCreated logs when a block is created
func (sl *SecurityLogger) LogBlockCreated(ctx context.Context, subjectType, subjectValue, ip, requestID string, durationMinutes int) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventBlockCreated,
		SubjectType:  subjectType,
		SubjectValue: maskValue(subjectType, subjectValue),
		IP:           ip,
		RequestID:    requestID,
		Details:      map[string]interface{}{"duration_minutes": durationMinutes},
	})
}

// LogAdminAction logs role changes and account disables performed by an admin.
func (sl *SecurityLogger) LogAdminAction(ctx context.Context, event EventType, adminID, targetID string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["admin"] = HashValue(adminID)
	sl.Log(ctx, SecurityEvent{
		Event:        event,
		SubjectType:  "user_id",
		SubjectValue: HashValue(targetID),
		Details:      details,
	})
}

// Sync flushes any buffered log entries
func (sl *SecurityLogger) Sync() error {
	return sl.zapLogger.Sync()
}

// MaskEmail masks an email for logging (e.g., "j***@example.com")
func MaskEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	atIndex := strings.IndexByte(email, '@')
	if atIndex <= 1 {
		return "***" + email[1:]
	}
	return string(email[0]) + "***" + email[atIndex:]
}

// HashValue creates a SHA256 hash of a value (for logging without PII)
func HashValue(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8])
}

func maskValue(subjectType, value string) string {
	switch subjectType {
	case "email":
		return MaskEmail(value)
	case "ip":
		return value
	default:
		return HashValue(value)
	}
}

func getEnvironment() string {
	if os.Getenv("GIN_MODE") == "release" {
		return "production"
	}
	return "development"
}
