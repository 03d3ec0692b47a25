package security

// Severity represents the severity level of a security event
// This is derived from EventType, NOT user-provided
type Severity string

const (
	SeverityINFO     Severity = "INFO"
	SeverityMEDIUM   Severity = "MEDIUM"
	SeverityWARN     Severity = "WARN"
	SeverityHIGH     Severity = "HIGH"
	SeverityCRITICAL Severity = "CRITICAL"
)

// EventSeverityMap defines the hard-coded severity for each event type
var EventSeverityMap = map[EventType]Severity{
	EventLoginSuccess: SeverityINFO,
	EventLogout:       SeverityINFO,

	EventRouteDenied: SeverityMEDIUM,

	EventLoginFailed:        SeverityWARN,
	EventOTPFailed:          SeverityWARN,
	EventRateLimitTriggered: SeverityWARN,
	EventValidationFailed:   SeverityWARN,

	EventLoginBlocked:       SeverityHIGH,
	EventOTPExhausted:       SeverityHIGH,
	EventBlockCreated:       SeverityHIGH,
	EventUnauthorizedAccess: SeverityHIGH,
	EventRoleModified:       SeverityHIGH,
	EventUserDisabled:       SeverityHIGH,

	// A fixed-code verifier outside development is an incident.
	EventPlaceholderOTP: SeverityCRITICAL,
}

// GetSeverity returns the severity for an event type
// If the event type is not mapped, defaults to MEDIUM
func GetSeverity(eventType EventType) Severity {
	if severity, ok := EventSeverityMap[eventType]; ok {
		return severity
	}
	return SeverityMEDIUM
}

// IsHighOrAbove returns true if the event is HIGH or CRITICAL severity
func IsHighOrAbove(eventType EventType) bool {
	severity := GetSeverity(eventType)
	return severity == SeverityHIGH || severity == SeverityCRITICAL
}
