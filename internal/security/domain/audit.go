package domain

import "time"

// Audit event types recorded by the engine.
const (
	EventLogin               = "login"
	EventRiskAssessment      = "risk_assessment"
	EventSessionTerminated   = "session_terminated"
	EventDeviceVerification  = "device_verification_requested"
	EventLocationVerify      = "location_verification_requested"
	EventTokenRevoked        = "token_revoked"
	EventSecurityRestriction = "session_duration_limited"
)

// AuthAuditLog is one security-relevant event in a user's history. The risk
// engine reads recent entries back as its behavioral/geographic signal.
type AuthAuditLog struct {
	ID                string
	UserID            string
	EventType         string
	Success           bool
	IPAddress         string
	Location          string
	DeviceFingerprint string
	UserAgent         string
	RiskScore         float64
	Detail            string
	CreatedAt         time.Time
}

// Notification is a user-facing security alert handed to the notification
// collaborator.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Title     string
	Body      string
	CreatedAt time.Time
}

// NotificationKindSecurityAlert marks notifications produced by this engine.
const NotificationKindSecurityAlert = "security_alert"

// RevocationEntry marks a token id as revoked. Never updated after creation;
// the durable store purges entries past TTLExpiry.
type RevocationEntry struct {
	JTI       string
	UserID    string
	TokenType string
	Reason    string
	RevokedAt time.Time
	TTLExpiry time.Time
}
