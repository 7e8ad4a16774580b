package domain

// Risk levels classifying a composite risk score.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Risk level thresholds on the composite score.
const (
	RiskThresholdMedium   = 0.3
	RiskThresholdHigh     = 0.6
	RiskThresholdCritical = 0.8
)

// Recommended security actions, ordered most severe first where it matters.
const (
	ActionTerminateSession     = "terminate_session"
	ActionRequireMFA           = "require_mfa"
	ActionNotifyUser           = "notify_user"
	ActionAdminReview          = "admin_review"
	ActionLimitSessionDuration = "limit_session_duration"
	ActionLogSecurityEvent     = "log_security_event"
	ActionDeviceVerification   = "device_verification"
	ActionLocationVerification = "location_verification"
	ActionImpossibleTravel     = "impossible_travel_review"
	ActionConcurrentSessions   = "concurrent_session_review"
)

// RiskAssessment is the composite verdict for one session. Produced fresh on
// every call and recorded as an audit event, never persisted as mutable
// state.
type RiskAssessment struct {
	RiskScore          float64
	RiskFactors        []string
	TrustScore         float64
	RiskLevel          string
	RequiresAction     bool
	RecommendedActions []string
}

// RiskLevelFor maps a composite score onto a level. Boundaries are
// inclusive: 0.8 is already critical, 0.3 is already medium.
func RiskLevelFor(score float64) string {
	switch {
	case score >= RiskThresholdCritical:
		return RiskCritical
	case score >= RiskThresholdHigh:
		return RiskHigh
	case score >= RiskThresholdMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}
