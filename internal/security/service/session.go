package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/fingerprint"
	"github.com/huddlelabs/sessionguard/internal/security/risk"
	"github.com/huddlelabs/sessionguard/internal/security/store"
	"github.com/huddlelabs/sessionguard/pkg/idx"
	"github.com/huddlelabs/sessionguard/pkg/slogx"
)

// Assessor scores one session. Satisfied by *risk.Engine.
type Assessor interface {
	Assess(ctx context.Context, sc domain.SessionContext) domain.RiskAssessment
}

// Notification rate limiting defaults: per user, at most notifyBurst alerts
// back to back, then one per notifyInterval.
const (
	defaultNotifyInterval = 15 * time.Minute
	defaultNotifyBurst    = 2
)

// MFARequiredThreshold is the default composite score at or above which an
// MFA challenge is always among the recommended actions, whatever else the
// assessment suggested.
const MFARequiredThreshold = 0.6

// RequestContext is the per-request input to session validation.
type RequestContext struct {
	IPAddress string
	Headers   http.Header
	Location  string
	Timestamp time.Time
}

// Verdict is the outcome of one session validation.
type Verdict struct {
	// IsValid is false only for critical-risk sessions; everything below
	// critical stays valid, possibly with restrictions attached.
	IsValid bool

	Assessment domain.RiskAssessment

	// ActionsExecuted lists the recommended actions this service actually
	// carried out (audit writes, notifications, restrictions).
	ActionsExecuted []string
}

// SessionSecurityService runs the full per-request pipeline: fingerprint
// extraction, risk assessment, verdict, and execution of the recommended
// actions. It fails closed: any internal failure terminates the session
// rather than letting it through unscored.
type SessionSecurityService struct {
	engine Assessor
	store  store.Store
	logger *slog.Logger
	now    func() time.Time

	notifyInterval time.Duration
	notifyBurst    int
	mfaThreshold   float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// SessionOption customises a SessionSecurityService.
type SessionOption func(*SessionSecurityService)

// WithNotifyRate overrides the per-user notification rate limit.
func WithNotifyRate(interval time.Duration, burst int) SessionOption {
	return func(s *SessionSecurityService) {
		s.notifyInterval = interval
		s.notifyBurst = burst
	}
}

// WithMFAThreshold overrides the composite score at or above which an MFA
// challenge is forced into the recommended actions.
func WithMFAThreshold(threshold float64) SessionOption {
	return func(s *SessionSecurityService) { s.mfaThreshold = threshold }
}

// WithSessionClock overrides the time source for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionSecurityService) { s.now = now }
}

func NewSessionSecurityService(engine Assessor, st store.Store, logger *slog.Logger, opts ...SessionOption) *SessionSecurityService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionSecurityService{
		engine:         engine,
		store:          st,
		logger:         logger,
		now:            time.Now,
		notifyInterval: defaultNotifyInterval,
		notifyBurst:    defaultNotifyBurst,
		mfaThreshold:   MFARequiredThreshold,
		limiters:       make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSession assesses one authenticated request and executes the
// resulting security actions. It never returns an error and never panics
// outward: an internal failure produces the fail-closed verdict.
func (s *SessionSecurityService) ValidateSession(ctx context.Context, userID, sessionID string, req RequestContext) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "session validation panicked",
				"user_id", userID,
				"session_id", sessionID,
				"panic", r,
			)
			v = Verdict{IsValid: false, Assessment: risk.FailClosed()}
		}
	}()

	ctx = slogx.WithContext(ctx, s.logger.With("user_id", userID, "session_id", sessionID))

	dc := fingerprint.Extract(req.Headers)
	fp := fingerprint.Fingerprint(dc)

	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	sc := domain.SessionContext{
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: req.IPAddress,
		UserAgent: dc.UserAgent,
		Device:    &dc,
		Location:  req.Location,
		Timestamp: ts,
	}

	assessment := s.engine.Assess(ctx, sc)

	if assessment.RiskScore >= s.mfaThreshold && !contains(assessment.RecommendedActions, domain.ActionRequireMFA) {
		assessment.RecommendedActions = append(assessment.RecommendedActions, domain.ActionRequireMFA)
	}

	executed := s.executeActions(ctx, sc, fp, assessment)

	return Verdict{
		IsValid:         assessment.RiskLevel != domain.RiskCritical,
		Assessment:      assessment,
		ActionsExecuted: executed,
	}
}

// executeActions carries out the recommended actions this service owns.
// Actions it only relays (require_mfa, admin_review and the review queues)
// count as executed once logged; every store failure is logged and skipped,
// never fatal.
func (s *SessionSecurityService) executeActions(ctx context.Context, sc domain.SessionContext, fp domain.DeviceFingerprint, a domain.RiskAssessment) []string {
	log := slogx.FromContext(ctx)
	executed := make([]string, 0, len(a.RecommendedActions))

	for _, action := range a.RecommendedActions {
		var err error
		switch action {
		case domain.ActionTerminateSession:
			err = s.auditEvent(ctx, sc, fp, a, domain.EventSessionTerminated, "session terminated on critical risk")
		case domain.ActionLimitSessionDuration:
			err = s.auditEvent(ctx, sc, fp, a, domain.EventSecurityRestriction, "session duration restricted on elevated risk")
		case domain.ActionDeviceVerification:
			err = s.auditEvent(ctx, sc, fp, a, domain.EventDeviceVerification, "device verification requested")
		case domain.ActionLocationVerification:
			err = s.auditEvent(ctx, sc, fp, a, domain.EventLocationVerify, "location verification requested")
		case domain.ActionNotifyUser:
			err = s.notifyUser(ctx, sc, fp, a)
		case domain.ActionLogSecurityEvent:
			log.InfoContext(ctx, "security event",
				"risk_level", a.RiskLevel,
				"risk_factors", a.RiskFactors,
			)
		default:
			// Relayed to the caller through the verdict; nothing to run here.
			log.DebugContext(ctx, "security action relayed", "action", action)
		}

		if err != nil {
			log.WarnContext(ctx, "security action failed", "action", action, "error", err)
			continue
		}
		executed = append(executed, action)
	}

	return executed
}

func (s *SessionSecurityService) auditEvent(ctx context.Context, sc domain.SessionContext, fp domain.DeviceFingerprint, a domain.RiskAssessment, eventType, detail string) error {
	return s.store.AuditLogs().CreateAuditLog(ctx, domain.AuthAuditLog{
		ID:                idx.New().String(),
		UserID:            sc.UserID,
		EventType:         eventType,
		Success:           true,
		IPAddress:         sc.IPAddress,
		Location:          sc.Location,
		DeviceFingerprint: fp.Hash,
		UserAgent:         sc.UserAgent,
		RiskScore:         a.RiskScore,
		Detail:            detail,
		CreatedAt:         sc.Timestamp,
	})
}

// notifyUser sends a security alert, rate limited per user so a burst of
// risky requests does not flood the inbox. A suppressed notification is not
// an error; it simply does not count as executed.
func (s *SessionSecurityService) notifyUser(ctx context.Context, sc domain.SessionContext, fp domain.DeviceFingerprint, a domain.RiskAssessment) error {
	if !s.limiterFor(sc.UserID).Allow() {
		return fmt.Errorf("notification suppressed by rate limit")
	}

	body := fmt.Sprintf(
		"We noticed unusual activity on your account from %s (device: %s). If this was not you, secure your account now.",
		redactIP(sc.IPAddress), fp.DeviceName,
	)

	return s.store.Notifications().CreateNotification(ctx, domain.Notification{
		ID:        idx.New().String(),
		UserID:    sc.UserID,
		Kind:      domain.NotificationKindSecurityAlert,
		Title:     "Unusual activity on your account",
		Body:      body,
		CreatedAt: sc.Timestamp,
	})
}

func (s *SessionSecurityService) limiterFor(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.notifyInterval), s.notifyBurst)
		s.limiters[userID] = l
	}
	return l
}

// redactIP keeps enough of the address for the user to recognise their own
// network without exposing it in full.
func redactIP(ip string) string {
	if ip == "" {
		return "an unknown address"
	}
	if parts := strings.Split(ip, "."); len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".x.x"
	}
	if i := strings.Index(ip, ":"); i > 0 {
		return ip[:i] + ":***"
	}
	return ip
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
