// Package risk scores authenticated sessions. Four independent
// sub-assessments (device, geographic, behavioral, suspicious-activity
// flags) fold into one composite risk score, a trust score, and a set of
// recommended security actions.
//
// Every sub-assessment degrades on its own: a data-source failure becomes a
// conservative fallback score plus an explicit *_analysis_failed factor, so
// a storage outage raises perceived risk instead of erasing it.
package risk

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/fingerprint"
	"github.com/huddlelabs/sessionguard/internal/security/store"
	"github.com/huddlelabs/sessionguard/pkg/idx"
)

// Composite weights. They sum to 1.0 so the composite is a convex blend and
// monotone in every sub-score.
const (
	weightDevice     = 0.30
	weightGeographic = 0.25
	weightBehavioral = 0.20
	weightSuspicious = 0.25
)

// fallbackScore is the fixed sub-score used when a sub-assessment cannot
// read its data source.
const fallbackScore = 0.5

// Lookback windows.
const (
	historyLookback    = 30 * 24 * time.Hour
	behavioralLookback = 24 * time.Hour
	rapidWindow        = 60 * time.Second
	simultaneousWindow = 1 * time.Hour
	impossibleWindow   = 2 * time.Hour
)

// Risk factor identifiers surfaced in assessments.
const (
	FactorNewDevice         = "new_device"
	FactorDeviceBlocked     = "device_blocked"
	FactorLowTrustDevice    = "low_trust_device"
	FactorIPChanged         = "ip_changed"
	FactorLocationChanged   = "location_changed"
	FactorImpossibleTravel  = "impossible_travel_detected"
	FactorHighRiskCountry   = "high_risk_country"
	FactorPrivateIPRange    = "private_ip_range"
	FactorRapidAttempts     = "rapid_successive_attempts"
	FactorUnusualAccessTime = "unusual_access_time"
	FactorNewLocation       = "new_location"
	FactorNewIPRange        = "new_ip_range"
	FactorSuspiciousUA      = "suspicious_user_agent"
	FactorSimultaneousDevs  = "multiple_devices_simultaneous"
	FactorRapidLocationMove = "rapid_location_change"
	FactorHighRiskIP        = "high_risk_ip_address"
	FactorDeviceFailed      = "device_analysis_failed"
	FactorGeographicFailed  = "geographic_analysis_failed"
	FactorBehavioralFailed  = "behavioral_analysis_failed"
	FactorSuspiciousFailed  = "suspicious_activity_analysis_failed"
	FactorInternalError     = "assessment_internal_error"
)

var suspiciousUAMarkers = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python", "java", "automated", "test",
}

// Config tunes the engine from the environment.
type Config struct {
	// HighRiskCountries is a set of ISO country codes whose logins carry
	// extra geographic risk.
	HighRiskCountries []string

	// FlagPrivateIPs treats RFC1918/loopback source addresses as suspicious
	// for externally-facing traffic.
	FlagPrivateIPs bool
}

// Engine computes risk assessments against the session-history store.
type Engine struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st store.Store, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess scores one session. It never returns an error: any internal failure
// is converted into the maximum-risk fail-closed verdict, and every call is
// recorded as an audit event regardless of outcome.
func (e *Engine) Assess(ctx context.Context, sc domain.SessionContext) (out domain.RiskAssessment) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("risk assessment panicked", "user_id", sc.UserID, "panic", r)
			out = FailClosed()
		}
	}()

	if sc.Timestamp.IsZero() {
		sc.Timestamp = e.now()
	}

	fp := fingerprint.Fingerprint(deviceContextOf(sc))

	deviceScore, deviceFactors := e.deviceRisk(ctx, sc, fp)
	geoScore, geoFactors := e.geographicRisk(ctx, sc)
	behavioralScore, behavioralFactors := e.behavioralRisk(ctx, sc)
	suspiciousScore, suspiciousFactors := e.suspiciousActivity(ctx, sc, fp)

	score := combine(deviceScore, geoScore, behavioralScore, suspiciousScore)
	level := domain.RiskLevelFor(score)

	factors := dedupe(deviceFactors, geoFactors, behavioralFactors, suspiciousFactors)

	out = domain.RiskAssessment{
		RiskScore:          score,
		RiskFactors:        factors,
		TrustScore:         e.trustScore(ctx, sc, fp),
		RiskLevel:          level,
		RequiresAction:     level == domain.RiskHigh || level == domain.RiskCritical,
		RecommendedActions: recommendedActions(level, factors),
	}

	e.audit(ctx, sc, fp, out)
	return out
}

// FailClosed is the verdict for any internal failure: maximum risk, forced
// termination. The engine never treats an internal error as safe.
func FailClosed() domain.RiskAssessment {
	return domain.RiskAssessment{
		RiskScore:      0.9,
		RiskFactors:    []string{FactorInternalError},
		TrustScore:     0,
		RiskLevel:      domain.RiskCritical,
		RequiresAction: true,
		RecommendedActions: []string{
			domain.ActionTerminateSession,
			domain.ActionRequireMFA,
			domain.ActionNotifyUser,
			domain.ActionAdminReview,
		},
	}
}

// deviceRisk scores the device identity: unseen devices, low-trust devices,
// blocked devices, and context-validation warnings.
func (e *Engine) deviceRisk(ctx context.Context, sc domain.SessionContext, fp domain.DeviceFingerprint) (float64, []string) {
	var score float64
	var factors []string

	rec, err := e.store.Devices().GetDeviceByHash(ctx, fp.Hash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		score += 0.4
		factors = append(factors, FactorNewDevice)
	case err != nil:
		e.logger.Warn("device risk: store unavailable", "error", err)
		return fallbackScore, []string{FactorDeviceFailed}
	default:
		score += (1 - rec.TrustScore) * 0.5
		if rec.Blocked {
			score += 0.8
			factors = append(factors, FactorDeviceBlocked)
		}
		if rec.TrustScore < 0.3 {
			score += 0.3
			factors = append(factors, FactorLowTrustDevice)
		}
	}

	if _, warnings := fingerprint.Validate(deviceContextOf(sc), sc.IPAddress); len(warnings) > 0 {
		score += 0.1 * float64(len(warnings))
		factors = append(factors, warnings...)
	}

	return clamp(score), factors
}

// geographicRisk compares the current request against the most recent prior
// session. No history means no geographic signal at all.
func (e *Engine) geographicRisk(ctx context.Context, sc domain.SessionContext) (float64, []string) {
	logs, err := e.store.AuditLogs().ListRecentAuditLogs(ctx, sc.UserID, historyLookback)
	if err != nil {
		e.logger.Warn("geographic risk: store unavailable", "error", err)
		return fallbackScore, []string{FactorGeographicFailed}
	}
	if len(logs) == 0 {
		// First-ever session: nothing to compare against.
		return 0, nil
	}

	var score float64
	var factors []string
	prev := logs[0]

	if prev.IPAddress != "" && sc.IPAddress != "" && prev.IPAddress != sc.IPAddress {
		score += 0.1
		factors = append(factors, FactorIPChanged)
	}

	if prev.Location != "" && sc.Location != "" && prev.Location != sc.Location {
		score += 0.2
		factors = append(factors, FactorLocationChanged)

		elapsed := sc.Timestamp.Sub(prev.CreatedAt)
		if elapsed < impossibleWindow && impossibleTravel(prev.Location, sc.Location) {
			score += 0.4
			factors = append(factors, FactorImpossibleTravel)
		}
	}

	if countryCodeIn(sc.Location, e.cfg.HighRiskCountries) {
		score += 0.3
		factors = append(factors, FactorHighRiskCountry)
	}
	if e.cfg.FlagPrivateIPs && isPrivateAddress(sc.IPAddress) {
		score += 0.2
		factors = append(factors, FactorPrivateIPRange)
	}

	return clamp(score), factors
}

// behavioralRisk looks for burst authentication and off-hours access with no
// comparable precedent in the last day.
func (e *Engine) behavioralRisk(ctx context.Context, sc domain.SessionContext) (float64, []string) {
	logs, err := e.store.AuditLogs().ListRecentAuditLogs(ctx, sc.UserID, behavioralLookback)
	if err != nil {
		e.logger.Warn("behavioral risk: store unavailable", "error", err)
		return fallbackScore, []string{FactorBehavioralFailed}
	}

	var score float64
	var factors []string

	recent := 0
	for _, l := range logs {
		if sc.Timestamp.Sub(l.CreatedAt) <= rapidWindow {
			recent++
		}
	}
	if recent > 3 {
		score += 0.3
		factors = append(factors, FactorRapidAttempts)
	}

	hour := sc.Timestamp.Hour()
	if hour < 6 || hour >= 23 {
		precedent := false
		for _, l := range logs {
			if hourDistance(l.CreatedAt.Hour(), hour) <= 2 {
				precedent = true
				break
			}
		}
		if !precedent {
			score += 0.1
			factors = append(factors, FactorUnusualAccessTime)
		}
	}

	return clamp(score), factors
}

// suspiciousActivity evaluates a set of boolean flags, each with a fixed
// weight, and sums the active ones.
func (e *Engine) suspiciousActivity(ctx context.Context, sc domain.SessionContext, fp domain.DeviceFingerprint) (float64, []string) {
	logs, err := e.store.AuditLogs().ListRecentAuditLogs(ctx, sc.UserID, historyLookback)
	if err != nil {
		e.logger.Warn("suspicious activity: store unavailable", "error", err)
		return fallbackScore, []string{FactorSuspiciousFailed}
	}

	var score float64
	var factors []string
	flag := func(weight float64, factor string) {
		score += weight
		factors = append(factors, factor)
	}

	switch _, err := e.store.Devices().GetDeviceByHash(ctx, fp.Hash); {
	case errors.Is(err, store.ErrNotFound):
		flag(0.3, FactorNewDevice)
	case err != nil:
		// Unknown device state degrades this sub-assessment like any other
		// data-source failure.
		e.logger.Warn("suspicious activity: device lookup failed", "error", err)
		flag(fallbackScore, FactorSuspiciousFailed)
	}

	if sc.Location != "" && !seenLocation(logs, sc.Location) {
		flag(0.2, FactorNewLocation)
	}

	if sc.IPAddress != "" && !seenIPRange(logs, sc.IPAddress) {
		flag(0.1, FactorNewIPRange)
	}

	if suspiciousUserAgent(userAgentOf(sc)) {
		flag(0.4, FactorSuspiciousUA)
	}

	if simultaneousDevices(logs, sc, fp.Hash) > 2 {
		flag(0.3, FactorSimultaneousDevs)
	}

	if rapidLocationChange(logs, sc) {
		flag(0.5, FactorRapidLocationMove)
	}

	if isPrivateAddress(sc.IPAddress) {
		flag(0.6, FactorHighRiskIP)
	}

	return clamp(score), factors
}

// trustScore is the inverse confidence signal: device age and stored trust,
// account age, MFA, and a clean recent failure record all raise it.
func (e *Engine) trustScore(ctx context.Context, sc domain.SessionContext, fp domain.DeviceFingerprint) float64 {
	now := sc.Timestamp
	trust := 0.5

	rec, err := e.store.Devices().GetDeviceByHash(ctx, fp.Hash)
	if err == nil {
		trust = rec.TrustScore
		switch age := now.Sub(rec.FirstSeenAt); {
		case age > 90*24*time.Hour:
			trust += 0.1
		case age > 30*24*time.Hour:
			trust += 0.05
		}
		if rec.Blocked && trust > 0.2 {
			trust = 0.2
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("trust score: device lookup failed", "error", err)
	}

	user, err := e.store.Users().GetUserByID(ctx, sc.UserID)
	if err == nil {
		if now.Sub(user.CreatedAt) > 90*24*time.Hour {
			trust += 0.1
		}
		if user.MFAEnabled {
			trust += 0.2
		}
	} else {
		e.logger.Warn("trust score: user lookup failed", "error", err)
	}

	failures, err := e.store.AuditLogs().CountRecentFailures(ctx, sc.UserID, behavioralLookback)
	if err == nil && failures < 3 {
		trust += 0.1
	}

	return clamp(trust)
}

func (e *Engine) audit(ctx context.Context, sc domain.SessionContext, fp domain.DeviceFingerprint, a domain.RiskAssessment) {
	entry := domain.AuthAuditLog{
		ID:                idx.New().String(),
		UserID:            sc.UserID,
		EventType:         domain.EventRiskAssessment,
		Success:           true,
		IPAddress:         sc.IPAddress,
		Location:          sc.Location,
		DeviceFingerprint: fp.Hash,
		UserAgent:         userAgentOf(sc),
		RiskScore:         a.RiskScore,
		Detail:            strings.Join(a.RiskFactors, ","),
		CreatedAt:         sc.Timestamp,
	}
	if err := e.store.AuditLogs().CreateAuditLog(ctx, entry); err != nil {
		e.logger.Warn("failed to record risk assessment audit entry", "error", err, "user_id", sc.UserID)
	}
}

// combine blends the four sub-scores with the fixed weights. Exposed to
// tests for the monotonicity property.
func combine(device, geographic, behavioral, suspicious float64) float64 {
	return clamp(weightDevice*device +
		weightGeographic*geographic +
		weightBehavioral*behavioral +
		weightSuspicious*suspicious)
}

// recommendedActions maps a level plus individual factors to the ordered
// action set the orchestrator executes.
func recommendedActions(level string, factors []string) []string {
	var actions []string
	switch level {
	case domain.RiskCritical:
		actions = []string{
			domain.ActionTerminateSession,
			domain.ActionRequireMFA,
			domain.ActionNotifyUser,
			domain.ActionAdminReview,
		}
	case domain.RiskHigh:
		actions = []string{
			domain.ActionRequireMFA,
			domain.ActionLimitSessionDuration,
			domain.ActionNotifyUser,
		}
	case domain.RiskMedium:
		actions = []string{
			domain.ActionRequireMFA,
			domain.ActionLogSecurityEvent,
		}
	default:
		actions = []string{domain.ActionLogSecurityEvent}
	}

	has := func(factor string) bool {
		for _, f := range factors {
			if f == factor {
				return true
			}
		}
		return false
	}
	if has(FactorNewDevice) {
		actions = append(actions, domain.ActionDeviceVerification)
	}
	if has(FactorNewLocation) {
		actions = append(actions, domain.ActionLocationVerification)
	}
	if has(FactorImpossibleTravel) || has(FactorRapidLocationMove) {
		actions = append(actions, domain.ActionImpossibleTravel)
	}
	if has(FactorSimultaneousDevs) {
		actions = append(actions, domain.ActionConcurrentSessions)
	}
	return actions
}

func deviceContextOf(sc domain.SessionContext) domain.DeviceContext {
	if sc.Device != nil {
		return *sc.Device
	}
	return domain.DeviceContext{UserAgent: sc.UserAgent}
}

func userAgentOf(sc domain.SessionContext) string {
	if sc.Device != nil && sc.Device.UserAgent != "" {
		return sc.Device.UserAgent
	}
	return sc.UserAgent
}

func suspiciousUserAgent(ua string) bool {
	lower := strings.ToLower(ua)
	for _, marker := range suspiciousUAMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func seenLocation(logs []domain.AuthAuditLog, location string) bool {
	for _, l := range logs {
		if l.Location == location {
			return true
		}
	}
	return false
}

func seenIPRange(logs []domain.AuthAuditLog, ip string) bool {
	prefix := ipRange(ip)
	for _, l := range logs {
		if l.IPAddress != "" && ipRange(l.IPAddress) == prefix {
			return true
		}
	}
	return false
}

// simultaneousDevices counts distinct fingerprints active in the trailing
// hour, including the current one.
func simultaneousDevices(logs []domain.AuthAuditLog, sc domain.SessionContext, currentHash string) int {
	seen := map[string]struct{}{}
	if currentHash != "" {
		seen[currentHash] = struct{}{}
	}
	for _, l := range logs {
		if l.DeviceFingerprint == "" {
			continue
		}
		if sc.Timestamp.Sub(l.CreatedAt) <= simultaneousWindow {
			seen[l.DeviceFingerprint] = struct{}{}
		}
	}
	return len(seen)
}

// rapidLocationChange reports two differing locations inside the trailing
// hour, counting the current request as one endpoint.
func rapidLocationChange(logs []domain.AuthAuditLog, sc domain.SessionContext) bool {
	locations := map[string]struct{}{}
	if sc.Location != "" {
		locations[sc.Location] = struct{}{}
	}
	for _, l := range logs {
		if l.Location == "" {
			continue
		}
		if sc.Timestamp.Sub(l.CreatedAt) <= simultaneousWindow {
			locations[l.Location] = struct{}{}
		}
	}
	return len(locations) >= 2
}

func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupe(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
