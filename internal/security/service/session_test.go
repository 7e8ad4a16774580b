package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/store"
)

// memStore records every write so tests can assert on executed actions.
type memStore struct {
	mu            sync.Mutex
	auditLogs     []domain.AuthAuditLog
	notifications []domain.Notification
}

func (m *memStore) Users() store.Users                 { return nil }
func (m *memStore) Devices() store.Devices             { return nil }
func (m *memStore) AuditLogs() store.AuditLogs         { return (*memAuditLogs)(m) }
func (m *memStore) Notifications() store.Notifications { return (*memNotifications)(m) }
func (m *memStore) Revocations() store.Revocations     { return nil }
func (m *memStore) ApplyMigrations() error             { return nil }
func (m *memStore) Close() error                       { return nil }
func (m *memStore) Ping(context.Context) error         { return nil }

type memAuditLogs memStore

func (m *memAuditLogs) CreateAuditLog(_ context.Context, e domain.AuthAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLogs = append(m.auditLogs, e)
	return nil
}

func (m *memAuditLogs) ListRecentAuditLogs(context.Context, string, time.Duration) ([]domain.AuthAuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuthAuditLog, len(m.auditLogs))
	copy(out, m.auditLogs)
	return out, nil
}

func (m *memAuditLogs) CountRecentFailures(context.Context, string, time.Duration) (int, error) {
	return 0, nil
}

type memNotifications memStore

func (m *memNotifications) CreateNotification(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *memStore) events(eventType string) []domain.AuthAuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuthAuditLog
	for _, e := range m.auditLogs {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// stubAssessor returns a fixed assessment, or panics when told to.
type stubAssessor struct {
	assessment domain.RiskAssessment
	panics     bool
}

func (s *stubAssessor) Assess(context.Context, domain.SessionContext) domain.RiskAssessment {
	if s.panics {
		panic("assessor exploded")
	}
	return s.assessment
}

func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36")
	h.Set("Accept-Language", "en-AU,en;q=0.9")
	return h
}

func TestValidateSession(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("low risk session stays valid with no executed actions", func(t *testing.T) {
		st := &memStore{}
		assessor := &stubAssessor{assessment: domain.RiskAssessment{
			RiskScore:  0.1,
			TrustScore: 0.8,
			RiskLevel:  domain.RiskLow,
		}}
		svc := NewSessionSecurityService(assessor, st, logger)

		v := svc.ValidateSession(ctx, "user-1", "sess-1", RequestContext{
			IPAddress: "203.0.113.9",
			Headers:   browserHeaders(),
		})

		require.True(t, v.IsValid)
		require.Equal(t, domain.RiskLow, v.Assessment.RiskLevel)
		require.Empty(t, v.ActionsExecuted)
	})

	t.Run("critical risk terminates the session", func(t *testing.T) {
		st := &memStore{}
		assessor := &stubAssessor{assessment: domain.RiskAssessment{
			RiskScore:      0.85,
			RiskLevel:      domain.RiskCritical,
			RequiresAction: true,
			RecommendedActions: []string{
				domain.ActionTerminateSession,
				domain.ActionRequireMFA,
				domain.ActionNotifyUser,
			},
		}}
		svc := NewSessionSecurityService(assessor, st, logger)

		v := svc.ValidateSession(ctx, "user-1", "sess-1", RequestContext{
			IPAddress: "203.0.113.9",
			Headers:   browserHeaders(),
		})

		require.False(t, v.IsValid)
		require.Contains(t, v.ActionsExecuted, domain.ActionTerminateSession)
		require.Contains(t, v.ActionsExecuted, domain.ActionNotifyUser)

		require.Len(t, st.events(domain.EventSessionTerminated), 1)
		require.Len(t, st.notifications, 1)
		require.Equal(t, domain.NotificationKindSecurityAlert, st.notifications[0].Kind)
	})

	t.Run("high score always recommends mfa", func(t *testing.T) {
		st := &memStore{}
		assessor := &stubAssessor{assessment: domain.RiskAssessment{
			RiskScore:          0.65,
			RiskLevel:          domain.RiskHigh,
			RequiresAction:     true,
			RecommendedActions: []string{domain.ActionLimitSessionDuration},
		}}
		svc := NewSessionSecurityService(assessor, st, logger)

		v := svc.ValidateSession(ctx, "user-1", "sess-1", RequestContext{
			IPAddress: "203.0.113.9",
			Headers:   browserHeaders(),
		})

		require.True(t, v.IsValid)
		require.Contains(t, v.Assessment.RecommendedActions, domain.ActionRequireMFA)
	})

	t.Run("configured mfa threshold overrides the default", func(t *testing.T) {
		st := &memStore{}
		assessor := &stubAssessor{assessment: domain.RiskAssessment{
			RiskScore: 0.5,
			RiskLevel: domain.RiskMedium,
		}}
		svc := NewSessionSecurityService(assessor, st, logger, WithMFAThreshold(0.4))

		v := svc.ValidateSession(ctx, "user-1", "sess-1", RequestContext{
			IPAddress: "203.0.113.9",
			Headers:   browserHeaders(),
		})

		// 0.5 sits below the 0.6 default but above the configured 0.4.
		require.Contains(t, v.Assessment.RecommendedActions, domain.ActionRequireMFA)
	})

	t.Run("assessor panic fails closed", func(t *testing.T) {
		st := &memStore{}
		svc := NewSessionSecurityService(&stubAssessor{panics: true}, st, logger)

		v := svc.ValidateSession(ctx, "user-1", "sess-1", RequestContext{
			IPAddress: "203.0.113.9",
			Headers:   browserHeaders(),
		})

		require.False(t, v.IsValid)
		require.Equal(t, domain.RiskCritical, v.Assessment.RiskLevel)
		require.InDelta(t, 0.9, v.Assessment.RiskScore, 1e-9)
	})

	t.Run("notifications are rate limited per user", func(t *testing.T) {
		st := &memStore{}
		assessor := &stubAssessor{assessment: domain.RiskAssessment{
			RiskScore:          0.85,
			RiskLevel:          domain.RiskCritical,
			RequiresAction:     true,
			RecommendedActions: []string{domain.ActionNotifyUser},
		}}
		svc := NewSessionSecurityService(assessor, st, logger, WithNotifyRate(time.Hour, 1))

		req := RequestContext{IPAddress: "203.0.113.9", Headers: browserHeaders()}

		first := svc.ValidateSession(ctx, "user-1", "sess-1", req)
		second := svc.ValidateSession(ctx, "user-1", "sess-2", req)
		other := svc.ValidateSession(ctx, "user-2", "sess-3", req)

		require.Contains(t, first.ActionsExecuted, domain.ActionNotifyUser)
		require.NotContains(t, second.ActionsExecuted, domain.ActionNotifyUser)
		require.Contains(t, other.ActionsExecuted, domain.ActionNotifyUser)
		require.Len(t, st.notifications, 2)
	})
}

func TestRedactIP(t *testing.T) {
	require.Equal(t, "203.0.x.x", redactIP("203.0.113.9"))
	require.Equal(t, "2001:***", redactIP("2001:db8::1"))
	require.Equal(t, "an unknown address", redactIP(""))
}
