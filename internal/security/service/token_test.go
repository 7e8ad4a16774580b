package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/revocation"
	"github.com/huddlelabs/sessionguard/internal/security/store/drivers/sqlite"
	"github.com/huddlelabs/sessionguard/pkg/tokenx"
)

func newTestTokenService(t *testing.T) (*TokenService, *sqlite.Store) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	keys, err := tokenx.NewKeyRing([]tokenx.SigningKey{{
		Kid:       "test-key",
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		Algorithm: tokenx.AlgHS256,
		Active:    true,
		CreatedAt: time.Now(),
	}})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := revocation.NewRegistry(st.Revocations(), logger)

	codec, err := tokenx.NewCodec(keys, tokenx.CodecOptions{
		Issuer:      "sessionguard-test",
		Audience:    "sessionguard-clients",
		Revocations: registry,
	})
	require.NoError(t, err)

	return NewTokenService(codec, registry, st.AuditLogs(), logger), st
}

func testDevice() *domain.DeviceContext {
	return &domain.DeviceContext{
		UserAgent:        "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
		ScreenResolution: "2560x1440",
		Timezone:         "Australia/Sydney",
		Language:         "en-AU",
		Platform:         "macOS",
	}
}

func TestTokenServiceAccessLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(t)
	device := testDevice()

	token, claims, err := svc.IssueAccessToken(ctx, IssueAccessParams{
		UserID:    "user-1",
		Email:     "user@example.com",
		SessionID: "sess-1",
		RiskScore: 0.1,
		Device:    device,
		IPAddress: "203.0.113.9",
	})
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)
	require.NotEmpty(t, claims.DeviceFingerprint)
	require.Equal(t, tokenx.SecurityHigh, claims.SecurityLevel)

	t.Run("verifies with matching context", func(t *testing.T) {
		got, warnings, err := svc.VerifyAccessToken(ctx, token, device, "203.0.113.9")
		require.NoError(t, err)
		require.Empty(t, warnings)
		require.Equal(t, "user-1", got.Subject)
		require.Equal(t, "sess-1", got.SessionID)
	})

	t.Run("context drift on a low-risk token warns only", func(t *testing.T) {
		got, warnings, err := svc.VerifyAccessToken(ctx, token, device, "198.51.100.7")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Contains(t, warnings, tokenx.WarnIPMismatch)
	})

	t.Run("revocation takes effect immediately", func(t *testing.T) {
		require.NoError(t, svc.RevokeToken(ctx, claims.ID, "user-1", tokenx.TokenTypeAccess, "logout"))

		_, _, err := svc.VerifyAccessToken(ctx, token, device, "203.0.113.9")
		require.ErrorIs(t, err, tokenx.ErrTokenRevoked)
	})

	t.Run("revocation is audited", func(t *testing.T) {
		logs, err := svc.Audit.ListRecentAuditLogs(ctx, "user-1", time.Hour)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.Equal(t, domain.EventTokenRevoked, logs[0].EventType)
	})
}

func TestTokenServiceDriftOnHighRiskToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(t)
	device := testDevice()

	token, _, err := svc.IssueAccessToken(ctx, IssueAccessParams{
		UserID:    "user-1",
		Email:     "user@example.com",
		SessionID: "sess-1",
		RiskScore: 0.7,
		Device:    device,
		IPAddress: "203.0.113.9",
	})
	require.NoError(t, err)

	other := testDevice()
	other.Timezone = "Europe/Berlin"

	_, warnings, err := svc.VerifyAccessToken(ctx, token, other, "203.0.113.9")
	require.ErrorIs(t, err, tokenx.ErrSecurityValidation)
	require.Contains(t, warnings, tokenx.WarnDeviceMismatch)
}

func TestTokenServiceRefreshRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(t)
	device := testDevice()

	token, claims, err := svc.IssueRefreshToken(ctx, "user-1", "refresh-rec-1", device, "203.0.113.9")
	require.NoError(t, err)
	require.Equal(t, "refresh-rec-1", claims.TokenID)

	got, warnings, err := svc.VerifyRefreshToken(ctx, token, device, "203.0.113.9")
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "refresh-rec-1", got.TokenID)
}

func TestTokenServicePurposeTokens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(t)

	token, _, err := svc.IssuePurposeToken(ctx, "user-1", tokenx.PurposePasswordReset)
	require.NoError(t, err)

	t.Run("accepts the matching purpose", func(t *testing.T) {
		claims, err := svc.VerifyPurposeToken(ctx, token, tokenx.PurposePasswordReset)
		require.NoError(t, err)
		require.Equal(t, "user-1", claims.Subject)
	})

	t.Run("rejects a different purpose", func(t *testing.T) {
		_, err := svc.VerifyPurposeToken(ctx, token, tokenx.PurposeEmailVerification)
		require.ErrorIs(t, err, tokenx.ErrSchemaValidation)
	})
}
