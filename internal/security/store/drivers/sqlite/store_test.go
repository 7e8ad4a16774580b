package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestUsersRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	user := domain.User{
		ID:        "user-1",
		Email:     "user@example.com",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Users().CreateUser(ctx, user))

	t.Run("round trip", func(t *testing.T) {
		got, err := st.Users().GetUserByID(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, user.Email, got.Email)
		require.False(t, got.MFAEnabled)
	})

	t.Run("mfa flag flips", func(t *testing.T) {
		require.NoError(t, st.Users().SetMFAEnabled(ctx, "user-1", true))
		got, err := st.Users().GetUserByID(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, got.MFAEnabled)
	})

	t.Run("unknown id maps to ErrNotFound", func(t *testing.T) {
		_, err := st.Users().GetUserByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDevicesRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, st.Users().CreateUser(ctx, domain.User{
		ID: "user-1", Email: "user@example.com", CreatedAt: now,
	}))

	device := domain.DeviceRecord{
		FingerprintHash: "hash-1",
		UserID:          "user-1",
		UserAgent:       "Mozilla/5.0",
		DeviceName:      "Windows PC",
		TrustScore:      0.5,
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
	require.NoError(t, st.Devices().SaveDevice(ctx, device))

	t.Run("upsert bumps last seen and trust", func(t *testing.T) {
		device.TrustScore = 0.7
		device.LastSeenAt = now.Add(time.Hour)
		require.NoError(t, st.Devices().SaveDevice(ctx, device))

		got, err := st.Devices().GetDeviceByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.InDelta(t, 0.7, got.TrustScore, 1e-9)
	})

	t.Run("block flag", func(t *testing.T) {
		require.NoError(t, st.Devices().SetDeviceBlocked(ctx, "hash-1", true))
		got, err := st.Devices().GetDeviceByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.True(t, got.Blocked)
	})

	t.Run("blocking an unknown device fails", func(t *testing.T) {
		require.Error(t, st.Devices().SetDeviceBlocked(ctx, "nope", true))
	})
}

func TestAuditLogsRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	entry := func(id string, success bool, at time.Time) domain.AuthAuditLog {
		return domain.AuthAuditLog{
			ID:        id,
			UserID:    "user-1",
			EventType: domain.EventLogin,
			Success:   success,
			IPAddress: "203.0.113.9",
			CreatedAt: at,
		}
	}

	require.NoError(t, st.AuditLogs().CreateAuditLog(ctx, entry("a", true, now.Add(-2*time.Hour))))
	require.NoError(t, st.AuditLogs().CreateAuditLog(ctx, entry("b", false, now.Add(-time.Hour))))
	require.NoError(t, st.AuditLogs().CreateAuditLog(ctx, entry("c", true, now)))
	require.NoError(t, st.AuditLogs().CreateAuditLog(ctx, entry("old", false, now.Add(-48*time.Hour))))

	t.Run("list is windowed and newest first", func(t *testing.T) {
		logs, err := st.AuditLogs().ListRecentAuditLogs(ctx, "user-1", 24*time.Hour)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		require.Equal(t, "c", logs[0].ID)
		require.Equal(t, "a", logs[2].ID)
	})

	t.Run("failure count respects the window", func(t *testing.T) {
		n, err := st.AuditLogs().CountRecentFailures(ctx, "user-1", 24*time.Hour)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})
}

func TestRevocationsRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	live := domain.RevocationEntry{
		JTI:       "live",
		UserID:    "user-1",
		TokenType: "access",
		Reason:    "logout",
		RevokedAt: now,
		TTLExpiry: now.Add(time.Hour),
	}
	require.NoError(t, st.Revocations().CreateRevocation(ctx, live))

	t.Run("duplicate insert is a no-op", func(t *testing.T) {
		require.NoError(t, st.Revocations().CreateRevocation(ctx, live))
	})

	t.Run("live entry is revoked", func(t *testing.T) {
		revoked, err := st.Revocations().IsRevoked(ctx, "live")
		require.NoError(t, err)
		require.True(t, revoked)
	})

	t.Run("lapsed entry is not revoked and gets purged", func(t *testing.T) {
		lapsed := live
		lapsed.JTI = "lapsed"
		lapsed.TTLExpiry = now.Add(-time.Hour)
		require.NoError(t, st.Revocations().CreateRevocation(ctx, lapsed))

		revoked, err := st.Revocations().IsRevoked(ctx, "lapsed")
		require.NoError(t, err)
		require.False(t, revoked)

		require.NoError(t, st.Revocations().DeleteExpiredRevocations(ctx))

		revoked, err = st.Revocations().IsRevoked(ctx, "live")
		require.NoError(t, err)
		require.True(t, revoked)
	})
}
