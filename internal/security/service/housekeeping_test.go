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

func TestHousekeepingCleanup(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	now := time.Now()

	// One lapsed and one live durable revocation.
	require.NoError(t, st.Revocations().CreateRevocation(ctx, domain.RevocationEntry{
		JTI:       "lapsed-jti",
		UserID:    "user-1",
		RevokedAt: now.Add(-48 * time.Hour),
		TTLExpiry: now.Add(-24 * time.Hour),
	}))
	require.NoError(t, st.Revocations().CreateRevocation(ctx, domain.RevocationEntry{
		JTI:       "live-jti",
		UserID:    "user-1",
		RevokedAt: now,
		TTLExpiry: now.Add(24 * time.Hour),
	}))

	// A registry whose local cache holds one lapsed entry.
	past := now.Add(-2 * time.Hour)
	clock := past
	registry := revocation.NewRegistry(st.Revocations(), logger,
		revocation.WithTTL(time.Hour),
		revocation.WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, registry.Revoke(ctx, "cached-jti", "user-1", tokenx.TokenTypeAccess, "test"))
	clock = now
	require.Equal(t, 1, registry.Len())

	// A key ring with one lapsed retired key.
	keys, err := tokenx.NewKeyRing([]tokenx.SigningKey{
		{Kid: "active", Secret: []byte("0123456789abcdef0123456789abcdef"), Algorithm: tokenx.AlgHS256, Active: true, CreatedAt: now},
		{Kid: "retired", Secret: []byte("fedcba9876543210fedcba9876543210"), Algorithm: tokenx.AlgHS256, CreatedAt: now.Add(-72 * time.Hour), ExpiresAt: &past},
	})
	require.NoError(t, err)

	svc := NewHousekeepingService(st, registry, keys, logger, time.Hour)
	svc.cleanup()

	revoked, err := st.Revocations().IsRevoked(ctx, "lapsed-jti")
	require.NoError(t, err)
	require.False(t, revoked)

	revoked, err = st.Revocations().IsRevoked(ctx, "live-jti")
	require.NoError(t, err)
	require.True(t, revoked)

	require.Equal(t, 0, registry.Len())
	require.Equal(t, []string{"active"}, keys.Kids())
}

func TestHousekeepingStartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	svc := NewHousekeepingService(st, nil, nil, logger, time.Hour)
	svc.Start()
	svc.Stop()
}
