package app

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitSigningKeys(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := Config{
		MasterSecret:   "an-extremely-long-master-secret-for-tests",
		NumKeys:        3,
		KeyGracePeriod: time.Hour,
	}

	t.Run("derivation is deterministic", func(t *testing.T) {
		a, err := InitSigningKeys(cfg, logger)
		require.NoError(t, err)
		b, err := InitSigningKeys(cfg, logger)
		require.NoError(t, err)

		ka, err := a.ActiveKey()
		require.NoError(t, err)
		kb, err := b.ActiveKey()
		require.NoError(t, err)

		require.Equal(t, ka.Kid, kb.Kid)
		require.Equal(t, ka.Secret, kb.Secret)
	})

	t.Run("kids differ from each other", func(t *testing.T) {
		ring, err := InitSigningKeys(cfg, logger)
		require.NoError(t, err)
		require.Len(t, ring.Kids(), 3)
	})

	t.Run("ring rotates through standbys", func(t *testing.T) {
		ring, err := InitSigningKeys(cfg, logger)
		require.NoError(t, err)

		before, err := ring.ActiveKey()
		require.NoError(t, err)
		require.NoError(t, ring.Rotate())
		after, err := ring.ActiveKey()
		require.NoError(t, err)

		require.NotEqual(t, before.Kid, after.Kid)
	})

	t.Run("short master secret rejected", func(t *testing.T) {
		_, err := InitSigningKeys(Config{MasterSecret: "too-short", NumKeys: 1}, logger)
		require.Error(t, err)
	})
}
