package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.Equal(t, "sessionguard", cfg.Issuer)
	require.Equal(t, 3, cfg.NumKeys)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 30*time.Second, cfg.ClockSkewLeeway)
	require.InDelta(t, 0.6, cfg.MFARequiredThreshold, 1e-9)
	require.True(t, cfg.FlagPrivateIPs)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SG_CLOCK_SKEW_LEEWAY", "2m")
	t.Setenv("SG_MFA_REQUIRED_THRESHOLD", "0.45")
	t.Setenv("SG_NUM_KEYS", "99")
	t.Setenv("SG_HIGH_RISK_COUNTRIES", "kp, ir")

	cfg := LoadConfig()

	require.Equal(t, 2*time.Minute, cfg.ClockSkewLeeway)
	require.InDelta(t, 0.45, cfg.MFARequiredThreshold, 1e-9)
	require.Equal(t, 10, cfg.NumKeys)
	require.Equal(t, []string{"KP", "IR"}, cfg.HighRiskCountries)
}

func TestLoadConfigClampsMFAThreshold(t *testing.T) {
	t.Setenv("SG_MFA_REQUIRED_THRESHOLD", "1.7")
	require.InDelta(t, 1.0, LoadConfig().MFARequiredThreshold, 1e-9)

	t.Setenv("SG_MFA_REQUIRED_THRESHOLD", "-0.2")
	require.InDelta(t, 0.0, LoadConfig().MFARequiredThreshold, 1e-9)
}
