package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer   string // Required: issuer claim for tokens
	Audience string // Required: audience claim for tokens

	MasterSecret   string        // Required: master secret that signing keys derive from
	NumKeys        int           // Optional: number of signing keys to derive (default: 3, min: 1, max: 10)
	KeyGracePeriod time.Duration // Optional: grace period for retired keys (default: 1h)

	AccessTokenTTL  time.Duration // Optional: default access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime (default: 168h)
	PurposeTokenTTL time.Duration // Optional: purpose token lifetime (default: 1h)
	RevocationTTL   time.Duration // Optional: revocation entry lifetime (default: 168h)
	ClockSkewLeeway time.Duration // Optional: clock-skew tolerance for claim validation (default: 30s)

	HighRiskCountries    []string // Optional: ISO country codes carrying extra geographic risk
	FlagPrivateIPs       bool     // Optional: treat RFC1918/loopback sources as suspicious (default: true)
	MFARequiredThreshold float64  // Optional: composite score forcing an MFA challenge (default: 0.6, clamped to 0..1)

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./sessionguard.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	NotifyInterval time.Duration // Optional: per-user security alert interval (default: 15m)
	NotifyBurst    int           // Optional: per-user security alert burst (default: 2)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:   getEnvOrDefault("SG_ISSUER", "sessionguard"),
		Audience: getEnvOrDefault("SG_AUDIENCE", "sessionguard-clients"),

		MasterSecret:   os.Getenv("SG_MASTER_SECRET"),
		NumKeys:        getEnvIntOrDefault("SG_NUM_KEYS", 3),
		KeyGracePeriod: getEnvDurationOrDefault("SG_KEY_GRACE_PERIOD", 1*time.Hour),

		AccessTokenTTL:  getEnvDurationOrDefault("SG_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("SG_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		PurposeTokenTTL: getEnvDurationOrDefault("SG_PURPOSE_TOKEN_TTL", 1*time.Hour),
		RevocationTTL:   getEnvDurationOrDefault("SG_REVOCATION_TTL", 7*24*time.Hour),
		ClockSkewLeeway: getEnvDurationOrDefault("SG_CLOCK_SKEW_LEEWAY", 30*time.Second),

		HighRiskCountries:    getEnvListOrDefault("SG_HIGH_RISK_COUNTRIES", nil),
		FlagPrivateIPs:       getEnvBoolOrDefault("SG_FLAG_PRIVATE_IPS", true),
		MFARequiredThreshold: getEnvFloatOrDefault("SG_MFA_REQUIRED_THRESHOLD", 0.6),

		DatabaseFile:         getEnvOrDefault("SG_DATABASE_FILE", "sessionguard.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		NotifyInterval: getEnvDurationOrDefault("SG_NOTIFY_INTERVAL", 15*time.Minute),
		NotifyBurst:    getEnvIntOrDefault("SG_NOTIFY_BURST", 2),
	}

	if cfg.NumKeys < 1 {
		cfg.NumKeys = 1
	}
	if cfg.NumKeys > 10 {
		cfg.NumKeys = 10
	}
	if cfg.MFARequiredThreshold < 0 {
		cfg.MFARequiredThreshold = 0
	}
	if cfg.MFARequiredThreshold > 1 {
		cfg.MFARequiredThreshold = 1
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
		return floatValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
