package tokenx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/huddlelabs/sessionguard/pkg/idx"
)

// Token type discriminators carried in the "type" claim. Purpose tokens carry
// their purpose directly as the type so a password-reset token can never be
// replayed as an email-verification token.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	PurposeEmailVerification = "email_verification"
	PurposePasswordReset     = "password_reset"
)

// Security levels assigned to access tokens at issuance.
const (
	SecurityStandard = "standard"
	SecurityHigh     = "high"
	SecurityCritical = "critical"
)

// CriticalTTLCeiling caps the lifetime of critical-level access tokens.
const CriticalTTLCeiling = 5 * time.Minute

// AccessClaims are the claims carried by access tokens. The user id rides in
// the registered Subject claim, matching how the rest of the platform reads
// tokens.
type AccessClaims struct {
	jwt.RegisteredClaims

	Email             string  `json:"email,omitempty"`
	TokenType         string  `json:"type"`
	SessionID         string  `json:"sid,omitempty"`
	DeviceFingerprint string  `json:"dfp,omitempty"`
	IPAddress         string  `json:"ip,omitempty"`
	MFAVerified       bool    `json:"mfa,omitempty"`
	RiskScore         float64 `json:"risk,omitempty"`
	SecurityLevel     string  `json:"slv,omitempty"`
}

// RefreshClaims are the claims carried by refresh tokens. TokenID references
// the persisted refresh-token record owned by the identity store.
type RefreshClaims struct {
	jwt.RegisteredClaims

	TokenType         string `json:"type"`
	TokenID           string `json:"tid"`
	DeviceFingerprint string `json:"dfp,omitempty"`
	IPAddress         string `json:"ip,omitempty"`
}

// PurposeClaims are the claims of single-purpose tokens (email verification,
// password reset).
type PurposeClaims struct {
	jwt.RegisteredClaims

	TokenType string `json:"type"`
}

// AccessTokenInput is everything the caller knows about the session when
// minting an access token.
type AccessTokenInput struct {
	UserID            string
	Email             string
	SessionID         string
	DeviceFingerprint string
	IPAddress         string
	MFAVerified       bool
	RiskScore         float64
}

// SecurityLevelFor classifies an issuance context. A high risk score forces
// critical; MFA or a bound device fingerprint lifts standard to high.
func SecurityLevelFor(in AccessTokenInput) string {
	switch {
	case in.RiskScore > 0.8:
		return SecurityCritical
	case in.MFAVerified || in.DeviceFingerprint != "":
		return SecurityHigh
	default:
		return SecurityStandard
	}
}

// effectiveTTL clamps the requested lifetime to the ceiling for the level.
func effectiveTTL(requested time.Duration, level string, accessDefault, maxTTL time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = accessDefault
	}
	switch level {
	case SecurityCritical:
		if ttl > CriticalTTLCeiling {
			ttl = CriticalTTLCeiling
		}
	case SecurityHigh:
		if ttl > accessDefault {
			ttl = accessDefault
		}
	default:
		if maxTTL > 0 && ttl > maxTTL {
			ttl = maxTTL
		}
	}
	return ttl
}

func newRegisteredClaims(subject, issuer, audience string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        idx.New().String(),
	}
}

// validate enforces the access-token schema: type discriminator, unique jti,
// exp after iat, and the critical-level invariant (critical implies MFA plus
// a bound device fingerprint). Checked at both sign and verify time.
func (c *AccessClaims) validate() error {
	if c.TokenType != TokenTypeAccess {
		return ErrSchemaValidation
	}
	if c.ID == "" || c.Subject == "" {
		return ErrSchemaValidation
	}
	if c.ExpiresAt == nil || c.IssuedAt == nil || !c.ExpiresAt.After(c.IssuedAt.Time) {
		return ErrSchemaValidation
	}
	if c.SecurityLevel == SecurityCritical && (!c.MFAVerified || c.DeviceFingerprint == "") {
		return ErrSchemaValidation
	}
	return nil
}

func (c *RefreshClaims) validate() error {
	if c.TokenType != TokenTypeRefresh {
		return ErrSchemaValidation
	}
	if c.ID == "" || c.Subject == "" || c.TokenID == "" {
		return ErrSchemaValidation
	}
	return nil
}

func (c *PurposeClaims) validate(purpose string) error {
	if c.TokenType != purpose {
		return ErrSchemaValidation
	}
	if c.ID == "" || c.Subject == "" {
		return ErrSchemaValidation
	}
	return nil
}
