// Package service wires the token codec, risk engine, revocation registry
// and fingerprinting into the operations callers actually invoke.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/fingerprint"
	"github.com/huddlelabs/sessionguard/internal/security/revocation"
	"github.com/huddlelabs/sessionguard/internal/security/store"
	"github.com/huddlelabs/sessionguard/pkg/idx"
	"github.com/huddlelabs/sessionguard/pkg/tokenx"
)

// TokenService issues and verifies the engine's tokens. It binds the
// caller's device/network context into every token at issuance and checks
// drift against it at verification.
type TokenService struct {
	Codec       *tokenx.Codec
	Revocations *revocation.Registry
	Audit       store.AuditLogs
	Logger      *slog.Logger
}

func NewTokenService(codec *tokenx.Codec, reg *revocation.Registry, audit store.AuditLogs, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		Codec:       codec,
		Revocations: reg,
		Audit:       audit,
		Logger:      logger,
	}
}

// IssueAccessParams describes one access token issuance.
type IssueAccessParams struct {
	UserID      string
	Email       string
	SessionID   string
	MFAVerified bool
	RiskScore   float64

	// Device and IPAddress bind the token to the issuing request.
	Device    *domain.DeviceContext
	IPAddress string

	// TTL is the requested lifetime; zero means the configured default.
	// The effective lifetime may be shorter under an elevated security
	// level.
	TTL time.Duration
}

// IssueAccessToken mints an access token bound to the caller's device and
// network context.
func (s *TokenService) IssueAccessToken(ctx context.Context, p IssueAccessParams) (string, *tokenx.AccessClaims, error) {
	in := tokenx.AccessTokenInput{
		UserID:      p.UserID,
		Email:       p.Email,
		SessionID:   p.SessionID,
		MFAVerified: p.MFAVerified,
		RiskScore:   p.RiskScore,
		IPAddress:   p.IPAddress,
	}
	if p.Device != nil {
		in.DeviceFingerprint = fingerprint.Fingerprint(*p.Device).Hash
	}

	token, claims, err := s.Codec.SignAccess(in, p.TTL)
	if err != nil {
		return "", nil, fmt.Errorf("issue access token: %w", err)
	}

	s.Logger.DebugContext(ctx, "access token issued",
		"user_id", p.UserID,
		"jti", claims.ID,
		"security_level", claims.SecurityLevel,
	)
	return token, claims, nil
}

// IssueRefreshToken mints a refresh token referencing the persisted
// refresh-token record tokenID.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID, tokenID string, device *domain.DeviceContext, ipAddress string) (string, *tokenx.RefreshClaims, error) {
	var hash string
	if device != nil {
		hash = fingerprint.Fingerprint(*device).Hash
	}

	token, claims, err := s.Codec.SignRefresh(userID, tokenID, hash, ipAddress)
	if err != nil {
		return "", nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.Logger.DebugContext(ctx, "refresh token issued", "user_id", userID, "jti", claims.ID)
	return token, claims, nil
}

// IssuePurposeToken mints a single-purpose token (email verification,
// password reset).
func (s *TokenService) IssuePurposeToken(ctx context.Context, userID, purpose string) (string, *tokenx.PurposeClaims, error) {
	token, claims, err := s.Codec.SignPurpose(userID, purpose)
	if err != nil {
		return "", nil, fmt.Errorf("issue %s token: %w", purpose, err)
	}

	s.Logger.DebugContext(ctx, "purpose token issued", "user_id", userID, "purpose", purpose)
	return token, claims, nil
}

// VerifyAccessToken verifies an access token against the current request
// context. Fingerprint or IP drift alone only produces warnings; drift on a
// token already carrying a high risk score fails the verification outright.
func (s *TokenService) VerifyAccessToken(ctx context.Context, token string, device *domain.DeviceContext, ipAddress string) (*tokenx.AccessClaims, []string, error) {
	vctx := tokenx.VerifyContext{IPAddress: ipAddress}
	if device != nil {
		vctx.DeviceFingerprint = fingerprint.Fingerprint(*device).Hash
	}

	claims, warnings, err := s.Codec.VerifyAccess(ctx, token, vctx)
	if err != nil {
		return nil, nil, err
	}

	if len(warnings) > 0 && claims.RiskScore >= domain.RiskThresholdHigh {
		s.Logger.WarnContext(ctx, "context drift on high-risk token",
			"user_id", claims.Subject,
			"jti", claims.ID,
			"warnings", warnings,
		)
		return nil, warnings, tokenx.ErrSecurityValidation
	}

	return claims, warnings, nil
}

// VerifyRefreshToken verifies a refresh token against the current request
// context.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, token string, device *domain.DeviceContext, ipAddress string) (*tokenx.RefreshClaims, []string, error) {
	vctx := tokenx.VerifyContext{IPAddress: ipAddress}
	if device != nil {
		vctx.DeviceFingerprint = fingerprint.Fingerprint(*device).Hash
	}
	return s.Codec.VerifyRefresh(ctx, token, vctx)
}

// VerifyPurposeToken verifies a single-purpose token against the expected
// purpose.
func (s *TokenService) VerifyPurposeToken(ctx context.Context, token, purpose string) (*tokenx.PurposeClaims, error) {
	return s.Codec.VerifyPurpose(ctx, token, purpose)
}

// RevokeToken marks a jti revoked, effective immediately for this instance.
// The audit trail write is best-effort.
func (s *TokenService) RevokeToken(ctx context.Context, jti, userID, tokenType, reason string) error {
	if err := s.Revocations.Revoke(ctx, jti, userID, tokenType, reason); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	if s.Audit != nil {
		entry := domain.AuthAuditLog{
			ID:        idx.New().String(),
			UserID:    userID,
			EventType: domain.EventTokenRevoked,
			Success:   true,
			Detail:    reason,
			CreatedAt: time.Now(),
		}
		if err := s.Audit.CreateAuditLog(ctx, entry); err != nil {
			s.Logger.WarnContext(ctx, "failed to audit token revocation", "jti", jti, "error", err)
		}
	}
	return nil
}
