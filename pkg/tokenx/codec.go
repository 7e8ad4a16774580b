package tokenx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetimes. Short access tokens, week-long refresh tokens.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultPurposeTTL = 1 * time.Hour
	DefaultMaxTTL     = 24 * time.Hour
	DefaultLeeway     = 30 * time.Second
)

var algAllowList = []string{AlgHS256, AlgHS384, AlgHS512}

// RevocationChecker answers whether a jti has been revoked. The concrete
// implementation degrades to its local cache on store outages, so this never
// returns an error.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) bool
}

// VerifyContext carries request-level facts a caller wants compared against
// the claims bound into a token. Mismatches surface as warnings, not
// failures; escalation is the caller's decision.
type VerifyContext struct {
	DeviceFingerprint string
	IPAddress         string
}

// Warning identifiers returned from Verify*.
const (
	WarnDeviceMismatch = "device_fingerprint_mismatch"
	WarnIPMismatch     = "ip_address_mismatch"
)

// CodecOptions configures a Codec. Zero values fall back to the defaults
// above.
type CodecOptions struct {
	Issuer       string
	Audience     string
	Leeway       time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	PurposeTTL   time.Duration
	MaxAccessTTL time.Duration
	Revocations  RevocationChecker
	Clock        func() time.Time
}

// Codec signs and verifies the engine's tokens against the KeyRing.
type Codec struct {
	keys        *KeyRing
	issuer      string
	audience    string
	leeway      time.Duration
	accessTTL   time.Duration
	refreshTTL  time.Duration
	purposeTTL  time.Duration
	maxTTL      time.Duration
	revocations RevocationChecker
	now         func() time.Time
}

// NewCodec builds a Codec. Issuer and audience are required because every
// token this engine mints is audience-bound.
func NewCodec(keys *KeyRing, opts CodecOptions) (*Codec, error) {
	if keys == nil {
		return nil, errors.New("tokenx: key ring is required")
	}
	if opts.Issuer == "" || opts.Audience == "" {
		return nil, errors.New("tokenx: issuer and audience are required")
	}
	c := &Codec{
		keys:        keys,
		issuer:      opts.Issuer,
		audience:    opts.Audience,
		leeway:      opts.Leeway,
		accessTTL:   opts.AccessTTL,
		refreshTTL:  opts.RefreshTTL,
		purposeTTL:  opts.PurposeTTL,
		maxTTL:      opts.MaxAccessTTL,
		revocations: opts.Revocations,
		now:         opts.Clock,
	}
	if c.leeway <= 0 {
		c.leeway = DefaultLeeway
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTTL
	}
	if c.purposeTTL <= 0 {
		c.purposeTTL = DefaultPurposeTTL
	}
	if c.maxTTL <= 0 {
		c.maxTTL = DefaultMaxTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// SignAccess mints an access token. The security level and effective TTL are
// derived from the issuance context; a zero requestedTTL means "use the
// configured default".
func (c *Codec) SignAccess(in AccessTokenInput, requestedTTL time.Duration) (string, *AccessClaims, error) {
	level := SecurityLevelFor(in)
	ttl := effectiveTTL(requestedTTL, level, c.accessTTL, c.maxTTL)

	claims := &AccessClaims{
		RegisteredClaims:  newRegisteredClaims(in.UserID, c.issuer, c.audience, ttl, c.now()),
		Email:             in.Email,
		TokenType:         TokenTypeAccess,
		SessionID:         in.SessionID,
		DeviceFingerprint: in.DeviceFingerprint,
		IPAddress:         in.IPAddress,
		MFAVerified:       in.MFAVerified,
		RiskScore:         in.RiskScore,
		SecurityLevel:     level,
	}
	if err := claims.validate(); err != nil {
		return "", nil, err
	}

	token, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// SignRefresh mints a refresh token referencing a persisted refresh-token
// record.
func (c *Codec) SignRefresh(userID, tokenID, deviceFingerprint, ipAddress string) (string, *RefreshClaims, error) {
	claims := &RefreshClaims{
		RegisteredClaims:  newRegisteredClaims(userID, c.issuer, c.audience, c.refreshTTL, c.now()),
		TokenType:         TokenTypeRefresh,
		TokenID:           tokenID,
		DeviceFingerprint: deviceFingerprint,
		IPAddress:         ipAddress,
	}
	if err := claims.validate(); err != nil {
		return "", nil, err
	}

	token, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// SignPurpose mints a single-purpose token (email verification, password
// reset).
func (c *Codec) SignPurpose(userID, purpose string) (string, *PurposeClaims, error) {
	switch purpose {
	case PurposeEmailVerification, PurposePasswordReset:
	default:
		return "", nil, ErrSchemaValidation
	}

	claims := &PurposeClaims{
		RegisteredClaims: newRegisteredClaims(userID, c.issuer, c.audience, c.purposeTTL, c.now()),
		TokenType:        purpose,
	}
	token, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	key, err := c.keys.ActiveKey()
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(key.Algorithm), claims)
	token.Header["kid"] = key.Kid
	return token.SignedString(key.Secret)
}

// VerifyAccess verifies an access token end to end: algorithm allow-list,
// kid-resolved signature, issuer/audience/expiry with leeway, typed schema,
// and revocation. Returned warnings flag fingerprint/IP drift against vctx
// and never fail verification on their own.
func (c *Codec) VerifyAccess(ctx context.Context, token string, vctx VerifyContext) (*AccessClaims, []string, error) {
	claims := &AccessClaims{}
	if err := c.parse(ctx, token, claims); err != nil {
		return nil, nil, err
	}
	if err := claims.validate(); err != nil {
		return nil, nil, err
	}
	if c.isRevoked(ctx, claims.ID) {
		return nil, nil, ErrTokenRevoked
	}
	return claims, c.driftWarnings(claims.DeviceFingerprint, claims.IPAddress, vctx), nil
}

// VerifyRefresh verifies a refresh token.
func (c *Codec) VerifyRefresh(ctx context.Context, token string, vctx VerifyContext) (*RefreshClaims, []string, error) {
	claims := &RefreshClaims{}
	if err := c.parse(ctx, token, claims); err != nil {
		return nil, nil, err
	}
	if err := claims.validate(); err != nil {
		return nil, nil, err
	}
	if c.isRevoked(ctx, claims.ID) {
		return nil, nil, ErrTokenRevoked
	}
	return claims, c.driftWarnings(claims.DeviceFingerprint, claims.IPAddress, vctx), nil
}

// VerifyPurpose verifies a single-purpose token against the expected purpose.
func (c *Codec) VerifyPurpose(ctx context.Context, token, purpose string) (*PurposeClaims, error) {
	claims := &PurposeClaims{}
	if err := c.parse(ctx, token, claims); err != nil {
		return nil, err
	}
	if err := claims.validate(purpose); err != nil {
		return nil, err
	}
	if c.isRevoked(ctx, claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// parse decodes the unverified header first so an unsupported algorithm is
// rejected before any signature work, then runs the full golang-jwt
// validation with the kid-resolved key.
func (c *Codec) parse(_ context.Context, token string, claims jwt.Claims) error {
	alg, kid, err := peekHeader(token)
	if err != nil {
		return err
	}
	if !allowedAlg(alg) {
		return ErrUnsupportedAlg
	}

	keyfunc := func(t *jwt.Token) (any, error) {
		key, err := c.keys.KeyFor(kid)
		if err != nil {
			return nil, err
		}
		if t.Method.Alg() != key.Algorithm {
			return nil, ErrUnsupportedAlg
		}
		return key.Secret, nil
	}

	_, err = jwt.ParseWithClaims(token, claims, keyfunc,
		jwt.WithValidMethods(algAllowList),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return mapJWTError(err)
	}
	return nil
}

func (c *Codec) isRevoked(ctx context.Context, jti string) bool {
	return c.revocations != nil && jti != "" && c.revocations.IsRevoked(ctx, jti)
}

func (c *Codec) driftWarnings(boundFingerprint, boundIP string, vctx VerifyContext) []string {
	var warnings []string
	if boundFingerprint != "" && vctx.DeviceFingerprint != "" && boundFingerprint != vctx.DeviceFingerprint {
		warnings = append(warnings, WarnDeviceMismatch)
	}
	if boundIP != "" && vctx.IPAddress != "" && boundIP != vctx.IPAddress {
		warnings = append(warnings, WarnIPMismatch)
	}
	return warnings
}

// peekHeader decodes the JOSE header without verifying anything.
func peekHeader(token string) (alg, kid string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", "", ErrTokenMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", ErrTokenMalformed
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", "", ErrTokenMalformed
	}
	return header.Alg, header.Kid, nil
}

func allowedAlg(alg string) bool {
	for _, a := range algAllowList {
		if a == alg {
			return true
		}
	}
	return false
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlg):
		return ErrUnsupportedAlg
	case errors.Is(err, ErrNoActiveKey):
		return ErrNoActiveKey
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudience
	default:
		return ErrTokenInvalid
	}
}
