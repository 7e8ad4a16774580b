package tokenx

import "errors"

var (
	ErrNoActiveKey         = errors.New("tokenx: no active signing key")
	ErrRotationUnavailable = errors.New("tokenx: rotation unavailable")
	ErrUnsupportedAlg      = errors.New("tokenx: unsupported algorithm")

	ErrTokenMalformed   = errors.New("tokenx: malformed token")
	ErrTokenInvalid     = errors.New("tokenx: invalid token")
	ErrTokenExpired     = errors.New("tokenx: token expired")
	ErrTokenNotYetValid = errors.New("tokenx: token not yet valid")
	ErrTokenRevoked     = errors.New("tokenx: token revoked")

	ErrIssuer   = errors.New("tokenx: issuer mismatch")
	ErrAudience = errors.New("tokenx: audience mismatch")

	ErrSchemaValidation   = errors.New("tokenx: claims failed schema validation")
	ErrSecurityValidation = errors.New("tokenx: security validation failed")
)
