package app

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/huddlelabs/sessionguard/pkg/tokenx"
)

// derivedKeyLen is the HMAC secret size for each derived signing key.
// 64 bytes covers HS512's full block-free key size.
const derivedKeyLen = 64

// minMasterSecretLen guards against weak deployments. The master secret
// feeds an HKDF, so it must carry real entropy of its own.
const minMasterSecretLen = 32

// InitSigningKeys derives the key ring from the configured master secret.
//
// Each key's HMAC secret is HKDF-SHA256 derived from the master secret with
// the kid as the info parameter, so the same configuration always yields the
// same ring: tokens survive restarts without any key material ever touching
// the database. Key 1 starts active; the rest are standbys for Rotate() to
// promote.
func InitSigningKeys(cfg Config, logger *slog.Logger) (*tokenx.KeyRing, error) {
	if len(cfg.MasterSecret) < minMasterSecretLen {
		return nil, errors.New("app: SG_MASTER_SECRET must be at least 32 bytes")
	}

	now := time.Now()
	keys := make([]tokenx.SigningKey, 0, cfg.NumKeys)
	for i := 1; i <= cfg.NumKeys; i++ {
		kid := fmt.Sprintf("sg-key-%d", i)
		secret, err := deriveSecret(cfg.MasterSecret, kid)
		if err != nil {
			return nil, fmt.Errorf("derive signing key %s: %w", kid, err)
		}
		keys = append(keys, tokenx.SigningKey{
			Kid:       kid,
			Secret:    secret,
			Algorithm: tokenx.AlgHS256,
			Active:    i == 1,
			// Later kids sort as newer, which is what Rotate() prefers.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}

	ring, err := tokenx.NewKeyRing(keys, tokenx.WithGracePeriod(cfg.KeyGracePeriod))
	if err != nil {
		return nil, fmt.Errorf("build key ring: %w", err)
	}

	logger.Info("signing keys derived",
		"num_keys", cfg.NumKeys,
		"grace_period", cfg.KeyGracePeriod,
	)
	return ring, nil
}

func deriveSecret(masterSecret, kid string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte("sessionguard-signing:"+kid))
	secret := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(r, secret); err != nil {
		return nil, err
	}
	return secret, nil
}
