// Package revocation implements the two-tier token revocation registry: a
// concurrent in-process cache as the fast path, backed by a durable store
// that is the source of truth across instances.
package revocation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/store"
)

// DefaultTTL is how long a revocation entry outlives the revoke call. It
// must be at least as long as the longest token lifetime, otherwise a
// revoked token could come back from the dead.
const DefaultTTL = 7 * 24 * time.Hour

// Registry is safe for concurrent use. The local cache is authoritative the
// moment Revoke returns; the durable write is best-effort and its failure
// never rolls the local state back.
type Registry struct {
	mu     sync.RWMutex
	local  map[string]time.Time // jti -> ttl expiry
	store  store.Revocations
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Registry.
type Option func(*Registry)

// WithTTL overrides the revocation entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(st store.Revocations, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		local:  make(map[string]time.Time),
		store:  st,
		ttl:    DefaultTTL,
		logger: logger,
		now:    time.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revoke marks a jti revoked. Idempotent: revoking twice is a no-op. The
// local insert happens first and always sticks; the durable write is
// attempted afterwards and only logged on failure.
func (r *Registry) Revoke(ctx context.Context, jti, userID, tokenType, reason string) error {
	if jti == "" {
		return nil
	}

	now := r.now()
	expiry := now.Add(r.ttl)

	r.mu.Lock()
	if _, exists := r.local[jti]; !exists {
		r.local[jti] = expiry
	}
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}

	entry := domain.RevocationEntry{
		JTI:       jti,
		UserID:    userID,
		TokenType: tokenType,
		Reason:    reason,
		RevokedAt: now,
		TTLExpiry: expiry,
	}
	if err := r.store.CreateRevocation(ctx, entry); err != nil {
		// The local revocation already took effect; other instances will
		// miss it until the store recovers, which is the documented
		// trade-off.
		r.logger.Warn("failed to persist revocation", "jti", jti, "error", err)
	}
	return nil
}

// IsRevoked answers the membership check. Local cache first; on a miss the
// durable store is consulted and a hit back-fills the cache. A store error
// degrades to local-only rather than failing open for known revocations.
func (r *Registry) IsRevoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}

	now := r.now()

	r.mu.RLock()
	expiry, hit := r.local[jti]
	r.mu.RUnlock()
	if hit {
		if now.Before(expiry) {
			return true
		}
		// Lapsed locally. Drop the entry and fall through to the store,
		// whose entry may be longer-lived than ours.
		r.mu.Lock()
		delete(r.local, jti)
		r.mu.Unlock()
	}

	if r.store == nil {
		return false
	}

	revoked, err := r.store.IsRevoked(ctx, jti)
	if err != nil {
		r.logger.Warn("revocation store unreachable, using local cache only", "jti", jti, "error", err)
		return false
	}
	if revoked {
		r.mu.Lock()
		r.local[jti] = now.Add(r.ttl)
		r.mu.Unlock()
	}
	return revoked
}

// PurgeExpired drops lapsed local entries. The durable store purges its own
// rows; this only bounds the cache.
func (r *Registry) PurgeExpired() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for jti, expiry := range r.local {
		if !now.Before(expiry) {
			delete(r.local, jti)
			removed++
		}
	}
	return removed
}

// Len reports the local cache size, for metrics and tests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.local)
}
