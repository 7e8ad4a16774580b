package tokenx

import (
	"fmt"
	"sync"
	"time"
)

// Supported HMAC signing algorithms. Anything outside this set is rejected
// before a signature is ever checked.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
)

// DefaultGracePeriod is how long a rotated-out key keeps verifying tokens
// that were signed under it.
const DefaultGracePeriod = 1 * time.Hour

// SigningKey is a named HMAC key held by the KeyRing. Exactly one key is
// active for signing at any time; inactive keys with a future ExpiresAt are
// still usable for verification (grace window).
type SigningKey struct {
	Kid       string
	Secret    []byte
	Algorithm string
	Active    bool
	CreatedAt time.Time
	ExpiresAt *time.Time // nil for the active key and for standby keys
}

// usable reports whether the key may verify tokens at the given instant.
func (k SigningKey) usable(now time.Time) bool {
	if k.Active {
		return true
	}
	return k.ExpiresAt != nil && now.Before(*k.ExpiresAt)
}

// KeyRing holds the signing keys for the engine. Reads take a shared lock so
// concurrent Sign/Verify calls never block each other; Rotate is the single
// writer.
type KeyRing struct {
	mu    sync.RWMutex
	keys  map[string]SigningKey
	grace time.Duration
	now   func() time.Time
}

// KeyRingOption customises a KeyRing.
type KeyRingOption func(*KeyRing)

// WithGracePeriod overrides the rotation grace window.
func WithGracePeriod(d time.Duration) KeyRingOption {
	return func(r *KeyRing) { r.grace = d }
}

// WithClock overrides the time source. Used by tests to step through grace
// windows without sleeping.
func WithClock(now func() time.Time) KeyRingOption {
	return func(r *KeyRing) { r.now = now }
}

// NewKeyRing builds a KeyRing from configured keys. It enforces the
// exactly-one-active invariant up front so the rest of the engine never has
// to re-check it.
func NewKeyRing(keys []SigningKey, opts ...KeyRingOption) (*KeyRing, error) {
	r := &KeyRing{
		keys:  make(map[string]SigningKey, len(keys)),
		grace: DefaultGracePeriod,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	active := 0
	for _, k := range keys {
		if k.Kid == "" {
			return nil, fmt.Errorf("tokenx: signing key with empty kid")
		}
		if len(k.Secret) == 0 {
			return nil, fmt.Errorf("tokenx: signing key %q has empty secret", k.Kid)
		}
		switch k.Algorithm {
		case AlgHS256, AlgHS384, AlgHS512:
		default:
			return nil, fmt.Errorf("tokenx: signing key %q: %w (%s)", k.Kid, ErrUnsupportedAlg, k.Algorithm)
		}
		if _, dup := r.keys[k.Kid]; dup {
			return nil, fmt.Errorf("tokenx: duplicate kid %q", k.Kid)
		}
		if k.Active {
			active++
		}
		r.keys[k.Kid] = k
	}
	if active != 1 {
		return nil, fmt.Errorf("tokenx: expected exactly one active key, got %d", active)
	}
	return r, nil
}

// ActiveKey returns the key currently used for signing.
func (r *KeyRing) ActiveKey() (SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *KeyRing) activeLocked() (SigningKey, error) {
	for _, k := range r.keys {
		if k.Active {
			return k, nil
		}
	}
	return SigningKey{}, ErrNoActiveKey
}

// KeyFor resolves a verification key by kid. A key that is active or still
// within its grace window is returned as-is; anything else (unknown kid,
// lapsed grace, empty kid) falls back to the active key so the signature
// check fails cleanly instead of the lookup.
func (r *KeyRing) KeyFor(kid string) (SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kid != "" {
		if k, ok := r.keys[kid]; ok && k.usable(r.now()) {
			return k, nil
		}
	}
	return r.activeLocked()
}

// Rotate demotes the active key and promotes a distinct, non-expired standby.
// The demoted key keeps verifying tokens until its grace window lapses; new
// signings pick up the promoted key on their next call.
func (r *KeyRing) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.activeLocked()
	if err != nil {
		return err
	}

	now := r.now()
	var next *SigningKey
	for _, k := range r.keys {
		if k.Kid == current.Kid || k.Active {
			continue
		}
		if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
			continue // already lapsed, not a rotation candidate
		}
		if next == nil || k.CreatedAt.After(next.CreatedAt) {
			candidate := k
			next = &candidate
		}
	}
	if next == nil {
		return ErrRotationUnavailable
	}

	graceEnd := now.Add(r.grace)
	current.Active = false
	current.ExpiresAt = &graceEnd
	r.keys[current.Kid] = current

	next.Active = true
	next.ExpiresAt = nil
	r.keys[next.Kid] = *next

	return nil
}

// PruneExpired drops keys whose grace window has fully lapsed. Called by
// housekeeping; never removes the active key.
func (r *KeyRing) PruneExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for kid, k := range r.keys {
		if !k.Active && k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
			delete(r.keys, kid)
			removed++
		}
	}
	return removed
}

// Kids returns the identifiers of all keys currently held, for logging and
// introspection. Secret material is never exposed.
func (r *KeyRing) Kids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kids := make([]string, 0, len(r.keys))
	for kid := range r.keys {
		kids = append(kids, kid)
	}
	return kids
}
