package store

import (
	"context"
	"errors"
	"time"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the engine's view of the identity/session-history collaborators.
// Concrete drivers (sqlite here, postgres elsewhere) implement this. Every
// call may fail; the risk engine is required to degrade per sub-assessment
// rather than abort on a store error.
type Store interface {
	Users() Users
	Devices() Devices
	AuditLogs() AuditLogs
	Notifications() Notifications
	Revocations() Revocations

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// CreateUser inserts a user record (ids are ULIDs minted by the app).
	CreateUser(ctx context.Context, u domain.User) error

	// SetMFAEnabled flips the user's MFA flag.
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}

type Devices interface {
	// GetDeviceByHash returns a known device by fingerprint hash.
	GetDeviceByHash(ctx context.Context, hash string) (domain.DeviceRecord, error)

	// SaveDevice upserts a device record, bumping last_seen_at.
	SaveDevice(ctx context.Context, d domain.DeviceRecord) error

	// SetDeviceBlocked marks a device as blocked or unblocked.
	SetDeviceBlocked(ctx context.Context, hash string, blocked bool) error
}

type AuditLogs interface {
	// CreateAuditLog appends one audit event.
	CreateAuditLog(ctx context.Context, entry domain.AuthAuditLog) error

	// ListRecentAuditLogs returns a user's events within the trailing window,
	// newest first.
	ListRecentAuditLogs(ctx context.Context, userID string, window time.Duration) ([]domain.AuthAuditLog, error)

	// CountRecentFailures counts failed events within the trailing window.
	CountRecentFailures(ctx context.Context, userID string, window time.Duration) (int, error)
}

type Notifications interface {
	// CreateNotification hands a security alert to the notification
	// collaborator.
	CreateNotification(ctx context.Context, n domain.Notification) error
}

type Revocations interface {
	// CreateRevocation persists a revocation entry. Inserting the same jti
	// twice is a no-op (idempotent revoke).
	CreateRevocation(ctx context.Context, e domain.RevocationEntry) error

	// IsRevoked reports whether the jti has a live revocation entry.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpiredRevocations purges entries past their TTL (housekeeping).
	DeleteExpiredRevocations(ctx context.Context) error
}
