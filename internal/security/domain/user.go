package domain

import "time"

// User is the slice of the identity record this engine needs. The identity
// store owns the full record.
type User struct {
	ID         string
	Email      string
	MFAEnabled bool
	CreatedAt  time.Time
}

// DeviceRecord is a device the identity store has seen before, keyed by
// fingerprint hash.
type DeviceRecord struct {
	FingerprintHash string
	UserID          string
	UserAgent       string
	DeviceName      string
	TrustScore      float64
	Blocked         bool
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
}
