package domain

import "time"

// DeviceContext is the raw device signal set extracted from a request.
// Screen resolution and platform are optional enrichments reported by a
// companion client call; everything else comes from headers.
type DeviceContext struct {
	UserAgent        string
	ScreenResolution string
	Timezone         string
	Language         string
	Platform         string
}

// DeviceFingerprint is the derived, stable identity of a device. Immutable
// once computed for a given input tuple.
type DeviceFingerprint struct {
	Hash             string
	UserAgent        string
	ScreenResolution string
	Timezone         string
	Language         string
	Platform         string
	DeviceName       string
}

// SessionContext describes one authenticated request being assessed.
// Ephemeral, one per request.
type SessionContext struct {
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
	Device    *DeviceContext
	Location  string
	Timestamp time.Time
}
