// Package fingerprint derives a stable device identity from request-level
// signals. The hash is deliberately IP-independent so a device keeps its
// identity across networks.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
)

// unknown is the literal default for any absent signal, so the hash input
// tuple always has the same arity.
const unknown = "unknown"

// Headers carrying optional client-reported enrichments. Screen resolution
// and platform come from a companion client call, never from the browser
// itself.
const (
	headerTimezone   = "X-Timezone"
	headerScreen     = "X-Screen-Resolution"
	headerPlatform   = "X-Platform"
	headerAcceptLang = "Accept-Language"
)

// Extract pulls a DeviceContext out of request headers. JavaScript-reported
// fields are optional; everything degrades to "unknown" at hashing time.
func Extract(h http.Header) domain.DeviceContext {
	return domain.DeviceContext{
		UserAgent:        h.Get("User-Agent"),
		ScreenResolution: h.Get(headerScreen),
		Timezone:         h.Get(headerTimezone),
		Language:         primaryLanguage(h.Get(headerAcceptLang)),
		Platform:         strings.Trim(h.Get(headerPlatform), `"`),
	}
}

// Fingerprint hashes the ordered signal tuple into a stable device identity
// and derives a human-readable label from the user agent.
func Fingerprint(dc domain.DeviceContext) domain.DeviceFingerprint {
	tuple := strings.Join([]string{
		orUnknown(dc.UserAgent),
		orUnknown(dc.ScreenResolution),
		orUnknown(dc.Timezone),
		orUnknown(dc.Language),
		orUnknown(dc.Platform),
	}, "|")

	sum := sha256.Sum256([]byte(tuple))

	return domain.DeviceFingerprint{
		Hash:             hex.EncodeToString(sum[:]),
		UserAgent:        dc.UserAgent,
		ScreenResolution: dc.ScreenResolution,
		Timezone:         dc.Timezone,
		Language:         dc.Language,
		Platform:         dc.Platform,
		DeviceName:       DeviceName(dc.UserAgent),
	}
}

// uaLabels is checked in order: mobile OS first, then desktop browsers, then
// bare OS. First match wins, so e.g. an Android Chrome UA labels as Android.
var uaLabels = []struct {
	needle string
	label  string
}{
	{"iphone", "iPhone"},
	{"ipad", "iPad"},
	{"android", "Android Device"},
	{"windows phone", "Windows Phone"},
	{"edg/", "Edge Browser"},
	{"firefox", "Firefox Browser"},
	{"chrome", "Chrome Browser"},
	{"safari", "Safari Browser"},
	{"windows", "Windows PC"},
	{"macintosh", "Mac"},
	{"mac os", "Mac"},
	{"linux", "Linux PC"},
}

// DeviceName maps a user agent onto a coarse human-readable label.
func DeviceName(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, m := range uaLabels {
		if strings.Contains(ua, m.needle) {
			return m.label
		}
	}
	return "Unknown Device"
}

// Validation warning identifiers. Each active warning bumps device risk.
const (
	WarnMissingUserAgent = "missing_user_agent"
	WarnShortUserAgent   = "short_user_agent"
	WarnMissingIP        = "missing_ip_address"
	WarnAutomationTool   = "automation_tool_detected"
)

var automationMarkers = []string{"bot", "headless", "selenium", "phantomjs"}

// Validate sanity-checks a device context. Warnings are signals for the risk
// engine, not errors; isValid is false only when warnings exist.
func Validate(dc domain.DeviceContext, ipAddress string) (bool, []string) {
	var warnings []string

	ua := strings.TrimSpace(dc.UserAgent)
	switch {
	case ua == "":
		warnings = append(warnings, WarnMissingUserAgent)
	case len(ua) < 10:
		warnings = append(warnings, WarnShortUserAgent)
	}

	if ipAddress == "" {
		warnings = append(warnings, WarnMissingIP)
	}

	lower := strings.ToLower(ua)
	for _, marker := range automationMarkers {
		if strings.Contains(lower, marker) {
			warnings = append(warnings, WarnAutomationTool)
			break
		}
	}

	return len(warnings) == 0, warnings
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

func primaryLanguage(acceptLanguage string) string {
	if acceptLanguage == "" {
		return ""
	}
	first := strings.Split(acceptLanguage, ",")[0]
	return strings.TrimSpace(strings.Split(first, ";")[0])
}
