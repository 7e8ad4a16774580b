package risk

import (
	"net"
	"strings"
)

// majorCities is the endpoint set for the impossible-travel heuristic: two
// differing entries from this list inside the travel window cannot plausibly
// be the same traveller. Locations arrive as free text without coordinates,
// so there is no distance to compute.
var majorCities = map[string]struct{}{
	"tokyo":       {},
	"new york":    {},
	"london":      {},
	"paris":       {},
	"berlin":      {},
	"sydney":      {},
	"melbourne":   {},
	"singapore":   {},
	"hong kong":   {},
	"los angeles": {},
	"chicago":     {},
	"toronto":     {},
	"dubai":       {},
	"moscow":      {},
	"mumbai":      {},
	"sao paulo":   {},
}

// impossibleTravel reports whether both locations name distinct major
// cities.
func impossibleTravel(a, b string) bool {
	ca, cb := cityOf(a), cityOf(b)
	if ca == cb {
		return false
	}
	_, okA := majorCities[ca]
	_, okB := majorCities[cb]
	return okA && okB
}

// cityOf normalises "City, CC" style locations down to the city part.
func cityOf(location string) string {
	city := strings.Split(location, ",")[0]
	return strings.ToLower(strings.TrimSpace(city))
}

// countryCodeIn matches the trailing country code of a "City, CC" location
// against a configured set. Locations without a code never match.
func countryCodeIn(location string, countries []string) bool {
	parts := strings.Split(location, ",")
	if len(parts) < 2 {
		return false
	}
	code := strings.ToUpper(strings.TrimSpace(parts[len(parts)-1]))
	if len(code) != 2 {
		return false
	}
	for _, c := range countries {
		if strings.ToUpper(strings.TrimSpace(c)) == code {
			return true
		}
	}
	return false
}

// isPrivateAddress reports loopback or RFC1918 source addresses, which are
// suspicious when they show up as the origin of external traffic.
func isPrivateAddress(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate()
}

// ipRange reduces an address to its /24-equivalent prefix for coarse
// comparison. Non-parseable addresses compare as themselves.
func ipRange(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String()
}
