// internal/service/device/resolver.go
package device

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"sessiongate-service/internal/domain/device"

	"golang.org/x/crypto/blake2b"
)

// UnknownDeviceName is used when no signal is available at all.
const UnknownDeviceName = "Unknown Device"

// Fingerprint derives the soft device fingerprint from the ambient client
// signals. It hashes the sorted set {geometry, timezone, locale, platform}
// so the result is order independent. The user agent is left out on
// purpose: it changes with every browser update and would split one
// physical device into many records.
//
// The fingerprint only labels a device. False negatives (an OS update
// producing a new fingerprint) cost a duplicate record, nothing more.
func Fingerprint(sig device.Signals) string {
	parts := []string{
		fmt.Sprintf("geometry:%dx%dx%d", sig.ScreenWidth, sig.ScreenHeight, sig.ColorDepth),
		"timezone:" + sig.Timezone,
		"locale:" + sig.Locale,
		"platform:" + sig.Platform,
	}
	sort.Strings(parts)

	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// DisplayName derives a human label like "Mobile - Chrome" from the user
// agent. It never fails; with no signals at all it falls back to a
// constant label.
func DisplayName(sig device.Signals) string {
	if emptySignals(sig) {
		return UnknownDeviceName
	}
	return deviceClass(sig.UserAgent) + " - " + browserFamily(sig.UserAgent)
}

// Resolve returns the (fingerprint, display name) pair for one login.
func Resolve(sig device.Signals) (string, string) {
	return Fingerprint(sig), DisplayName(sig)
}

func browserFamily(userAgent string) string {
	// Order matters: every Edge UA also says Chrome, and every Chrome UA
	// also says Safari.
	switch {
	case strings.Contains(userAgent, "Edg"):
		return "Edge"
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome"
	case strings.Contains(userAgent, "Safari"):
		return "Safari"
	default:
		return "Unknown"
	}
}

func deviceClass(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "iPad") || strings.Contains(userAgent, "Tablet"):
		return "Tablet"
	case strings.Contains(userAgent, "Mobi") || strings.Contains(userAgent, "Android"):
		return "Mobile"
	default:
		return "Desktop"
	}
}

func emptySignals(sig device.Signals) bool {
	return sig.ScreenWidth == 0 && sig.ScreenHeight == 0 && sig.ColorDepth == 0 &&
		sig.Timezone == "" && sig.Locale == "" && sig.Platform == "" && sig.UserAgent == ""
}
