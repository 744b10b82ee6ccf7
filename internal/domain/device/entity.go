// internal/domain/device/entity.go
package device

import "time"

// Device is one environment a user has logged in from. Records are created
// on first sighting and updated forever after; they are never deleted.
type Device struct {
	ID          string    `json:"device_id" db:"device_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	DisplayName string    `json:"display_name" db:"display_name"`
	IsPrimary   bool      `json:"is_primary" db:"is_primary"`
	LastSeenAt  time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Signals are the ambient client environment values collected at login.
// They are low entropy on purpose: the fingerprint labels a device for the
// user's own awareness and is never an access-control input.
type Signals struct {
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	ColorDepth   int    `json:"color_depth"`
	Timezone     string `json:"timezone"` // IANA name, e.g. Europe/Berlin
	Locale       string `json:"locale"`
	Platform     string `json:"platform"`
	UserAgent    string `json:"user_agent"`
}
