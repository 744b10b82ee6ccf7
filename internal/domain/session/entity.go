// internal/domain/session/entity.go
package session

import (
	"database/sql"
	"time"
)

// EndReason explains why a session left the active state.
type EndReason string

const (
	EndReasonNewLogin EndReason = "new_login" // displaced by a newer login
	EndReasonLogout   EndReason = "logout"    // explicit sign-out
	EndReasonClosed   EndReason = "closed"    // best-effort shutdown beacon
)

// Valid reports whether r is one of the known terminal reasons.
func (r EndReason) Valid() bool {
	switch r {
	case EndReasonNewLogin, EndReasonLogout, EndReasonClosed:
		return true
	}
	return false
}

// Session represents one login instance. A session transitions
// active -> inactive exactly once and is never reactivated.
type Session struct {
	Token       string         `json:"session_token" db:"session_token"`
	UserID      int64          `json:"user_id" db:"user_id"`
	DeviceID    sql.NullString `json:"device_id" db:"device_id"`
	IsActive    bool           `json:"is_active" db:"is_active"`
	StartedAt   time.Time      `json:"started_at" db:"started_at"`
	EndedAt     sql.NullTime   `json:"ended_at" db:"ended_at"`
	EndedReason sql.NullString `json:"ended_reason" db:"ended_reason"`
}

// Status is the point-read result consumed by the liveness poller.
type Status struct {
	IsActive    bool      `json:"is_active"`
	EndedReason EndReason `json:"ended_reason,omitempty"`
}
