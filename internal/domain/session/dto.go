// internal/domain/session/dto.go
package session

import "sessiongate-service/internal/domain/device"

// CreateRequest is the login-time payload. The client ships its raw
// environment signals; the server derives the fingerprint from them.
type CreateRequest struct {
	Signals device.Signals `json:"signals"`
}

// Notice is an informational message for the user. The server only picks
// the key and severity; rendering belongs to the notification surface.
type Notice struct {
	Severity string `json:"severity"` // info, warning
	Key      string `json:"key"`
	Message  string `json:"message"`
}

// LoginResult is returned from session establishment.
type LoginResult struct {
	SessionToken    string   `json:"session_token"`
	DeviceID        string   `json:"device_id,omitempty"`
	DeviceName      string   `json:"device_name,omitempty"`
	IsNewDevice     bool     `json:"is_new_device"`
	IsPrimaryDevice bool     `json:"is_primary_device"`
	Notices         []Notice `json:"notices,omitempty"`
}

// EndRequest carries the reason for an explicit session termination.
type EndRequest struct {
	Reason EndReason `json:"reason"`
}
