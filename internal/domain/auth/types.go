package auth

// Package auth contains domain-level types for the client's authenticated session.
// It is pure and free of transport and storage concerns.

import (
	"fmt"
	"strings"
	"time"
)

// OTPPurpose scopes a one-time code and the proof issued for it.
type OTPPurpose string

const (
	OTPPurposeRegister OTPPurpose = "register"
	OTPPurposeResetPIN OTPPurpose = "reset_pin"
)

// Valid reports whether p is a purpose the backend understands.
func (p OTPPurpose) Valid() bool {
	return p == OTPPurposeRegister || p == OTPPurposeResetPIN
}

// Identity is the authenticated agent record as returned by the backend.
// Field ownership stays with the backend; the client only reads a few well-known keys.
type Identity map[string]any

// ID returns the identity's "id" field rendered as a string.
func (i Identity) ID() string {
	return i.String("id")
}

// String returns the named field as a string, or "" when absent.
func (i Identity) String(key string) string {
	v, ok := i[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}

// DisplayName joins first and last name, falling back to the phone number.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(i.String("first_name") + " " + i.String("last_name"))
	if name != "" {
		return name
	}
	return i.String("phone")
}

// DeviceInfo is device metadata sent alongside device-bound requests.
// It is computed on every use and never persisted.
type DeviceInfo struct {
	Model     string `json:"model"`
	OSVersion string `json:"os_version"`
}

// Session is the client's durable record of being logged in.
// ExpiresAt is advisory: expiry is only discovered through a rejected request.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"agent,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// IsAuthenticated returns true when a token is present. Expiry is not checked.
func (s Session) IsAuthenticated() bool { return s.Token != "" }
