package model

import (
	"strconv"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// PasswordKey maps a role to its app_config password row.
func (r Role) PasswordKey() string {
	if r == RoleAdmin {
		return ConfigAdminPassword
	}
	return ConfigUserPassword
}

// LogoutMarker is the logical clock for session revocation. The zero marker revokes nothing.
type LogoutMarker struct {
	At time.Time `json:"at"`
}

// Revokes reports whether a session issued at issuedAt predates the marker.
func (m LogoutMarker) Revokes(issuedAt time.Time) bool {
	if m.At.IsZero() {
		return false
	}
	return m.At.After(issuedAt)
}

// After reports whether m is strictly newer than other.
func (m LogoutMarker) After(other LogoutMarker) bool {
	return m.At.After(other.At)
}

// Encode renders the marker as the app_config value (unix milliseconds).
func (m LogoutMarker) Encode() string {
	return strconv.FormatInt(m.At.UnixMilli(), 10)
}

// ParseLogoutMarker decodes an app_config value. Unix milliseconds and RFC3339 are accepted.
func ParseLogoutMarker(value string) (LogoutMarker, error) {
	if value == "" {
		return LogoutMarker{}, nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return LogoutMarker{At: time.UnixMilli(ms)}, nil
	}
	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return LogoutMarker{}, err
	}
	return LogoutMarker{At: at}, nil
}
