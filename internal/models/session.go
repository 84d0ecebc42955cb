package models

import "time"

// Session is an opaque authenticated handle to the remote system. Exactly one
// session is current at a time; superseded sessions are invalidated, never
// deleted, so logins stay auditable.
type Session struct {
	ID        string
	Cookie    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Valid     bool
}

// Expired reports whether the session should no longer be used. The margin
// shifts expiry client-side so an in-flight request never races server-side
// expiry.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	return !now.Before(s.ExpiresAt.Add(-margin))
}
