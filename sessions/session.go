// Package sessions owns all durable protocol state for the broker: the
// session table driving each authorization attempt and the fixed-window
// rate-limit counters. Every request may run in its own process, so all
// coordination happens through the database, never in memory.
package sessions

import (
	"database/sql"
	"time"
)

// Session is one authorization attempt, from start until the result is
// polled (or the TTL reaps it).
type Session struct {
	ID           string
	Provider     string
	State        string
	CodeVerifier sql.NullString
	RealmID      sql.NullString
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ReadyAt      sql.NullTime
	Result       []byte
	Consumed     bool
}

// Expired reports whether the session's hard TTL has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Ready reports whether a token exchange has completed for this session.
func (s *Session) Ready() bool {
	return s.ReadyAt.Valid && len(s.Result) > 0
}
