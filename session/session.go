// Package session provides the in-memory implementation of the proc.Session
// contract (a monotonic wall clock), plus the two fields the real session
// carries but the processor core never touches: a database handle slot and
// an is-server flag (grounded on the original's ccnet-session-manager,
// which every proc implementation receives but only a handful consult).
package session

import "time"

// Session is the demo binary's session: real wall-clock time, plus
// placeholders for the database handle and server-mode flag that service
// processors outside the core (group manager, message relay) would consult.
type Session struct {
	IsServer bool
	// DB is left untyped on purpose: the core never touches it, and binding
	// it to a concrete driver is a decision for whatever outer service
	// wires a database in.
	DB interface{}
}

// New builds a Session in the given server/client role.
func New(isServer bool) *Session {
	return &Session{IsServer: isServer}
}

// Now reports the current wall-clock time. The factory's keepalive sweep
// calls this, never time.Now() directly, so tests can substitute a virtual
// clock (see proc.Session).
func (s *Session) Now() time.Time { return time.Now() }
