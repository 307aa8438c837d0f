// Package session provides the in-memory registry for two-party game and
// trade sessions: the session model, a keyed store with phase-guarded
// mutation, and a per-session inactivity timeout scheduler.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle state of a session.
type Phase string

// Session phases. The last four are terminal: a session in a terminal
// phase is removed from the store and any pending settlement has already
// been decided.
const (
	PhaseChallenge Phase = "challenge"
	PhaseActive    Phase = "active"
	PhaseResolved  Phase = "resolved"
	PhaseExpired   Phase = "expired"
	PhaseDeclined  Phase = "declined"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseResolved, PhaseExpired, PhaseDeclined, PhaseCancelled:
		return true
	}
	return false
}

// Session is the unit of ephemeral shared state for one two-party
// interaction. Payload is game-specific and opaque to the engine.
type Session struct {
	ID        string
	Game      string
	Initiator int64
	Responder int64
	Phase     Phase
	Stake     int64
	Payload   any

	CreatedAt      time.Time
	LastActivityAt time.Time

	// Version increments on every mutation; stale writers detect it changed.
	Version uint64
}

// NewID derives a session identifier from the participant pair. The random
// suffix keeps concurrent challenges between the same pair from colliding.
func NewID(initiator, responder int64) string {
	return fmt.Sprintf("%d:%d:%s", initiator, responder, uuid.NewString()[:8])
}

// HasParticipant reports whether userID is one of the two parties.
func (s *Session) HasParticipant(userID int64) bool {
	return userID == s.Initiator || userID == s.Responder
}

// Opponent returns the other party's ID. Callers must have already
// verified userID is a participant.
func (s *Session) Opponent(userID int64) int64 {
	if userID == s.Initiator {
		return s.Responder
	}
	return s.Initiator
}
