package session

import (
	"errors"
	"sync"
	"time"
)

// Store errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already exists")
	ErrStaleSession     = errors.New("session changed concurrently")
	ErrParticipantBusy  = errors.New("participant already in a session")
)

// Store holds live sessions keyed by ID. All mutation flows through
// Mutate and Transition so concurrent handlers and timeout callbacks
// observe each other's changes.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create inserts a new session. The session starts at Version 1.
func (s *Store) Create(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrDuplicateSession
	}
	s.insert(sess)
	return nil
}

// CreateExclusive inserts a new session only when neither participant is
// already in one. The busy check and the insert happen under a single
// lock acquisition, so two racing creates involving the same user cannot
// both pass.
func (s *Store) CreateExclusive(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrDuplicateSession
	}
	for _, existing := range s.sessions {
		if existing.HasParticipant(sess.Initiator) || existing.HasParticipant(sess.Responder) {
			return ErrParticipantBusy
		}
	}
	s.insert(sess)
	return nil
}

func (s *Store) insert(sess *Session) {
	now := time.Now()
	stored := *sess
	stored.CreatedAt = now
	stored.LastActivityAt = now
	stored.Version = 1
	s.sessions[sess.ID] = &stored
}

// Get returns a snapshot of a session. Mutating the returned value does
// not affect the store.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// Mutate applies fn to the session under the store lock and bumps the
// version. If fn returns an error the session is left unchanged. fn must
// not block; it runs with the store locked.
func (s *Store) Mutate(id string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}

	candidate := *sess
	if err := fn(&candidate); err != nil {
		return *sess, err
	}
	candidate.Version = sess.Version + 1
	candidate.LastActivityAt = time.Now()
	s.sessions[id] = &candidate

	return candidate, nil
}

// Transition moves a session from one phase to another atomically. The
// compare half makes resolution race-safe: of two callers racing to move
// the same session out of a phase, exactly one succeeds and the other
// gets ErrStaleSession.
func (s *Store) Transition(id string, from, to Phase) (Session, error) {
	return s.Mutate(id, func(sess *Session) error {
		if sess.Phase != from {
			return ErrStaleSession
		}
		sess.Phase = to
		return nil
	})
}

// Delete removes a session. Deleting a missing session is not an error;
// timeout callbacks and explicit resolution may both try.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ByParticipant returns the first live session involving userID, if any.
// Used to reject a new challenge while the user is already engaged.
func (s *Store) ByParticipant(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.HasParticipant(userID) {
			return *sess, true
		}
	}
	return Session{}, false
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
