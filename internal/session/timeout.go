package session

import (
	"sync"
	"time"
)

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler arms at most one pending timeout per session. Re-arming
// replaces the previous timeout, and a fired or cancelled timeout never
// runs its callback: arming bumps a generation counter and the callback
// checks it still owns the entry before firing.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*timerEntry
	gen    uint64
}

// NewScheduler creates an empty timeout scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*timerEntry)}
}

// Arm schedules onExpire to run after d, replacing any pending timeout
// for the same session.
func (s *Scheduler) Arm(sessionID string, d time.Duration, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[sessionID]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	entry := &timerEntry{gen: gen}
	entry.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.timers[sessionID]
		if !ok || cur.gen != gen {
			// Cancelled or re-armed after this timer fired but before it
			// took the lock.
			s.mu.Unlock()
			return
		}
		delete(s.timers, sessionID)
		s.mu.Unlock()

		onExpire()
	})
	s.timers[sessionID] = entry
}

// Cancel drops any pending timeout for a session. Cancelling a session
// with no pending timeout is a no-op.
func (s *Scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[sessionID]; ok {
		entry.timer.Stop()
		delete(s.timers, sessionID)
	}
}

// Stop cancels all pending timeouts. Used at shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}
