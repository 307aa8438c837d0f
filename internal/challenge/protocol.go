// Package challenge implements the two-party challenge lifecycle:
// create, accept or decline, play moves, and settle. All phase changes
// go through the session store's locked mutation, so of any two racing
// operations exactly one decides the session and the other observes a
// stale-session error. Settlement only ever runs after winning the
// transition into a terminal phase, which makes it exactly-once.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ponybot/internal/game"
	"ponybot/internal/ledger"
	"ponybot/internal/session"
)

// Notifier is told about sessions that expire in the background. Errors
// are logged and swallowed; expiry proceeds regardless.
type Notifier interface {
	SessionExpired(sess session.Session) error
}

// Config holds the protocol's timing and stake limits.
type Config struct {
	// ChallengeTimeout bounds how long a challenge waits for a response.
	ChallengeTimeout time.Duration
	// MoveTimeout bounds inactivity inside an active game; it re-arms on
	// every move.
	MoveTimeout time.Duration
	// MaxStake caps the stake per session. Zero means no cap.
	MaxStake int64
}

// Protocol drives challenge sessions end to end.
type Protocol struct {
	registry *game.Registry
	ledger   *ledger.Ledger
	store    *session.Store
	sched    *session.Scheduler
	cfg      Config
	notifier Notifier

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a Protocol with its own session store and scheduler. rng
// is the single source of chance for instant games; tests seed it.
func New(registry *game.Registry, led *ledger.Ledger, cfg Config, rng *rand.Rand) *Protocol {
	return &Protocol{
		registry: registry,
		ledger:   led,
		store:    session.NewStore(),
		sched:    session.NewScheduler(),
		cfg:      cfg,
		rng:      rng,
	}
}

// SetNotifier installs the expiry notifier. Must be called before any
// session can expire.
func (p *Protocol) SetNotifier(n Notifier) {
	p.notifier = n
}

// Session returns a snapshot of a live session.
func (p *Protocol) Session(id string) (session.Session, error) {
	return p.store.Get(id)
}

// Rules returns the registered rules for a game command.
func (p *Protocol) Rules(command string) (game.Rules, bool) {
	return p.registry.Get(command)
}

// Stop cancels all pending timeouts. Used at shutdown.
func (p *Protocol) Stop() {
	p.sched.Stop()
}

// Create opens a challenge from initiator to responder. The stake is
// validated against both balances but not reserved; the conditional
// debit at settlement is what keeps balances non-negative.
func (p *Protocol) Create(ctx context.Context, command string, initiator, responder int64, stake int64, params map[string]any) (session.Session, error) {
	rules, ok := p.registry.Get(command)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", ErrUnknownGame, command)
	}
	if initiator == responder {
		return session.Session{}, ErrSelfChallenge
	}
	if stake < 0 {
		return session.Session{}, ErrInvalidStake
	}
	if p.cfg.MaxStake > 0 && stake > p.cfg.MaxStake {
		return session.Session{}, fmt.Errorf("%w: max stake is %d", ErrStakeTooHigh, p.cfg.MaxStake)
	}
	if err := rules.ValidateParams(params); err != nil {
		return session.Session{}, err
	}

	for _, userID := range []int64{initiator, responder} {
		balance, err := p.ledger.Balance(ctx, userID)
		if err != nil {
			return session.Session{}, fmt.Errorf("failed to check balance of %d: %w", userID, err)
		}
		if balance < stake {
			return session.Session{}, ledger.ErrInsufficientFunds
		}
	}

	if params == nil {
		params = make(map[string]any)
	}
	sess := &session.Session{
		ID:        session.NewID(initiator, responder),
		Game:      command,
		Initiator: initiator,
		Responder: responder,
		Phase:     session.PhaseChallenge,
		Stake:     stake,
		Payload:   params,
	}
	if err := p.store.CreateExclusive(sess); err != nil {
		if errors.Is(err, session.ErrParticipantBusy) {
			return session.Session{}, ErrPendingSession
		}
		return session.Session{}, err
	}

	created, err := p.store.Get(sess.ID)
	if err != nil {
		return session.Session{}, err
	}

	id := created.ID
	version := created.Version
	p.sched.Arm(id, p.cfg.ChallengeTimeout, func() { p.expire(id, version) })

	log.Info().
		Str("session_id", id).
		Str("game", command).
		Int64("initiator", initiator).
		Int64("responder", responder).
		Int64("stake", stake).
		Msg("Challenge created")

	return created, nil
}

// Accept lets the challenged user take the challenge. Instant games
// resolve and settle immediately; turn-based games go active and wait
// for moves. A second accept, or an accept racing the expiry, gets
// session.ErrStaleSession.
func (p *Protocol) Accept(ctx context.Context, sessionID string, userID int64) (session.Session, *Result, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return session.Session{}, nil, err
	}
	if !sess.HasParticipant(userID) {
		return session.Session{}, nil, ErrUnauthorized
	}
	if userID != sess.Responder {
		return session.Session{}, nil, ErrNotResponder
	}

	rules, ok := p.registry.Get(sess.Game)
	if !ok {
		return session.Session{}, nil, fmt.Errorf("%w: %s", ErrUnknownGame, sess.Game)
	}

	balance, err := p.ledger.Balance(ctx, userID)
	if err != nil {
		return session.Session{}, nil, fmt.Errorf("failed to check balance: %w", err)
	}
	if balance < sess.Stake {
		return session.Session{}, nil, ledger.ErrInsufficientFunds
	}

	// Draw the resolving move up front for instant games so the store
	// mutation stays pure.
	var resolving *game.Move
	if instant, isInstant := rules.(game.Instant); isInstant {
		p.rngMu.Lock()
		move := instant.RandomMove(nil, p.rng)
		p.rngMu.Unlock()
		resolving = &move
	}

	var outcome *game.Outcome
	updated, err := p.store.Mutate(sessionID, func(s *session.Session) error {
		if s.Phase != session.PhaseChallenge {
			return session.ErrStaleSession
		}

		params, _ := s.Payload.(map[string]any)
		if params == nil {
			params = make(map[string]any)
		}
		params["stake"] = s.Stake

		payload, err := rules.InitialPayload(s.Initiator, s.Responder, params)
		if err != nil {
			return err
		}

		if resolving == nil {
			s.Phase = session.PhaseActive
			s.Payload = payload
			return nil
		}

		next, out, err := rules.Apply(payload, *resolving)
		if err != nil {
			return err
		}
		s.Phase = session.PhaseResolved
		s.Payload = next
		outcome = out
		return nil
	})
	if err != nil {
		return session.Session{}, nil, err
	}

	p.sched.Cancel(sessionID)

	if outcome == nil {
		id := sessionID
		version := updated.Version
		p.sched.Arm(id, p.cfg.MoveTimeout, func() { p.expire(id, version) })
		log.Info().Str("session_id", sessionID).Str("game", sess.Game).Msg("Challenge accepted")
		return updated, nil, nil
	}

	result, err := p.settle(ctx, updated, outcome)
	p.store.Delete(sessionID)
	if err != nil {
		return updated, nil, err
	}
	return updated, result, nil
}

// Decline lets the challenged user refuse. Nothing is transferred.
func (p *Protocol) Decline(ctx context.Context, sessionID string, userID int64) (session.Session, error) {
	return p.close(sessionID, userID, session.PhaseDeclined)
}

// Cancel lets the challenger withdraw an unanswered challenge.
func (p *Protocol) Cancel(ctx context.Context, sessionID string, userID int64) (session.Session, error) {
	return p.close(sessionID, userID, session.PhaseCancelled)
}

// close ends a still-pending challenge in a terminal phase with no
// transfer.
func (p *Protocol) close(sessionID string, userID int64, to session.Phase) (session.Session, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return session.Session{}, err
	}
	if !sess.HasParticipant(userID) {
		return session.Session{}, ErrUnauthorized
	}
	if to == session.PhaseDeclined && userID != sess.Responder {
		return session.Session{}, ErrNotResponder
	}
	if to == session.PhaseCancelled && userID != sess.Initiator {
		return session.Session{}, ErrNotInitiator
	}

	updated, err := p.store.Transition(sessionID, session.PhaseChallenge, to)
	if err != nil {
		return session.Session{}, err
	}

	p.sched.Cancel(sessionID)
	p.store.Delete(sessionID)

	log.Info().Str("session_id", sessionID).Str("phase", string(to)).Msg("Challenge closed")
	return updated, nil
}

// Move plays one move in an active session. When the move finishes the
// game the session settles and is removed; otherwise the inactivity
// timeout re-arms.
func (p *Protocol) Move(ctx context.Context, sessionID string, userID int64, move game.Move) (session.Session, *Result, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return session.Session{}, nil, err
	}

	rules, ok := p.registry.Get(sess.Game)
	if !ok {
		return session.Session{}, nil, fmt.Errorf("%w: %s", ErrUnknownGame, sess.Game)
	}

	move.Actor = userID

	var outcome *game.Outcome
	updated, err := p.store.Mutate(sessionID, func(s *session.Session) error {
		if !s.HasParticipant(userID) {
			return ErrUnauthorized
		}
		if s.Phase != session.PhaseActive {
			return ErrNotActive
		}

		if tb, ok := rules.(game.TurnBased); ok {
			turn, err := tb.Turn(s.Payload)
			if err != nil {
				return err
			}
			if turn != userID {
				return game.ErrNotYourTurn
			}
		}

		next, out, err := rules.Apply(s.Payload, move)
		if err != nil {
			return err
		}
		s.Payload = next
		if out != nil {
			s.Phase = session.PhaseResolved
		}
		outcome = out
		return nil
	})
	if err != nil {
		return session.Session{}, nil, err
	}

	if outcome == nil {
		id := sessionID
		version := updated.Version
		p.sched.Arm(id, p.cfg.MoveTimeout, func() { p.expire(id, version) })
		return updated, nil, nil
	}

	p.sched.Cancel(sessionID)
	result, err := p.settle(ctx, updated, outcome)
	p.store.Delete(sessionID)
	if err != nil {
		return updated, nil, err
	}
	return updated, result, nil
}

// expire is the timeout callback. An unanswered challenge and an
// abandoned active game both end with no transfer; whoever is still
// around hears about it through the notifier. The callback only fires
// on the exact session version it was armed for, so a timer that lost
// the race against an accept or a move cannot end the fresh state the
// winner just produced.
func (p *Protocol) expire(sessionID string, version uint64) {
	updated, err := p.store.Mutate(sessionID, func(s *session.Session) error {
		if s.Version != version || s.Phase.Terminal() {
			return session.ErrStaleSession
		}
		s.Phase = session.PhaseExpired
		return nil
	})
	if err != nil {
		// Already resolved or removed.
		return
	}

	p.store.Delete(sessionID)

	log.Info().
		Str("session_id", sessionID).
		Str("game", updated.Game).
		Msg("Session expired")

	if p.notifier != nil {
		if err := p.notifier.SessionExpired(updated); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to notify session expiry")
		}
	}
}
