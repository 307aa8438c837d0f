package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"ponybot/internal/repository"
	"ponybot/internal/session"
)

// Trade errors.
var (
	ErrSelfTrade        = errors.New("cannot trade with yourself")
	ErrInvalidTrade     = errors.New("trade quantities must be positive")
	ErrTradePending     = errors.New("user already has a trade in progress")
	ErrNotTradeParty    = errors.New("not a party to this trade")
	ErrNotTradeTarget   = errors.New("only the offered user may respond")
	ErrNotTradeOfferer  = errors.New("only the offerer may withdraw")
	ErrOfferNotCovered  = errors.New("offered cards are no longer held")
	ErrWantedNotCovered = errors.New("wanted cards are no longer held")
)

// TradeOffer is the proposed card swap: the offerer gives GiveQty copies
// of GiveCardID for WantQty copies of WantCardID.
type TradeOffer struct {
	GiveCardID int64
	GiveQty    int
	WantCardID int64
	WantQty    int
}

// TradeNotifier is told about offers that expire unanswered.
type TradeNotifier interface {
	TradeExpired(sess session.Session) error
}

// CardStore is the holdings surface trades need. Implemented by
// repository.CardRepository.
type CardStore interface {
	AddCards(ctx context.Context, userID, cardID int64, quantity int) error
	RemoveCards(ctx context.Context, userID, cardID int64, quantity int) error
	GetQuantity(ctx context.Context, userID, cardID int64) (int, error)
}

// TradeService runs card trades over the session machinery: an offer
// waits in the challenge phase for the other user to accept, decline or
// let it lapse. Accepting wins the phase transition, so an offer executes
// at most once no matter how responses race.
type TradeService struct {
	cardRepo CardStore
	store    *session.Store
	sched    *session.Scheduler
	timeout  time.Duration
	notifier TradeNotifier
}

// NewTradeService creates a TradeService.
func NewTradeService(cardRepo CardStore, timeout time.Duration) *TradeService {
	return &TradeService{
		cardRepo: cardRepo,
		store:    session.NewStore(),
		sched:    session.NewScheduler(),
		timeout:  timeout,
	}
}

// SetNotifier installs the expiry notifier. Must be called before any
// offer can expire.
func (s *TradeService) SetNotifier(n TradeNotifier) {
	s.notifier = n
}

// Stop cancels all pending offer timeouts. Used at shutdown.
func (s *TradeService) Stop() {
	s.sched.Stop()
}

// Get returns a snapshot of a live trade.
func (s *TradeService) Get(id string) (session.Session, error) {
	return s.store.Get(id)
}

// Offer opens a trade from one user to another. Holdings are checked up
// front but not reserved; the conditional removal at execution is what
// keeps them honest.
func (s *TradeService) Offer(ctx context.Context, fromID, toID int64, offer TradeOffer) (session.Session, error) {
	if fromID == toID {
		return session.Session{}, ErrSelfTrade
	}
	if offer.GiveQty <= 0 || offer.WantQty <= 0 {
		return session.Session{}, ErrInvalidTrade
	}

	held, err := s.cardRepo.GetQuantity(ctx, fromID, offer.GiveCardID)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to check holdings: %w", err)
	}
	if held < offer.GiveQty {
		return session.Session{}, ErrOfferNotCovered
	}

	sess := &session.Session{
		ID:        session.NewID(fromID, toID),
		Game:      "trade",
		Initiator: fromID,
		Responder: toID,
		Phase:     session.PhaseChallenge,
		Payload:   &offer,
	}
	if err := s.store.CreateExclusive(sess); err != nil {
		if errors.Is(err, session.ErrParticipantBusy) {
			return session.Session{}, ErrTradePending
		}
		return session.Session{}, err
	}

	id := sess.ID
	s.sched.Arm(id, s.timeout, func() { s.expire(id) })

	log.Info().
		Str("trade_id", id).
		Int64("from", fromID).
		Int64("to", toID).
		Msg("Trade offered")

	return s.store.Get(id)
}

// Accept executes the swap for the offered user.
func (s *TradeService) Accept(ctx context.Context, tradeID string, userID int64) (*TradeOffer, error) {
	sess, err := s.store.Get(tradeID)
	if err != nil {
		return nil, err
	}
	if !sess.HasParticipant(userID) {
		return nil, ErrNotTradeParty
	}
	if userID != sess.Responder {
		return nil, ErrNotTradeTarget
	}

	resolved, err := s.store.Transition(tradeID, session.PhaseChallenge, session.PhaseResolved)
	if err != nil {
		return nil, err
	}
	s.sched.Cancel(tradeID)
	defer s.store.Delete(tradeID)

	offer := resolved.Payload.(*TradeOffer)
	if err := s.execute(ctx, resolved.Initiator, resolved.Responder, offer); err != nil {
		return nil, err
	}

	log.Info().
		Str("trade_id", tradeID).
		Int64("from", resolved.Initiator).
		Int64("to", resolved.Responder).
		Msg("Trade executed")

	return offer, nil
}

// execute swaps the cards with conditional removals. Either removal can
// fail if holdings changed since the offer; the first is rolled back when
// the second does.
func (s *TradeService) execute(ctx context.Context, fromID, toID int64, offer *TradeOffer) error {
	if err := s.cardRepo.RemoveCards(ctx, fromID, offer.GiveCardID, offer.GiveQty); err != nil {
		if errors.Is(err, repository.ErrInsufficientCards) {
			return ErrOfferNotCovered
		}
		return fmt.Errorf("failed to take offered cards: %w", err)
	}

	if err := s.cardRepo.RemoveCards(ctx, toID, offer.WantCardID, offer.WantQty); err != nil {
		if rbErr := s.cardRepo.AddCards(ctx, fromID, offer.GiveCardID, offer.GiveQty); rbErr != nil {
			log.Error().Err(rbErr).Int64("user_id", fromID).Msg("Failed to roll back trade removal")
		}
		if errors.Is(err, repository.ErrInsufficientCards) {
			return ErrWantedNotCovered
		}
		return fmt.Errorf("failed to take wanted cards: %w", err)
	}

	if err := s.cardRepo.AddCards(ctx, toID, offer.GiveCardID, offer.GiveQty); err != nil {
		log.Error().Err(err).Int64("user_id", toID).Msg("Failed to grant traded cards")
	}
	if err := s.cardRepo.AddCards(ctx, fromID, offer.WantCardID, offer.WantQty); err != nil {
		log.Error().Err(err).Int64("user_id", fromID).Msg("Failed to grant traded cards")
	}

	return nil
}

// Decline refuses an offer.
func (s *TradeService) Decline(ctx context.Context, tradeID string, userID int64) error {
	return s.close(tradeID, userID, session.PhaseDeclined)
}

// Cancel withdraws an unanswered offer.
func (s *TradeService) Cancel(ctx context.Context, tradeID string, userID int64) error {
	return s.close(tradeID, userID, session.PhaseCancelled)
}

func (s *TradeService) close(tradeID string, userID int64, to session.Phase) error {
	sess, err := s.store.Get(tradeID)
	if err != nil {
		return err
	}
	if !sess.HasParticipant(userID) {
		return ErrNotTradeParty
	}
	if to == session.PhaseDeclined && userID != sess.Responder {
		return ErrNotTradeTarget
	}
	if to == session.PhaseCancelled && userID != sess.Initiator {
		return ErrNotTradeOfferer
	}

	if _, err := s.store.Transition(tradeID, session.PhaseChallenge, to); err != nil {
		return err
	}
	s.sched.Cancel(tradeID)
	s.store.Delete(tradeID)
	return nil
}

func (s *TradeService) expire(tradeID string) {
	updated, err := s.store.Mutate(tradeID, func(sess *session.Session) error {
		if sess.Phase.Terminal() {
			return session.ErrStaleSession
		}
		sess.Phase = session.PhaseExpired
		return nil
	})
	if err != nil {
		return
	}
	s.store.Delete(tradeID)

	log.Info().Str("trade_id", tradeID).Msg("Trade offer expired")

	if s.notifier != nil {
		if err := s.notifier.TradeExpired(updated); err != nil {
			log.Warn().Err(err).Str("trade_id", tradeID).Msg("Failed to notify trade expiry")
		}
	}
}
