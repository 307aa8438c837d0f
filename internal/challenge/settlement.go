package challenge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"ponybot/internal/game"
	"ponybot/internal/model"
	"ponybot/internal/session"
)

// Result is one settled session. Amount is what actually moved; when the
// loser's balance no longer covered the full Requested amount, Amount is
// smaller and Partial is set.
type Result struct {
	Tie       bool
	Winner    int64
	Loser     int64
	Requested int64
	Amount    int64
	Partial   bool

	WinnerBalance int64
	LoserBalance  int64
}

// settle moves the decided amount from loser to winner. Callers must
// have already won the phase transition into a terminal phase, so each
// session settles exactly once.
//
// The debit takes up to the requested amount: the outcome stands even if
// the loser's balance shrank while the game ran, and whatever remains is
// transferred. A tie or a zero stake moves nothing.
func (p *Protocol) settle(ctx context.Context, sess session.Session, outcome *game.Outcome) (*Result, error) {
	requested := sess.Stake
	if outcome.Amount > 0 {
		requested = outcome.Amount
	}

	if outcome.Tie || requested <= 0 {
		return &Result{Tie: outcome.Tie, Winner: outcome.Winner, Loser: outcome.Loser}, nil
	}

	desc := fmt.Sprintf("%s session %s", sess.Game, sess.ID)

	taken, loserBalance, err := p.ledger.DebitUpTo(ctx, outcome.Loser, requested, model.TxTypeChallengeLoss, &desc)
	if err != nil {
		return nil, fmt.Errorf("failed to debit loser: %w", err)
	}

	winnerBalance, err := p.ledger.Balance(ctx, outcome.Winner)
	if err == nil && taken > 0 {
		winnerBalance, err = p.ledger.Credit(ctx, outcome.Winner, taken, model.TxTypeChallengeWin, &desc)
	}
	if err != nil {
		// The debit landed but the credit did not. Surface it loudly; this
		// needs an operator, not a retry that could double-pay.
		log.Error().Err(err).
			Str("session_id", sess.ID).
			Int64("winner", outcome.Winner).
			Int64("amount", taken).
			Msg("Settlement credit failed after debit")
		return nil, fmt.Errorf("failed to credit winner: %w", err)
	}

	result := &Result{
		Winner:        outcome.Winner,
		Loser:         outcome.Loser,
		Requested:     requested,
		Amount:        taken,
		Partial:       taken < requested,
		WinnerBalance: winnerBalance,
		LoserBalance:  loserBalance,
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("game", sess.Game).
		Int64("winner", result.Winner).
		Int64("loser", result.Loser).
		Int64("amount", result.Amount).
		Bool("partial", result.Partial).
		Msg("Session settled")

	return result, nil
}
