// Package dice implements the over/under dice duel on a 1-100 roll.
//
// The challenger picks a side and a threshold: "over t" wins when the
// roll is strictly above t, "under t" wins when it is strictly below.
// The responder holds the opposite side. The challenger's win pays at
// odds (the rarer the side, the bigger the payout) minus a 5% house cut;
// the responder's win takes the plain stake.
package dice

import (
	"fmt"
	"math/rand"

	"ponybot/internal/game"
)

// Bet sides.
const (
	SideOver  = "over"
	SideUnder = "under"
)

// House edge applied to odds payouts, in percent.
const houseEdgePercent = 5

// Win chance must stay inside this band so neither side bets on a
// near-certainty.
const (
	MinWinChance = 5
	MaxWinChance = 95
)

// Payload is the dice duel state.
type Payload struct {
	Initiator int64
	Responder int64
	Side      string
	Threshold int
	Stake     int64
}

// Rules implements game.Instant for the dice duel.
type Rules struct{}

// New creates the dice rules.
func New() *Rules {
	return &Rules{}
}

func (r *Rules) Name() string        { return "Dice" }
func (r *Rules) Command() string     { return "dice" }
func (r *Rules) Description() string { return "Bet over or under a threshold on a 1-100 roll" }

// WinChance returns the challenger's win probability in percent for a
// side and threshold, or an error when the combination falls outside the
// allowed band.
func WinChance(side string, threshold int) (int, error) {
	var chance int
	switch side {
	case SideOver:
		chance = 100 - threshold
	case SideUnder:
		chance = threshold - 1
	default:
		return 0, fmt.Errorf("%w: side must be %q or %q", game.ErrInvalidParams, SideOver, SideUnder)
	}

	if chance < MinWinChance || chance > MaxWinChance {
		return 0, fmt.Errorf("%w: win chance %d%% outside %d-%d%%", game.ErrInvalidParams, chance, MinWinChance, MaxWinChance)
	}
	return chance, nil
}

// Payout returns the challenger's winnings for a stake at the given win
// chance: stake at fair odds, minus the house cut, rounded down.
func Payout(stake int64, winChance int) int64 {
	return stake * (100 - houseEdgePercent) / int64(winChance)
}

// ValidateParams requires a side and a threshold inside the fair-odds band.
func (r *Rules) ValidateParams(params map[string]any) error {
	side, _ := params["side"].(string)
	threshold, ok := intParam(params, "threshold")
	if !ok {
		return fmt.Errorf("%w: threshold is required", game.ErrInvalidParams)
	}
	_, err := WinChance(side, threshold)
	return err
}

// InitialPayload builds the pre-roll state. The stake travels in params
// so the odds payout can be computed at resolution.
func (r *Rules) InitialPayload(initiator, responder int64, params map[string]any) (any, error) {
	if err := r.ValidateParams(params); err != nil {
		return nil, err
	}
	threshold, _ := intParam(params, "threshold")
	stake, _ := int64Param(params, "stake")
	return &Payload{
		Initiator: initiator,
		Responder: responder,
		Side:      params["side"].(string),
		Threshold: threshold,
		Stake:     stake,
	}, nil
}

// RandomMove draws the 1-100 roll.
func (r *Rules) RandomMove(_ any, rng *rand.Rand) game.Move {
	return game.Move{Kind: "roll", Data: map[string]any{"roll": rng.Intn(100) + 1}}
}

// Apply resolves the roll. A roll landing exactly on the threshold goes
// to the responder on either side.
func (r *Rules) Apply(payload any, move game.Move) (any, *game.Outcome, error) {
	p, ok := payload.(*Payload)
	if !ok {
		return payload, nil, fmt.Errorf("%w: unexpected payload type", game.ErrInvalidMove)
	}
	if move.Kind != "roll" {
		return payload, nil, fmt.Errorf("%w: unknown move %q", game.ErrInvalidMove, move.Kind)
	}

	roll, ok := intParam(move.Data, "roll")
	if !ok || roll < 1 || roll > 100 {
		return payload, nil, fmt.Errorf("%w: roll must be 1-100", game.ErrInvalidMove)
	}

	initiatorWins := (p.Side == SideOver && roll > p.Threshold) ||
		(p.Side == SideUnder && roll < p.Threshold)

	if initiatorWins {
		chance, err := WinChance(p.Side, p.Threshold)
		if err != nil {
			return payload, nil, err
		}
		return p, game.WinAmount(p.Initiator, p.Responder, Payout(p.Stake, chance)), nil
	}
	return p, game.Win(p.Responder, p.Initiator), nil
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func int64Param(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
