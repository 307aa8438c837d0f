// Package coinflip implements the two-party coin toss. The challenger
// calls a side; the flip resolves the moment the challenge is accepted.
package coinflip

import (
	"fmt"
	"math/rand"

	"ponybot/internal/game"
)

// Sides of the coin.
const (
	Heads = "heads"
	Tails = "tails"
)

// Payload is the coinflip game state.
type Payload struct {
	Initiator int64
	Responder int64
	Call      string // side the initiator called
}

// Rules implements game.Instant for the coin toss.
type Rules struct{}

// New creates the coinflip rules.
func New() *Rules {
	return &Rules{}
}

func (r *Rules) Name() string        { return "Coinflip" }
func (r *Rules) Command() string     { return "coinflip" }
func (r *Rules) Description() string { return "Call heads or tails, winner takes the stake" }

// ValidateParams requires a valid side call.
func (r *Rules) ValidateParams(params map[string]any) error {
	call, _ := params["call"].(string)
	if call != Heads && call != Tails {
		return fmt.Errorf("%w: call must be %q or %q", game.ErrInvalidParams, Heads, Tails)
	}
	return nil
}

// InitialPayload builds the pre-flip state.
func (r *Rules) InitialPayload(initiator, responder int64, params map[string]any) (any, error) {
	if err := r.ValidateParams(params); err != nil {
		return nil, err
	}
	return &Payload{
		Initiator: initiator,
		Responder: responder,
		Call:      params["call"].(string),
	}, nil
}

// RandomMove draws the flip result.
func (r *Rules) RandomMove(_ any, rng *rand.Rand) game.Move {
	side := Heads
	if rng.Intn(2) == 1 {
		side = Tails
	}
	return game.Move{Kind: "flip", Data: map[string]any{"side": side}}
}

// Apply resolves the flip. The initiator wins when the coin lands on the
// called side.
func (r *Rules) Apply(payload any, move game.Move) (any, *game.Outcome, error) {
	p, ok := payload.(*Payload)
	if !ok {
		return payload, nil, fmt.Errorf("%w: unexpected payload type", game.ErrInvalidMove)
	}
	if move.Kind != "flip" {
		return payload, nil, fmt.Errorf("%w: unknown move %q", game.ErrInvalidMove, move.Kind)
	}

	side, _ := move.Data["side"].(string)
	if side != Heads && side != Tails {
		return payload, nil, fmt.Errorf("%w: bad flip side %q", game.ErrInvalidMove, side)
	}

	if side == p.Call {
		return p, game.Win(p.Initiator, p.Responder), nil
	}
	return p, game.Win(p.Responder, p.Initiator), nil
}
