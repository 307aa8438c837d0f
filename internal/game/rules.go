// Package game defines the rules interface and registry for two-party
// games. Rules are pure: they map a payload and a move to a new payload
// and an optional outcome, with no I/O and no internal randomness. Games
// that need chance receive it as an injected random source, so the same
// draws always produce the same outcome.
package game

import (
	"errors"
	"math/rand"
)

// Common rule errors.
var (
	ErrInvalidMove   = errors.New("invalid move")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrInvalidParams = errors.New("invalid game parameters")
)

// Move is one action by one participant.
type Move struct {
	Actor int64
	Kind  string
	Data  map[string]any
}

// Outcome is the decided result of a finished game. Amount overrides the
// session stake when non-zero; games with odds-based payouts use it.
type Outcome struct {
	Tie    bool
	Winner int64
	Loser  int64
	Amount int64
}

// Win builds a decided outcome at the session stake.
func Win(winner, loser int64) *Outcome {
	return &Outcome{Winner: winner, Loser: loser}
}

// WinAmount builds a decided outcome with an explicit transfer amount.
func WinAmount(winner, loser, amount int64) *Outcome {
	return &Outcome{Winner: winner, Loser: loser, Amount: amount}
}

// Tie builds a drawn outcome. Nothing is transferred.
func Tie() *Outcome {
	return &Outcome{Tie: true}
}

// Rules defines one game. Implementations must be stateless; all game
// state lives in the payload the engine stores on the session.
type Rules interface {
	// Name returns the game's display name (e.g., "Coinflip").
	Name() string

	// Command returns the command that triggers this game (e.g., "coinflip").
	Command() string

	// Description returns a brief description of the game.
	Description() string

	// ValidateParams checks challenge-time parameters before a session is
	// created.
	ValidateParams(params map[string]any) error

	// InitialPayload builds the game state for a freshly accepted session.
	InitialPayload(initiator, responder int64, params map[string]any) (any, error)

	// Apply folds one move into the payload. A non-nil outcome means the
	// game is finished and the session settles.
	Apply(payload any, move Move) (any, *Outcome, error)
}

// Instant marks rules whose outcome is decided the moment the challenge
// is accepted. RandomMove builds the single resolving move from the
// engine's random source; Apply stays deterministic.
type Instant interface {
	Rules

	RandomMove(payload any, rng *rand.Rand) Move
}

// TurnBased marks rules with alternating turns.
type TurnBased interface {
	Rules

	// Turn returns the participant whose move is expected next.
	Turn(payload any) (int64, error)
}
