// Package rps implements rock-paper-scissors. Both players submit a
// hidden choice; the round resolves once both are in. Tied rounds are
// replayed, up to a cap.
package rps

import (
	"fmt"

	"ponybot/internal/game"
)

// Choices.
const (
	Rock     = "rock"
	Paper    = "paper"
	Scissors = "scissors"
)

// MaxTiedRounds is how many tied rounds are replayed before the match is
// called a draw.
const MaxTiedRounds = 3

// beats maps each choice to the choice it defeats.
var beats = map[string]string{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

// Payload is the match state. Choices holds the pending round's hidden
// picks keyed by participant.
type Payload struct {
	Initiator  int64
	Responder  int64
	Choices    map[int64]string
	TiedRounds int
}

// Rules implements game.Rules for rock-paper-scissors.
type Rules struct{}

// New creates the rock-paper-scissors rules.
func New() *Rules {
	return &Rules{}
}

func (r *Rules) Name() string        { return "Rock Paper Scissors" }
func (r *Rules) Command() string     { return "rps" }
func (r *Rules) Description() string { return "Rock beats scissors, scissors beats paper, paper beats rock" }

// ValidateParams accepts any params; the game has no challenge-time options.
func (r *Rules) ValidateParams(map[string]any) error {
	return nil
}

// InitialPayload builds the empty first round.
func (r *Rules) InitialPayload(initiator, responder int64, _ map[string]any) (any, error) {
	return &Payload{
		Initiator: initiator,
		Responder: responder,
		Choices:   make(map[int64]string),
	}, nil
}

// Apply records a choice. Either player may submit at any time, but only
// once per round.
func (r *Rules) Apply(payload any, move game.Move) (any, *game.Outcome, error) {
	p, ok := payload.(*Payload)
	if !ok {
		return payload, nil, fmt.Errorf("%w: unexpected payload type", game.ErrInvalidMove)
	}
	if move.Kind != "choose" {
		return payload, nil, fmt.Errorf("%w: unknown move %q", game.ErrInvalidMove, move.Kind)
	}

	choice, _ := move.Data["choice"].(string)
	if _, valid := beats[choice]; !valid {
		return payload, nil, fmt.Errorf("%w: choice must be rock, paper or scissors", game.ErrInvalidMove)
	}
	if _, already := p.Choices[move.Actor]; already {
		return payload, nil, fmt.Errorf("%w: choice already made this round", game.ErrInvalidMove)
	}

	next := p.clone()
	next.Choices[move.Actor] = choice

	a, aOK := next.Choices[p.Initiator]
	b, bOK := next.Choices[p.Responder]
	if !aOK || !bOK {
		return next, nil, nil
	}

	switch {
	case a == b:
		next.TiedRounds++
		if next.TiedRounds >= MaxTiedRounds {
			return next, game.Tie(), nil
		}
		next.Choices = make(map[int64]string)
		return next, nil, nil
	case beats[a] == b:
		return next, game.Win(p.Initiator, p.Responder), nil
	default:
		return next, game.Win(p.Responder, p.Initiator), nil
	}
}

func (p *Payload) clone() *Payload {
	next := &Payload{
		Initiator:  p.Initiator,
		Responder:  p.Responder,
		Choices:    make(map[int64]string, len(p.Choices)),
		TiedRounds: p.TiedRounds,
	}
	for id, c := range p.Choices {
		next.Choices[id] = c
	}
	return next
}
