// Package tictactoe implements 3x3 tic-tac-toe. The responder moves
// first (they accepted the risk last), players alternate, three in a row
// wins and a full board ties.
package tictactoe

import (
	"fmt"

	"ponybot/internal/game"
)

// Cell values.
const (
	Empty = 0
	X     = 1
	O     = 2
)

// winLines lists the eight winning index triples on the board.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Payload is the board state. Board cells are indexed 0-8, row-major.
type Payload struct {
	Initiator int64
	Responder int64
	Board     [9]int
	Next      int64
}

// Rules implements game.TurnBased for tic-tac-toe.
type Rules struct{}

// New creates the tic-tac-toe rules.
func New() *Rules {
	return &Rules{}
}

func (r *Rules) Name() string        { return "Tic-Tac-Toe" }
func (r *Rules) Command() string     { return "ttt" }
func (r *Rules) Description() string { return "Three in a row wins the stake" }

// ValidateParams accepts any params; the game has no challenge-time options.
func (r *Rules) ValidateParams(map[string]any) error {
	return nil
}

// InitialPayload builds an empty board with the responder to move as X.
func (r *Rules) InitialPayload(initiator, responder int64, _ map[string]any) (any, error) {
	return &Payload{
		Initiator: initiator,
		Responder: responder,
		Next:      responder,
	}, nil
}

// Turn returns whose move is expected.
func (r *Rules) Turn(payload any) (int64, error) {
	p, ok := payload.(*Payload)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected payload type", game.ErrInvalidMove)
	}
	return p.Next, nil
}

// Apply places a mark. Out-of-turn and occupied-cell moves are rejected
// without changing the board.
func (r *Rules) Apply(payload any, move game.Move) (any, *game.Outcome, error) {
	p, ok := payload.(*Payload)
	if !ok {
		return payload, nil, fmt.Errorf("%w: unexpected payload type", game.ErrInvalidMove)
	}
	if move.Kind != "place" {
		return payload, nil, fmt.Errorf("%w: unknown move %q", game.ErrInvalidMove, move.Kind)
	}
	if move.Actor != p.Next {
		return payload, nil, game.ErrNotYourTurn
	}

	cell, ok := cellParam(move.Data)
	if !ok || cell < 0 || cell > 8 {
		return payload, nil, fmt.Errorf("%w: cell must be 0-8", game.ErrInvalidMove)
	}
	if p.Board[cell] != Empty {
		return payload, nil, fmt.Errorf("%w: cell %d is taken", game.ErrInvalidMove, cell)
	}

	mark := X
	if move.Actor == p.Initiator {
		mark = O
	}

	next := *p
	next.Board[cell] = mark
	next.Next = p.opponent(move.Actor)

	if winningMark(next.Board) == mark {
		return &next, game.Win(move.Actor, next.Next), nil
	}
	if boardFull(next.Board) {
		return &next, game.Tie(), nil
	}
	return &next, nil, nil
}

// Mark returns the board value a participant plays with.
func (p *Payload) Mark(userID int64) int {
	if userID == p.Initiator {
		return O
	}
	return X
}

func (p *Payload) opponent(userID int64) int64 {
	if userID == p.Initiator {
		return p.Responder
	}
	return p.Initiator
}

func winningMark(board [9]int) int {
	for _, line := range winLines {
		if v := board[line[0]]; v != Empty && v == board[line[1]] && v == board[line[2]] {
			return v
		}
	}
	return Empty
}

func boardFull(board [9]int) bool {
	for _, v := range board {
		if v == Empty {
			return false
		}
	}
	return true
}

func cellParam(data map[string]any) (int, bool) {
	switch v := data["cell"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
