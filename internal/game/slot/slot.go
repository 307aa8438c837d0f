// Package slot implements the single-player slot machine. Telegram's
// slot animation reports a value in 1-64; evaluation decodes it into
// three reels and pays out on matches.
package slot

import (
	"errors"
	"fmt"
)

// Reel symbols.
const (
	SymbolBar   = 1
	SymbolGrape = 2
	SymbolLemon = 3
	SymbolSeven = 4
)

// SymbolNames maps reel symbols to display strings.
var SymbolNames = map[int]string{
	SymbolBar:   "BAR",
	SymbolGrape: "🍇",
	SymbolLemon: "🍋",
	SymbolSeven: "7️⃣",
}

// Slot errors.
var (
	ErrInvalidBet   = errors.New("bet amount must be positive")
	ErrBetTooHigh   = errors.New("bet exceeds maximum allowed")
	ErrInvalidValue = errors.New("slot value must be between 1 and 64")
)

// Result is one evaluated spin. Payout is net: positive on a win,
// zero on a push, negative on a loss.
type Result struct {
	Left, Middle, Right int
	Payout              int64
}

// Display renders the three reels.
func (r Result) Display() string {
	return fmt.Sprintf("%s %s %s", SymbolNames[r.Left], SymbolNames[r.Middle], SymbolNames[r.Right])
}

// Decode splits a slot value (1-64) into three reel symbols (1-4 each).
// Formula: value = left + (middle-1)*4 + (right-1)*16.
func Decode(value int) (left, middle, right int) {
	v := value - 1
	left = (v % 4) + 1
	middle = ((v / 4) % 4) + 1
	right = (v / 16) + 1
	return left, middle, right
}

// Encode is the inverse of Decode.
func Encode(left, middle, right int) int {
	return left + (middle-1)*4 + (right-1)*16
}

// Evaluate scores a spin: three matching reels pay a tiered multiple of
// the bet, two matching reels push, no match loses the bet.
func Evaluate(value int, bet int64, maxBet int64) (Result, error) {
	if bet <= 0 {
		return Result{}, ErrInvalidBet
	}
	if maxBet > 0 && bet > maxBet {
		return Result{}, fmt.Errorf("%w: max bet is %d", ErrBetTooHigh, maxBet)
	}
	if value < 1 || value > 64 {
		return Result{}, ErrInvalidValue
	}

	left, middle, right := Decode(value)
	return Result{
		Left:   left,
		Middle: middle,
		Right:  right,
		Payout: payout(left, middle, right, bet),
	}, nil
}

// payout applies the tiered multiplier: bigger bets win at lower odds.
func payout(left, middle, right int, bet int64) int64 {
	if left == middle && middle == right {
		switch {
		case bet <= 1000:
			return bet * 3
		case bet <= 10000:
			return bet * 2
		case bet <= 100000:
			return bet * 3 / 2
		default:
			return bet
		}
	}
	if left == middle || middle == right || left == right {
		return 0
	}
	return -bet
}
