package dice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ponybot/internal/game"
)

func TestWinChance(t *testing.T) {
	tests := []struct {
		name      string
		side      string
		threshold int
		want      int
		wantErr   bool
	}{
		{"over 70", SideOver, 70, 30, false},
		{"under 31", SideUnder, 31, 30, false},
		{"over 5 is the generous edge", SideOver, 5, 95, false},
		{"over 95 is the long-shot edge", SideOver, 95, 5, false},
		{"over 96 too unlikely", SideOver, 96, 0, true},
		{"over 4 too likely", SideOver, 4, 0, true},
		{"under 6 is the long-shot edge", SideUnder, 6, 5, false},
		{"under 5 too unlikely", SideUnder, 5, 0, true},
		{"unknown side", "between", 50, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WinChance(tt.side, tt.threshold)
			if tt.wantErr {
				assert.ErrorIs(t, err, game.ErrInvalidParams)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayout(t *testing.T) {
	tests := []struct {
		name      string
		stake     int64
		winChance int
		want      int64
	}{
		{"stake 50 at 30 percent", 50, 30, 158},
		{"even odds keep the house cut", 100, 50, 190},
		{"long shot", 10, 5, 190},
		{"near certainty", 100, 95, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Payout(tt.stake, tt.winChance))
		})
	}
}

func TestApply(t *testing.T) {
	r := New()
	params := map[string]any{"side": SideOver, "threshold": 70, "stake": int64(50)}
	payload, err := r.InitialPayload(1, 2, params)
	require.NoError(t, err)

	tests := []struct {
		name       string
		roll       int
		wantWinner int64
		wantAmount int64
	}{
		{"roll above wins at odds", 85, 1, 158},
		{"roll below loses the stake", 42, 2, 0},
		{"roll on the threshold goes to the responder", 70, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, outcome, err := r.Apply(payload, game.Move{Kind: "roll", Data: map[string]any{"roll": tt.roll}})
			require.NoError(t, err)
			require.NotNil(t, outcome)
			assert.Equal(t, tt.wantWinner, outcome.Winner)
			assert.Equal(t, tt.wantAmount, outcome.Amount)
		})
	}
}

func TestApplyRejectsBadRolls(t *testing.T) {
	r := New()
	payload, err := r.InitialPayload(1, 2, map[string]any{"side": SideUnder, "threshold": 40, "stake": int64(10)})
	require.NoError(t, err)

	for _, roll := range []int{0, 101, -3} {
		_, _, err := r.Apply(payload, game.Move{Kind: "roll", Data: map[string]any{"roll": roll}})
		assert.ErrorIs(t, err, game.ErrInvalidMove)
	}

	_, _, err = r.Apply(payload, game.Move{Kind: "roll", Data: map[string]any{}})
	assert.ErrorIs(t, err, game.ErrInvalidMove)
}

// TestPayoutNeverExceedsFairOddsProperty: for any valid bet, the odds
// payout never exceeds the fair payout and never drops below the stake
// at even-or-better chances being decided by a single bounded formula.
func TestPayoutNeverExceedsFairOddsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stake := rapid.Int64Range(1, 10000).Draw(t, "stake")
		chance := rapid.IntRange(MinWinChance, MaxWinChance).Draw(t, "chance")

		payout := Payout(stake, chance)
		fair := stake * 100 / int64(chance)

		if payout > fair {
			t.Fatalf("Payout %d exceeds fair odds %d", payout, fair)
		}
		if payout < 0 {
			t.Fatalf("Negative payout %d", payout)
		}
	})
}

// TestEverySideHasAWinnerProperty: every valid side/threshold/roll
// combination resolves to exactly one participant, and the outcome is
// the same on replay.
func TestEverySideHasAWinnerProperty(t *testing.T) {
	r := New()

	rapid.Check(t, func(t *rapid.T) {
		side := rapid.SampledFrom([]string{SideOver, SideUnder}).Draw(t, "side")
		var threshold int
		if side == SideOver {
			threshold = rapid.IntRange(5, 95).Draw(t, "threshold")
		} else {
			threshold = rapid.IntRange(6, 96).Draw(t, "threshold")
		}
		roll := rapid.IntRange(1, 100).Draw(t, "roll")
		stake := rapid.Int64Range(1, 5000).Draw(t, "stake")

		payload, err := r.InitialPayload(1, 2, map[string]any{"side": side, "threshold": threshold, "stake": stake})
		if err != nil {
			t.Fatalf("InitialPayload failed: %v", err)
		}

		move := game.Move{Kind: "roll", Data: map[string]any{"roll": roll}}
		_, first, err := r.Apply(payload, move)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		_, second, err := r.Apply(payload, move)
		if err != nil {
			t.Fatalf("Apply failed on replay: %v", err)
		}

		if first == nil || first.Tie {
			t.Fatal("Dice duel must always decide a winner")
		}
		if *first != *second {
			t.Fatalf("Same roll produced different outcomes: %+v vs %+v", first, second)
		}
		if first.Winner == 1 && first.Amount != Payout(stake, mustChance(t, side, threshold)) {
			t.Fatalf("Challenger win paid %d, expected odds payout", first.Amount)
		}
		if first.Winner == 2 && first.Amount != 0 {
			t.Fatalf("Responder win must pay the plain stake, got amount %d", first.Amount)
		}
	})
}

func mustChance(t *rapid.T, side string, threshold int) int {
	chance, err := WinChance(side, threshold)
	if err != nil {
		t.Fatalf("WinChance failed: %v", err)
	}
	return chance
}
