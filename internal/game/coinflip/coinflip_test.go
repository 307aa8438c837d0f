package coinflip

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ponybot/internal/game"
)

func TestValidateParams(t *testing.T) {
	r := New()

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"heads", map[string]any{"call": "heads"}, false},
		{"tails", map[string]any{"call": "tails"}, false},
		{"bad side", map[string]any{"call": "edge"}, true},
		{"missing call", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateParams(tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, game.ErrInvalidParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApply(t *testing.T) {
	r := New()
	payload, err := r.InitialPayload(1, 2, map[string]any{"call": "heads"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		side       string
		wantWinner int64
	}{
		{"called side lands", "heads", 1},
		{"other side lands", "tails", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, outcome, err := r.Apply(payload, game.Move{Kind: "flip", Data: map[string]any{"side": tt.side}})
			require.NoError(t, err)
			require.NotNil(t, outcome)
			assert.False(t, outcome.Tie)
			assert.Equal(t, tt.wantWinner, outcome.Winner)
		})
	}
}

func TestApplyRejectsBadMoves(t *testing.T) {
	r := New()
	payload, err := r.InitialPayload(1, 2, map[string]any{"call": "tails"})
	require.NoError(t, err)

	_, _, err = r.Apply(payload, game.Move{Kind: "place"})
	assert.ErrorIs(t, err, game.ErrInvalidMove)

	_, _, err = r.Apply(payload, game.Move{Kind: "flip", Data: map[string]any{"side": "edge"}})
	assert.ErrorIs(t, err, game.ErrInvalidMove)
}

// TestApplyDeterministicProperty: the same payload and move always produce
// the same outcome, and the flip always decides the game with no tie.
func TestApplyDeterministicProperty(t *testing.T) {
	r := New()

	rapid.Check(t, func(t *rapid.T) {
		call := rapid.SampledFrom([]string{Heads, Tails}).Draw(t, "call")
		seed := rapid.Int64().Draw(t, "seed")

		payload, err := r.InitialPayload(10, 20, map[string]any{"call": call})
		if err != nil {
			t.Fatalf("InitialPayload failed: %v", err)
		}

		move := r.RandomMove(payload, rand.New(rand.NewSource(seed)))

		_, first, err := r.Apply(payload, move)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		_, second, err := r.Apply(payload, move)
		if err != nil {
			t.Fatalf("Apply failed on replay: %v", err)
		}

		if first.Tie {
			t.Fatal("Coinflip must never tie")
		}
		if *first != *second {
			t.Fatalf("Same move produced different outcomes: %+v vs %+v", first, second)
		}
		if first.Winner != 10 && first.Winner != 20 {
			t.Fatalf("Winner %d is not a participant", first.Winner)
		}
	})
}
