package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newChallengeSession(id string) *Session {
	return &Session{
		ID:        id,
		Game:      "coinflip",
		Initiator: 1,
		Responder: 2,
		Phase:     PhaseChallenge,
		Stake:     50,
	}
}

func TestStoreCreate(t *testing.T) {
	store := NewStore()

	require.NoError(t, store.Create(newChallengeSession("s1")))

	got, err := store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, PhaseChallenge, got.Phase)
	assert.Equal(t, uint64(1), got.Version)
	assert.False(t, got.CreatedAt.IsZero())

	assert.ErrorIs(t, store.Create(newChallengeSession("s1")), ErrDuplicateSession)
}

func TestStoreCreateExclusive(t *testing.T) {
	store := NewStore()

	require.NoError(t, store.CreateExclusive(newChallengeSession("s1")))

	// Any overlap in participants is rejected.
	other := newChallengeSession("s2")
	other.Initiator = 2
	other.Responder = 3
	assert.ErrorIs(t, store.CreateExclusive(other), ErrParticipantBusy)

	free := newChallengeSession("s3")
	free.Initiator = 3
	free.Responder = 4
	assert.NoError(t, store.CreateExclusive(free))
}

func TestStoreCreateExclusiveRace(t *testing.T) {
	store := NewStore()

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, busy := 0, 0

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			sess := newChallengeSession(string(rune('a' + i)))
			err := store.CreateExclusive(sess)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case err == ErrParticipantBusy:
				busy++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "one create per participant pair")
	assert.Equal(t, racers-1, busy)
	assert.Equal(t, 1, store.Len())
}

func TestStoreGetNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreMutate(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create(newChallengeSession("s1")))

	updated, err := store.Mutate("s1", func(s *Session) error {
		s.Stake = 100
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), updated.Stake)
	assert.Equal(t, uint64(2), updated.Version)

	_, err = store.Mutate("missing", func(s *Session) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreMutateErrorLeavesSessionUnchanged(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create(newChallengeSession("s1")))

	_, err := store.Mutate("s1", func(s *Session) error {
		s.Stake = 999
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Stake)
	assert.Equal(t, uint64(1), got.Version)
}

func TestStoreTransition(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create(newChallengeSession("s1")))

	got, err := store.Transition("s1", PhaseChallenge, PhaseActive)
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, got.Phase)

	// Second transition from the same source phase loses the race.
	_, err = store.Transition("s1", PhaseChallenge, PhaseActive)
	assert.ErrorIs(t, err, ErrStaleSession)
}

func TestStoreDelete(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create(newChallengeSession("s1")))

	store.Delete("s1")
	_, err := store.Get("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Deleting again is a no-op.
	store.Delete("s1")
}

func TestStoreByParticipant(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create(newChallengeSession("s1")))

	got, ok := store.ByParticipant(2)
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID)

	_, ok = store.ByParticipant(99)
	assert.False(t, ok)
}

func TestPhaseTerminal(t *testing.T) {
	tests := []struct {
		phase    Phase
		terminal bool
	}{
		{PhaseChallenge, false},
		{PhaseActive, false},
		{PhaseResolved, true},
		{PhaseExpired, true},
		{PhaseDeclined, true},
		{PhaseCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.phase.Terminal())
		})
	}
}

// TestTransitionSingleWinnerProperty: for any number of goroutines racing
// to move a session out of the same phase, exactly one wins and the rest
// see ErrStaleSession.
func TestTransitionSingleWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numRacers := rapid.IntRange(2, 20).Draw(t, "numRacers")

		store := NewStore()
		if err := store.Create(newChallengeSession("race")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, stale := 0, 0

		wg.Add(numRacers)
		for i := 0; i < numRacers; i++ {
			go func() {
				defer wg.Done()
				_, err := store.Transition("race", PhaseChallenge, PhaseActive)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case err == ErrStaleSession:
					stale++
				default:
					t.Errorf("Unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("Expected exactly one winner, got %d", wins)
		}
		if stale != numRacers-1 {
			t.Fatalf("Expected %d stale losers, got %d", numRacers-1, stale)
		}
	})
}

// TestMutateVersionMonotonicProperty: concurrent mutations each bump the
// version exactly once.
func TestMutateVersionMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numOps := rapid.IntRange(1, 30).Draw(t, "numOps")

		store := NewStore()
		if err := store.Create(newChallengeSession("v")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_, _ = store.Mutate("v", func(s *Session) error {
					s.Stake++
					return nil
				})
			}()
		}
		wg.Wait()

		got, err := store.Get("v")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Version != uint64(1+numOps) {
			t.Fatalf("Expected version %d, got %d", 1+numOps, got.Version)
		}
		if got.Stake != int64(50+numOps) {
			t.Fatalf("Lost a mutation: expected stake %d, got %d", 50+numOps, got.Stake)
		}
	})
}
