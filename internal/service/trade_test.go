package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ponybot/internal/repository"
	"ponybot/internal/session"
)

// memCards is an in-memory CardStore with the same conditional-removal
// semantics as the SQL implementation.
type memCards struct {
	mu       sync.Mutex
	holdings map[string]int
}

func newMemCards() *memCards {
	return &memCards{holdings: make(map[string]int)}
}

func cardKey(userID, cardID int64) string {
	return fmt.Sprintf("%d:%d", userID, cardID)
}

func (m *memCards) AddCards(_ context.Context, userID, cardID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings[cardKey(userID, cardID)] += quantity
	return nil
}

func (m *memCards) RemoveCards(_ context.Context, userID, cardID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cardKey(userID, cardID)
	if m.holdings[key] < quantity {
		return repository.ErrInsufficientCards
	}
	m.holdings[key] -= quantity
	return nil
}

func (m *memCards) GetQuantity(_ context.Context, userID, cardID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdings[cardKey(userID, cardID)], nil
}

func (m *memCards) get(userID, cardID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdings[cardKey(userID, cardID)]
}

type tradeExpiryCounter struct {
	expired atomic.Int32
}

func (n *tradeExpiryCounter) TradeExpired(session.Session) error {
	n.expired.Add(1)
	return nil
}

func newTestTrade(t *testing.T, timeout time.Duration) (*TradeService, *memCards, *tradeExpiryCounter) {
	t.Helper()
	cards := newMemCards()
	notifier := &tradeExpiryCounter{}
	s := NewTradeService(cards, timeout)
	s.SetNotifier(notifier)
	t.Cleanup(s.Stop)
	return s, cards, notifier
}

func TestTradeOfferValidation(t *testing.T) {
	ctx := context.Background()
	s, cards, _ := newTestTrade(t, time.Minute)
	require.NoError(t, cards.AddCards(ctx, 1, 10, 2))

	tests := []struct {
		name    string
		from    int64
		to      int64
		offer   TradeOffer
		wantErr error
	}{
		{"self trade", 1, 1, TradeOffer{GiveCardID: 10, GiveQty: 1, WantCardID: 11, WantQty: 1}, ErrSelfTrade},
		{"zero quantity", 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 0, WantCardID: 11, WantQty: 1}, ErrInvalidTrade},
		{"not enough copies", 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 5, WantCardID: 11, WantQty: 1}, ErrOfferNotCovered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Offer(ctx, tt.from, tt.to, tt.offer)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTradeAcceptSwapsCards(t *testing.T) {
	ctx := context.Background()
	s, cards, _ := newTestTrade(t, time.Minute)
	require.NoError(t, cards.AddCards(ctx, 1, 10, 3))
	require.NoError(t, cards.AddCards(ctx, 2, 11, 2))

	sess, err := s.Offer(ctx, 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 2, WantCardID: 11, WantQty: 1})
	require.NoError(t, err)

	// Only the offered user may accept.
	_, err = s.Accept(ctx, sess.ID, 1)
	assert.ErrorIs(t, err, ErrNotTradeTarget)
	_, err = s.Accept(ctx, sess.ID, 3)
	assert.ErrorIs(t, err, ErrNotTradeParty)

	offer, err := s.Accept(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, offer)

	assert.Equal(t, 1, cards.get(1, 10))
	assert.Equal(t, 1, cards.get(1, 11))
	assert.Equal(t, 2, cards.get(2, 10))
	assert.Equal(t, 1, cards.get(2, 11))

	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestTradeAcceptRollsBackWhenWantedMissing(t *testing.T) {
	ctx := context.Background()
	s, cards, _ := newTestTrade(t, time.Minute)
	require.NoError(t, cards.AddCards(ctx, 1, 10, 1))
	// User 2 never had the wanted card.

	sess, err := s.Offer(ctx, 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 1, WantCardID: 11, WantQty: 1})
	require.NoError(t, err)

	_, err = s.Accept(ctx, sess.ID, 2)
	assert.ErrorIs(t, err, ErrWantedNotCovered)

	// The offerer's card came back.
	assert.Equal(t, 1, cards.get(1, 10))
}

func TestTradeAcceptExecutesOnce(t *testing.T) {
	ctx := context.Background()
	s, cards, _ := newTestTrade(t, time.Minute)
	require.NoError(t, cards.AddCards(ctx, 1, 10, 1))
	require.NoError(t, cards.AddCards(ctx, 2, 11, 1))

	sess, err := s.Offer(ctx, 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 1, WantCardID: 11, WantQty: 1})
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	var executed atomic.Int32
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Accept(ctx, sess.ID, 2); err == nil {
				executed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), executed.Load())
	assert.Equal(t, 1, cards.get(1, 11))
	assert.Equal(t, 1, cards.get(2, 10))
	assert.Equal(t, 0, cards.get(1, 10))
	assert.Equal(t, 0, cards.get(2, 11))
}

func TestTradeDeclineAndCancel(t *testing.T) {
	ctx := context.Background()
	s, cards, _ := newTestTrade(t, time.Minute)
	require.NoError(t, cards.AddCards(ctx, 1, 10, 1))

	t.Run("decline", func(t *testing.T) {
		sess, err := s.Offer(ctx, 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 1, WantCardID: 11, WantQty: 1})
		require.NoError(t, err)

		assert.ErrorIs(t, s.Decline(ctx, sess.ID, 1), ErrNotTradeTarget)
		require.NoError(t, s.Decline(ctx, sess.ID, 2))
		assert.Equal(t, 1, cards.get(1, 10))
	})

	t.Run("cancel", func(t *testing.T) {
		sess, err := s.Offer(ctx, 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 1, WantCardID: 11, WantQty: 1})
		require.NoError(t, err)

		assert.ErrorIs(t, s.Cancel(ctx, sess.ID, 2), ErrNotTradeOfferer)
		require.NoError(t, s.Cancel(ctx, sess.ID, 1))

		_, err = s.Get(sess.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})
}

func TestTradeExpires(t *testing.T) {
	ctx := context.Background()
	s, cards, notifier := newTestTrade(t, 20*time.Millisecond)
	require.NoError(t, cards.AddCards(ctx, 1, 10, 1))

	sess, err := s.Offer(ctx, 1, 2, TradeOffer{GiveCardID: 10, GiveQty: 1, WantCardID: 11, WantQty: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return notifier.expired.Load() == 1
	}, time.Second, 5*time.Millisecond)

	_, err = s.Accept(ctx, sess.ID, 2)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Equal(t, 1, cards.get(1, 10))
}
