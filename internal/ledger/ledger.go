// Package ledger provides atomic bits-balance operations.
//
// All debits are conditional at the persistence layer ("decrement only if
// balance covers it"), so a balance can never go negative no matter how
// many sessions race on it. Balances are never cached across calls.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"ponybot/internal/model"
	"ponybot/internal/pkg/lock"
)

// Ledger errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount: must be positive")
	ErrSelfTransfer      = errors.New("cannot transfer to self")
)

// BalanceStore is the narrow persistence surface the ledger needs.
// Implemented by repository.UserRepository.
type BalanceStore interface {
	GetByID(ctx context.Context, userID int64) (*model.User, error)
	AdjustBalance(ctx context.Context, userID int64, amount int64) (*model.User, error)
	AdjustBalanceIf(ctx context.Context, userID int64, amount int64) (*model.User, bool, error)
}

// TxRecorder records balance changes in the transaction history.
// Implemented by repository.TransactionRepository.
type TxRecorder interface {
	Create(ctx context.Context, userID int64, amount int64, txType string, description *string) (*model.Transaction, error)
}

// Ledger performs balance mutations against the persistence layer.
type Ledger struct {
	store    BalanceStore
	recorder TxRecorder
	locks    *lock.UserLock
}

// New creates a new Ledger instance.
func New(store BalanceStore, recorder TxRecorder, locks *lock.UserLock) *Ledger {
	return &Ledger{
		store:    store,
		recorder: recorder,
		locks:    locks,
	}
}

// Balance retrieves a user's current balance. Always re-reads the store;
// concurrent sessions may mutate balances between any two calls.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	user, err := l.store.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// Credit adds amount to a user's balance and records the transaction.
// Returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID int64, amount int64, txType string, description *string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	user, err := l.store.AdjustBalance(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to credit: %w", err)
	}

	l.record(ctx, userID, amount, txType, description)
	return user.Balance, nil
}

// Debit removes amount from a user's balance, failing with
// ErrInsufficientFunds when the balance does not cover it.
// Returns the new balance.
func (l *Ledger) Debit(ctx context.Context, userID int64, amount int64, txType string, description *string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	user, ok, err := l.store.AdjustBalanceIf(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to debit: %w", err)
	}
	if !ok {
		return user.Balance, ErrInsufficientFunds
	}

	l.record(ctx, userID, -amount, txType, description)
	return user.Balance, nil
}

// DebitUpTo removes up to amount from a user's balance: the full amount if
// the balance covers it, otherwise whatever remains. Returns the amount
// actually taken and the new balance. Used by settlement, where a game
// outcome stands even when the loser's balance shrank mid-game.
func (l *Ledger) DebitUpTo(ctx context.Context, userID int64, amount int64, txType string, description *string) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}

	user, ok, err := l.store.AdjustBalanceIf(ctx, userID, amount)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to debit: %w", err)
	}
	if ok {
		l.record(ctx, userID, -amount, txType, description)
		return amount, user.Balance, nil
	}

	// Guard failed: take whatever the user has left. The remainder read and
	// the conditional debit are separate statements, so loop in case another
	// debit lands in between.
	for attempt := 0; attempt < 3; attempt++ {
		remaining := user.Balance
		if remaining <= 0 {
			return 0, remaining, nil
		}

		user, ok, err = l.store.AdjustBalanceIf(ctx, userID, remaining)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to debit remainder: %w", err)
		}
		if ok {
			l.record(ctx, userID, -remaining, txType, description)
			return remaining, user.Balance, nil
		}
	}

	return 0, user.Balance, nil
}

// Transfer moves amount from one user to another with a conditional debit,
// holding both users' locks for the duration.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID int64, amount int64, txType string, description *string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSelfTransfer
	}

	return l.locks.WithPairLock(fromID, toID, func() error {
		if _, err := l.Debit(ctx, fromID, amount, txType, description); err != nil {
			return err
		}

		if _, err := l.Credit(ctx, toID, amount, txType, description); err != nil {
			// Put the debited amount back; the transfer never happened.
			if _, rbErr := l.store.AdjustBalance(ctx, fromID, amount); rbErr != nil {
				log.Error().Err(rbErr).
					Int64("user_id", fromID).
					Int64("amount", amount).
					Msg("Failed to roll back debit after credit failure")
			}
			return err
		}

		return nil
	})
}

// record writes a transaction row. Failures are logged and swallowed;
// the balance change already happened and history is advisory.
func (l *Ledger) record(ctx context.Context, userID int64, amount int64, txType string, description *string) {
	if l.recorder == nil {
		return
	}
	if _, err := l.recorder.Create(ctx, userID, amount, txType, description); err != nil {
		log.Warn().Err(err).
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("type", txType).
			Msg("Failed to record transaction")
	}
}
