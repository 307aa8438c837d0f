package service

import (
	"context"
	"errors"
	"fmt"

	"ponybot/internal/ledger"
	"ponybot/internal/model"
	"ponybot/internal/repository"
)

// TransferService handles user-to-user bit transfers.
type TransferService struct {
	userRepo *repository.UserRepository
	ledger   *ledger.Ledger
}

// NewTransferService creates a new TransferService instance.
func NewTransferService(userRepo *repository.UserRepository, led *ledger.Ledger) *TransferService {
	return &TransferService{
		userRepo: userRepo,
		ledger:   led,
	}
}

// Transfer moves bits from one user to another. Both users must already
// have accounts; the ledger's conditional debit rejects transfers the
// sender cannot cover.
func (s *TransferService) Transfer(ctx context.Context, fromID, toID int64, amount int64) error {
	if amount <= 0 {
		return ledger.ErrInvalidAmount
	}
	if fromID == toID {
		return ledger.ErrSelfTransfer
	}

	if err := s.requireUser(ctx, fromID); err != nil {
		return err
	}
	if err := s.requireUser(ctx, toID); err != nil {
		return err
	}

	return s.ledger.Transfer(ctx, fromID, toID, amount, model.TxTypeTransfer, nil)
}

func (s *TransferService) requireUser(ctx context.Context, userID int64) error {
	exists, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return nil
}

// ValidateTransfer validates a transfer without executing it.
func (s *TransferService) ValidateTransfer(ctx context.Context, fromID, toID int64, amount int64) error {
	if amount <= 0 {
		return ledger.ErrInvalidAmount
	}
	if fromID == toID {
		return ledger.ErrSelfTransfer
	}

	if err := s.requireUser(ctx, toID); err != nil {
		return err
	}

	balance, err := s.ledger.Balance(ctx, fromID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("%w: %d", ErrUserNotFound, fromID)
		}
		return err
	}
	if balance < amount {
		return ledger.ErrInsufficientFunds
	}

	return nil
}
