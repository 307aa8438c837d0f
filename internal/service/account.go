// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"ponybot/internal/ledger"
	"ponybot/internal/model"
	"ponybot/internal/repository"
)

// Common errors for account operations.
var (
	ErrDailyAlreadyClaimed = errors.New("daily reward already claimed")
	ErrUserNotFound        = errors.New("user not found")
)

// AccountService handles user account operations.
type AccountService struct {
	userRepo    *repository.UserRepository
	txRepo      *repository.TransactionRepository
	ledger      *ledger.Ledger
	dailyReward int64
	cooldownHrs int
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	led *ledger.Ledger,
	dailyReward int64,
	cooldownHours int,
) *AccountService {
	return &AccountService{
		userRepo:    userRepo,
		txRepo:      txRepo,
		ledger:      led,
		dailyReward: dailyReward,
		cooldownHrs: cooldownHours,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, userID int64, username string) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, userID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && user.Username != username && username != "" {
		if err := s.userRepo.UpdateUsername(ctx, userID, username); err != nil {
			// Non-fatal; the user still exists.
			log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to update username")
		}
		user.Username = username
	}

	return user, created, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

// GetUser retrieves a user by ID.
func (s *AccountService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// ClaimDaily claims the daily reward if the cooldown has passed.
// Returns the reward amount and the new balance.
func (s *AccountService) ClaimDaily(ctx context.Context, userID int64) (int64, int64, error) {
	canClaim, remaining, err := s.userRepo.CanClaimDaily(ctx, userID, s.cooldownHrs)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check daily claim eligibility: %w", err)
	}
	if !canClaim {
		return 0, 0, fmt.Errorf("%w: %s remaining", ErrDailyAlreadyClaimed, formatRemaining(remaining))
	}

	desc := "daily reward"
	newBalance, err := s.ledger.Credit(ctx, userID, s.dailyReward, model.TxTypeDaily, &desc)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to add daily reward: %w", err)
	}

	if _, err := s.userRepo.UpdateDailyClaim(ctx, userID, time.Now().Unix()); err != nil {
		return 0, 0, fmt.Errorf("failed to update daily claim time: %w", err)
	}

	return s.dailyReward, newBalance, nil
}

// CanClaimDaily checks daily reward eligibility without claiming.
func (s *AccountService) CanClaimDaily(ctx context.Context, userID int64) (bool, time.Duration, error) {
	return s.userRepo.CanClaimDaily(ctx, userID, s.cooldownHrs)
}

// GetTopUsers retrieves the top users by balance.
func (s *AccountService) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}

// GetHistory retrieves a user's recent transactions.
func (s *AccountService) GetHistory(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	return s.txRepo.GetByUserID(ctx, userID, limit)
}

// NetGameProfit returns a user's lifetime win/loss balance across games.
func (s *AccountService) NetGameProfit(ctx context.Context, userID int64) (int64, error) {
	return s.txRepo.GetUserNetGameProfit(ctx, userID)
}

func formatRemaining(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}
