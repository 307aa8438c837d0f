// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ponybot/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository handles user account persistence.
type UserRepository struct {
	pool            *pgxpool.Pool
	startingBalance int64
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool, startingBalance int64) *UserRepository {
	return &UserRepository{pool: pool, startingBalance: startingBalance}
}

const userColumns = "user_id, username, balance, last_daily_claim, created_at, updated_at"

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.Balance,
		&user.LastDailyClaim,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Create creates a new user with the configured starting balance.
func (r *UserRepository) Create(ctx context.Context, userID int64, username string) (*model.User, error) {
	const query = `
		INSERT INTO users (user_id, username, balance, last_daily_claim, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, username, r.startingBalance))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by their platform ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by ID, creating one if it doesn't exist.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64, username string) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, userID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, userID, username)
	if err != nil {
		// Handle race condition: another request might have created the user
		user, err = r.GetByID(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// AdjustBalance updates a user's balance by adding the specified amount.
// The amount can be negative to subtract from the balance; no floor is
// applied, so callers that must not overdraw use AdjustBalanceIf instead.
func (r *UserRepository) AdjustBalance(ctx context.Context, userID int64, amount int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return user, nil
}

// AdjustBalanceIf decrements a user's balance by amount only if the balance
// covers it. The guard lives in the UPDATE itself so concurrent debits can
// never drive the balance negative. Returns the updated user and whether
// the debit was applied.
func (r *UserRepository) AdjustBalanceIf(ctx context.Context, userID int64, amount int64) (*model.User, bool, error) {
	const query = `
		UPDATE users
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, amount))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to debit balance: %w", err)
	}

	// No row matched: either the user is missing or the guard failed.
	user, err = r.GetByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// SetBalance sets a user's balance to an exact value.
// Used primarily for admin operations.
func (r *UserRepository) SetBalance(ctx context.Context, userID int64, balance int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET balance = $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, balance))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to set balance: %w", err)
	}
	return user, nil
}

// GetTopUsers retrieves the top N users by balance.
func (r *UserRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY balance DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// UpdateDailyClaim updates the user's last daily claim timestamp.
func (r *UserRepository) UpdateDailyClaim(ctx context.Context, userID int64, claimTime int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET last_daily_claim = $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, claimTime))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update daily claim: %w", err)
	}
	return user, nil
}

// CanClaimDaily checks if a user can claim their daily bonus.
// Returns true if the cooldown has passed, or if never claimed.
// Also returns the remaining time until next claim if not eligible.
func (r *UserRepository) CanClaimDaily(ctx context.Context, userID int64, cooldownHours int) (bool, time.Duration, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return false, 0, err
	}

	if user.LastDailyClaim == 0 {
		return true, 0, nil
	}

	lastClaim := time.Unix(user.LastDailyClaim, 0)
	cooldown := time.Duration(cooldownHours) * time.Hour
	nextClaimTime := lastClaim.Add(cooldown)
	now := time.Now()

	if !now.Before(nextClaimTime) {
		return true, 0, nil
	}

	return false, nextClaimTime.Sub(now), nil
}

// UpdateUsername updates a user's display name.
func (r *UserRepository) UpdateUsername(ctx context.Context, userID int64, username string) error {
	const query = `
		UPDATE users
		SET username = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Exists checks if a user with the given ID exists.
func (r *UserRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}

	return exists, nil
}
