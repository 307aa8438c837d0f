package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ponybot/internal/model"
)

// ErrInsufficientCards is returned when a removal would take more copies
// of a card than the user holds.
var ErrInsufficientCards = errors.New("not enough cards")

// CardRepository handles per-user trading card holdings.
type CardRepository struct {
	pool *pgxpool.Pool
}

// NewCardRepository creates a new CardRepository instance.
func NewCardRepository(pool *pgxpool.Pool) *CardRepository {
	return &CardRepository{pool: pool}
}

// AddCards grants copies of a card to a user.
func (r *CardRepository) AddCards(ctx context.Context, userID, cardID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	const query = `
		INSERT INTO user_cards (user_id, card_id, quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, card_id)
		DO UPDATE SET quantity = user_cards.quantity + $3, updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, userID, cardID, quantity)
	if err != nil {
		return fmt.Errorf("failed to add cards: %w", err)
	}

	return nil
}

// RemoveCards takes copies of a card from a user. The quantity guard lives
// in the UPDATE itself, the same pattern as the conditional balance debit,
// so a concurrent trade cannot take cards the user no longer has.
func (r *CardRepository) RemoveCards(ctx context.Context, userID, cardID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	const query = `
		UPDATE user_cards
		SET quantity = quantity - $3, updated_at = NOW()
		WHERE user_id = $1 AND card_id = $2 AND quantity >= $3
	`

	result, err := r.pool.Exec(ctx, query, userID, cardID, quantity)
	if err != nil {
		return fmt.Errorf("failed to remove cards: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrInsufficientCards
	}

	return nil
}

// GetHoldings retrieves a user's card holdings with card names.
func (r *CardRepository) GetHoldings(ctx context.Context, userID int64) ([]*model.UserCard, error) {
	const query = `
		SELECT uc.user_id, uc.card_id, c.name, uc.quantity
		FROM user_cards uc
		JOIN cards c ON uc.card_id = c.id
		WHERE uc.user_id = $1 AND uc.quantity > 0
		ORDER BY c.rarity DESC, c.name
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	var cards []*model.UserCard
	for rows.Next() {
		var uc model.UserCard
		err := rows.Scan(&uc.UserID, &uc.CardID, &uc.CardName, &uc.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		cards = append(cards, &uc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return cards, nil
}

// GetQuantity returns how many copies of one card a user holds.
func (r *CardRepository) GetQuantity(ctx context.Context, userID, cardID int64) (int, error) {
	const query = `SELECT COALESCE(quantity, 0) FROM user_cards WHERE user_id = $1 AND card_id = $2`

	var quantity int
	err := r.pool.QueryRow(ctx, query, userID, cardID).Scan(&quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get quantity: %w", err)
	}

	return quantity, nil
}
