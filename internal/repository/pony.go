package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ponybot/internal/model"
)

// ErrNoSpawnableSpecies is returned when the catalog has no species
// eligible for the current month.
var ErrNoSpawnableSpecies = errors.New("no spawnable pony species")

// PonyRepository handles the pony catalog and per-user collections.
type PonyRepository struct {
	pool *pgxpool.Pool
}

// NewPonyRepository creates a new PonyRepository instance.
func NewPonyRepository(pool *pgxpool.Pool) *PonyRepository {
	return &PonyRepository{pool: pool}
}

// RandomSpecies picks a random species eligible for the given month.
// Seasonal species (season_month != 0) are only eligible in their month;
// rarity weights the draw so common ponies appear more often.
func (r *PonyRepository) RandomSpecies(ctx context.Context, month int) (*model.PonySpecies, error) {
	const query = `
		SELECT id, name, rarity, season_month
		FROM pony_species
		WHERE season_month = 0 OR season_month = $1
		ORDER BY random() * rarity
		LIMIT 1
	`

	var sp model.PonySpecies
	err := r.pool.QueryRow(ctx, query, month).Scan(&sp.ID, &sp.Name, &sp.Rarity, &sp.SeasonMonth)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSpawnableSpecies
		}
		return nil, fmt.Errorf("failed to pick pony species: %w", err)
	}

	return &sp, nil
}

// AddCatch records a pony caught by a user.
func (r *PonyRepository) AddCatch(ctx context.Context, userID, speciesID int64) (*model.CaughtPony, error) {
	const query = `
		INSERT INTO caught_ponies (user_id, species_id, caught_at)
		VALUES ($1, $2, NOW())
		RETURNING id, user_id, species_id, caught_at
	`

	var cp model.CaughtPony
	err := r.pool.QueryRow(ctx, query, userID, speciesID).Scan(
		&cp.ID,
		&cp.UserID,
		&cp.SpeciesID,
		&cp.CaughtAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record catch: %w", err)
	}

	return &cp, nil
}

// GetCollection retrieves a user's caught ponies with species names, newest first.
func (r *PonyRepository) GetCollection(ctx context.Context, userID int64, limit int) ([]*model.CaughtPony, error) {
	const query = `
		SELECT c.id, c.user_id, c.species_id, s.name, c.caught_at
		FROM caught_ponies c
		JOIN pony_species s ON c.species_id = s.id
		WHERE c.user_id = $1
		ORDER BY c.caught_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	defer rows.Close()

	var ponies []*model.CaughtPony
	for rows.Next() {
		var cp model.CaughtPony
		err := rows.Scan(&cp.ID, &cp.UserID, &cp.SpeciesID, &cp.Name, &cp.CaughtAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan caught pony: %w", err)
		}
		ponies = append(ponies, &cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection: %w", err)
	}

	return ponies, nil
}

// CountBySpecies returns how many of one species a user has caught.
func (r *PonyRepository) CountBySpecies(ctx context.Context, userID, speciesID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM caught_ponies WHERE user_id = $1 AND species_id = $2`

	var count int
	err := r.pool.QueryRow(ctx, query, userID, speciesID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count catches: %w", err)
	}

	return count, nil
}
