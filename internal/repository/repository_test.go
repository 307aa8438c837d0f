// Tests use testcontainers-go to spin up a PostgreSQL container and are
// skipped when Docker is not available.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ponybot/internal/model"
)

const testStartingBalance = 500

// checkDockerAvailable checks if Docker is available and running.
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, applyTestSchema(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// applyTestSchema creates the tables the repositories expect.
func applyTestSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 500,
			last_daily_claim BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS pony_species (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			rarity INT NOT NULL DEFAULT 1,
			season_month INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS caught_ponies (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			species_id BIGINT NOT NULL REFERENCES pony_species(id),
			caught_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS cards (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			rarity INT NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS user_cards (
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			card_id BIGINT NOT NULL REFERENCES cards(id),
			quantity INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, card_id)
		);
		CREATE TABLE IF NOT EXISTS guild_settings (
			chat_id BIGINT PRIMARY KEY,
			spawn_channel_id BIGINT NOT NULL DEFAULT 0,
			language VARCHAR(8) NOT NULL DEFAULT 'en',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO pony_species (name, rarity, season_month) VALUES
			('Meadow Trotter', 1, 0),
			('Star Gazer', 2, 0),
			('Frost Whisper', 3, 12),
			('Golden Solstice', 5, 6)
		ON CONFLICT (name) DO NOTHING;
		INSERT INTO cards (name, rarity) VALUES
			('Apple Orchard', 1),
			('Horseshoe Charm', 2)
		ON CONFLICT (name) DO NOTHING;
	`)
	return err
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool, testStartingBalance)
	ctx := context.Background()

	user, err := repo.Create(ctx, 12345, "twilight")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.UserID)
	assert.Equal(t, "twilight", user.Username)
	assert.Equal(t, int64(testStartingBalance), user.Balance)
	assert.Equal(t, int64(0), user.LastDailyClaim)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool, testStartingBalance)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, 12345, "twilight")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12345), user.UserID)

	user, created, err = repo.GetOrCreate(ctx, 12345, "twilight")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(12345), user.UserID)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_AdjustBalanceIf(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool, testStartingBalance)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "twilight")
	require.NoError(t, err)

	// Debit within the balance succeeds.
	user, ok, err := repo.AdjustBalanceIf(ctx, 12345, 300)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(200), user.Balance)

	// Debit past the balance is refused and leaves it untouched.
	user, ok, err = repo.AdjustBalanceIf(ctx, 12345, 201)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(200), user.Balance)

	// Debit of the exact remainder drains to zero, never below.
	user, ok, err = repo.AdjustBalanceIf(ctx, 12345, 200)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), user.Balance)

	_, _, err = repo.AdjustBalanceIf(ctx, 99999, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetTopUsers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool, testStartingBalance)
	ctx := context.Background()

	_, _ = repo.Create(ctx, 1, "applejack")
	_, _ = repo.Create(ctx, 2, "rarity")
	_, _ = repo.Create(ctx, 3, "rainbow")

	_, _ = repo.SetBalance(ctx, 1, 3000)
	_, _ = repo.SetBalance(ctx, 2, 1000)
	_, _ = repo.SetBalance(ctx, 3, 5000)

	users, err := repo.GetTopUsers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, int64(3), users[0].UserID)
	assert.Equal(t, int64(1), users[1].UserID)
	assert.Equal(t, int64(2), users[2].UserID)
}

func TestUserRepository_DailyClaim(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool, testStartingBalance)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "twilight")
	require.NoError(t, err)

	canClaim, remaining, err := repo.CanClaimDaily(ctx, 12345, 24)
	require.NoError(t, err)
	assert.True(t, canClaim)
	assert.Equal(t, time.Duration(0), remaining)

	_, err = repo.UpdateDailyClaim(ctx, 12345, time.Now().Unix())
	require.NoError(t, err)

	canClaim, remaining, err = repo.CanClaimDaily(ctx, 12345, 24)
	require.NoError(t, err)
	assert.False(t, canClaim)
	assert.True(t, remaining > 0)

	oldTime := time.Now().Add(-25 * time.Hour).Unix()
	_, err = repo.UpdateDailyClaim(ctx, 12345, oldTime)
	require.NoError(t, err)

	canClaim, _, err = repo.CanClaimDaily(ctx, 12345, 24)
	require.NoError(t, err)
	assert.True(t, canClaim)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_CreateAndHistory(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool, testStartingBalance)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 12345, "twilight")
	require.NoError(t, err)

	desc := "coinflip vs rarity"
	tx, err := txRepo.Create(ctx, 12345, 50, model.TxTypeChallengeWin, &desc)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), tx.UserID)
	assert.Equal(t, int64(50), tx.Amount)
	assert.Equal(t, model.TxTypeChallengeWin, tx.Type)
	require.NotNil(t, tx.Description)
	assert.Equal(t, desc, *tx.Description)

	_, _ = txRepo.Create(ctx, 12345, -30, model.TxTypeSlot, nil)
	_, _ = txRepo.Create(ctx, 12345, 100, model.TxTypeDaily, nil)

	txs, err := txRepo.GetByUserID(ctx, 12345, 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, model.TxTypeDaily, txs[0].Type)
}

func TestTransactionRepository_GetUserNetGameProfit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool, testStartingBalance)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 12345, "twilight")
	require.NoError(t, err)

	_, _ = txRepo.Create(ctx, 12345, 500, model.TxTypeChallengeWin, nil)
	_, _ = txRepo.Create(ctx, 12345, -200, model.TxTypeChallengeLoss, nil)
	_, _ = txRepo.Create(ctx, 12345, -50, model.TxTypeSlot, nil)
	// Non-game types must not count.
	_, _ = txRepo.Create(ctx, 12345, 100, model.TxTypeDaily, nil)
	_, _ = txRepo.Create(ctx, 12345, 100, model.TxTypeTransfer, nil)
	_, _ = txRepo.Create(ctx, 12345, 100, model.TxTypeCatch, nil)

	profit, err := txRepo.GetUserNetGameProfit(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(250), profit)
}

// ============================================================================
// CardRepository Tests
// ============================================================================

func TestCardRepository_ConditionalRemove(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool, testStartingBalance)
	cardRepo := NewCardRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "applejack")
	require.NoError(t, err)

	require.NoError(t, cardRepo.AddCards(ctx, 1, 1, 3))

	// Removing more than held is refused and leaves holdings intact.
	err = cardRepo.RemoveCards(ctx, 1, 1, 5)
	assert.ErrorIs(t, err, ErrInsufficientCards)

	qty, err := cardRepo.GetQuantity(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)

	// Removing exactly what is held drains to zero.
	require.NoError(t, cardRepo.RemoveCards(ctx, 1, 1, 3))
	qty, err = cardRepo.GetQuantity(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	// Never-held card reads as zero.
	qty, err = cardRepo.GetQuantity(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestCardRepository_GetHoldings(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool, testStartingBalance)
	cardRepo := NewCardRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "applejack")
	require.NoError(t, err)

	require.NoError(t, cardRepo.AddCards(ctx, 1, 1, 2))
	require.NoError(t, cardRepo.AddCards(ctx, 1, 2, 1))
	// Drained holdings are hidden.
	require.NoError(t, cardRepo.RemoveCards(ctx, 1, 1, 2))

	holdings, err := cardRepo.GetHoldings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(2), holdings[0].CardID)
	assert.Equal(t, "Horseshoe Charm", holdings[0].CardName)
	assert.Equal(t, 1, holdings[0].Quantity)
}

// ============================================================================
// PonyRepository Tests
// ============================================================================

func TestPonyRepository_RandomSpeciesRespectsSeason(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ponyRepo := NewPonyRepository(pool)
	ctx := context.Background()

	// March has no seasonal species, so only year-round ponies may appear.
	for i := 0; i < 20; i++ {
		sp, err := ponyRepo.RandomSpecies(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 0, sp.SeasonMonth)
	}

	// In December the winter pony is eligible too.
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sp, err := ponyRepo.RandomSpecies(ctx, 12)
		require.NoError(t, err)
		assert.NotEqual(t, "Golden Solstice", sp.Name)
		seen[sp.Name] = true
	}
	assert.True(t, len(seen) >= 1)
}

func TestPonyRepository_Catches(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool, testStartingBalance)
	ponyRepo := NewPonyRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "fluttershy")
	require.NoError(t, err)

	caught, err := ponyRepo.AddCatch(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), caught.UserID)
	assert.Equal(t, int64(1), caught.SpeciesID)
	assert.False(t, caught.CaughtAt.IsZero())

	_, err = ponyRepo.AddCatch(ctx, 1, 1)
	require.NoError(t, err)
	_, err = ponyRepo.AddCatch(ctx, 1, 2)
	require.NoError(t, err)

	collection, err := ponyRepo.GetCollection(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, collection, 3)
	assert.NotEmpty(t, collection[0].Name)

	count, err := ponyRepo.CountBySpecies(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// ============================================================================
// GuildRepository Tests
// ============================================================================

func TestGuildRepository_Settings(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	guildRepo := NewGuildRepository(pool)
	ctx := context.Background()

	// Unknown chat falls back to defaults.
	settings, err := guildRepo.Get(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), settings.ChatID)
	assert.Equal(t, DefaultLanguage, settings.Language)
	assert.Equal(t, int64(0), settings.SpawnChannelID)

	// Enabling spawns upserts the row.
	require.NoError(t, guildRepo.SetSpawnChannel(ctx, -100, -100))
	settings, err = guildRepo.Get(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), settings.SpawnChannelID)

	// Changing language keeps the spawn channel.
	require.NoError(t, guildRepo.SetLanguage(ctx, -100, "de"))
	settings, err = guildRepo.Get(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, "de", settings.Language)
	assert.Equal(t, int64(-100), settings.SpawnChannelID)

	// Disabled chats drop out of the spawn target list.
	require.NoError(t, guildRepo.SetSpawnChannel(ctx, -200, -200))
	require.NoError(t, guildRepo.SetSpawnChannel(ctx, -200, 0))

	targets, err := guildRepo.ListSpawnTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, int64(-100), targets[0].ChatID)
}
