// Package main is the entry point for the pony community bot.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ponybot/internal/bot"
	"ponybot/internal/challenge"
	"ponybot/internal/config"
	"ponybot/internal/game"
	"ponybot/internal/game/coinflip"
	"ponybot/internal/game/dice"
	"ponybot/internal/game/rps"
	"ponybot/internal/game/tictactoe"
	"ponybot/internal/ledger"
	"ponybot/internal/pkg/db"
	"ponybot/internal/pkg/lock"
	"ponybot/internal/repository"
	"ponybot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool, cfg.Economy.StartingBalance)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	ponyRepo := repository.NewPonyRepository(dbPool.Pool)
	cardRepo := repository.NewCardRepository(dbPool.Pool)
	guildRepo := repository.NewGuildRepository(dbPool.Pool)

	// The ledger is the single write path for balances.
	userLock := lock.NewUserLock()
	led := ledger.New(userRepo, txRepo, userLock)

	// Register games
	registry := game.NewRegistry()
	for _, rules := range []game.Rules{
		coinflip.New(),
		dice.New(),
		rps.New(),
		tictactoe.New(),
	} {
		if err := registry.Register(rules); err != nil {
			log.Fatal().Err(err).Str("game", rules.Name()).Msg("Failed to register game")
		}
	}
	log.Info().
		Int("game_count", registry.Count()).
		Strs("games", registry.Commands()).
		Msg("Games registered")

	// Challenge protocol
	protocol := challenge.New(registry, led, challenge.Config{
		ChallengeTimeout: cfg.Games.ChallengeTimeout,
		MoveTimeout:      cfg.Games.MoveTimeout,
		MaxStake:         cfg.Games.MaxStake,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	// Services
	accountService := service.NewAccountService(
		userRepo,
		txRepo,
		led,
		cfg.Daily.Reward,
		cfg.Daily.CooldownHours,
	)
	transferService := service.NewTransferService(userRepo, led)
	tradeService := service.NewTradeService(cardRepo, cfg.Games.TradeTimeout)

	announcer := bot.NewAnnouncer()
	spawner := service.NewSpawner(
		guildRepo,
		ponyRepo,
		led,
		announcer,
		cfg.Spawn.Interval,
		cfg.Spawn.CatchWindow,
		cfg.Spawn.Reward,
	)

	// Initialize bot
	deps := &bot.Dependencies{
		Config:          cfg,
		AccountService:  accountService,
		TransferService: transferService,
		TradeService:    tradeService,
		Spawner:         spawner,
		Protocol:        protocol,
		Ledger:          led,
		CardRepo:        cardRepo,
		GuildRepo:       guildRepo,
		Announcer:       announcer,
	}

	ponyBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Background spawn loop
	go spawner.Run(ctx)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		ponyBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	cancel()
	ponyBot.Stop()
	protocol.Stop()
	tradeService.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 500,
			last_daily_claim BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: pony catalog and catches
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_caught_ponies_user ON caught_ponies(user_id, caught_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: pony tables created")

	// Migration 4: seed the pony catalog
	_, err = pool.Exec(ctx, `
		INSERT INTO pony_species (name, rarity, season_month) VALUES
			('Meadow Trotter', 1, 0),
			('Cloud Hopper', 1, 0),
			('River Dancer', 2, 0),
			('Star Gazer', 2, 0),
			('Ember Mane', 3, 0),
			('Frost Whisper', 3, 12),
			('Blossom Breeze', 3, 4),
			('Harvest Moon', 3, 10),
			('Midnight Aurora', 5, 0),
			('Golden Solstice', 5, 6)
		ON CONFLICT (name) DO NOTHING;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: pony catalog seeded")

	// Migration 5: card catalog and holdings
	_, err = pool.Exec(ctx, `
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
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: card tables created")

	// Migration 6: seed the card catalog
	_, err = pool.Exec(ctx, `
		INSERT INTO cards (name, rarity) VALUES
			('Apple Orchard', 1),
			('Hay Bale', 1),
			('Horseshoe Charm', 2),
			('Rainbow Trail', 2),
			('Crystal Saddle', 3),
			('Sunfire Pendant', 3),
			('Alicorn Feather', 4),
			('Elements of Harmony', 5)
		ON CONFLICT (name) DO NOTHING;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 6: card catalog seeded")

	// Migration 7: per-chat settings
	_, err = pool.Exec(ctx, `
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
	log.Info().Msg("Migration 7: guild_settings table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
