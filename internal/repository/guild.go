package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ponybot/internal/model"
)

// DefaultLanguage is used for chats with no stored settings.
const DefaultLanguage = "en"

// GuildRepository handles per-chat settings persistence.
type GuildRepository struct {
	pool *pgxpool.Pool
}

// NewGuildRepository creates a new GuildRepository instance.
func NewGuildRepository(pool *pgxpool.Pool) *GuildRepository {
	return &GuildRepository{pool: pool}
}

// Get retrieves settings for a chat, falling back to defaults when the
// chat has never been configured.
func (r *GuildRepository) Get(ctx context.Context, chatID int64) (*model.GuildSettings, error) {
	const query = `
		SELECT chat_id, spawn_channel_id, language, updated_at
		FROM guild_settings
		WHERE chat_id = $1
	`

	var gs model.GuildSettings
	err := r.pool.QueryRow(ctx, query, chatID).Scan(
		&gs.ChatID,
		&gs.SpawnChannelID,
		&gs.Language,
		&gs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.GuildSettings{ChatID: chatID, Language: DefaultLanguage}, nil
		}
		return nil, fmt.Errorf("failed to get guild settings: %w", err)
	}

	return &gs, nil
}

// SetSpawnChannel sets the channel ponies spawn in for a chat.
func (r *GuildRepository) SetSpawnChannel(ctx context.Context, chatID, channelID int64) error {
	const query = `
		INSERT INTO guild_settings (chat_id, spawn_channel_id, language, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (chat_id)
		DO UPDATE SET spawn_channel_id = $2, updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, chatID, channelID, DefaultLanguage)
	if err != nil {
		return fmt.Errorf("failed to set spawn channel: %w", err)
	}

	return nil
}

// SetLanguage sets the reply language for a chat.
func (r *GuildRepository) SetLanguage(ctx context.Context, chatID int64, language string) error {
	const query = `
		INSERT INTO guild_settings (chat_id, spawn_channel_id, language, updated_at)
		VALUES ($1, 0, $2, NOW())
		ON CONFLICT (chat_id)
		DO UPDATE SET language = $2, updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, chatID, language)
	if err != nil {
		return fmt.Errorf("failed to set language: %w", err)
	}

	return nil
}

// ListSpawnTargets retrieves all chats with a configured spawn channel.
func (r *GuildRepository) ListSpawnTargets(ctx context.Context) ([]*model.GuildSettings, error) {
	const query = `
		SELECT chat_id, spawn_channel_id, language, updated_at
		FROM guild_settings
		WHERE spawn_channel_id != 0
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list spawn targets: %w", err)
	}
	defer rows.Close()

	var targets []*model.GuildSettings
	for rows.Next() {
		var gs model.GuildSettings
		err := rows.Scan(&gs.ChatID, &gs.SpawnChannelID, &gs.Language, &gs.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guild settings: %w", err)
		}
		targets = append(targets, &gs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spawn targets: %w", err)
	}

	return targets, nil
}
