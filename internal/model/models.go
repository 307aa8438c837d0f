// Package model defines the data models for the pony bot.
package model

import "time"

// User represents a chat platform user account in the economy.
type User struct {
	UserID         int64     `db:"user_id"`
	Username       string    `db:"username"`
	Balance        int64     `db:"balance"`
	LastDailyClaim int64     `db:"last_daily_claim"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Transaction represents a balance change record.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// PonySpecies is one entry in the pony catalog.
type PonySpecies struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Rarity int    `db:"rarity"`
	// SeasonMonth restricts seasonal ponies to one spawn month (1-12, 0 for any).
	SeasonMonth int `db:"season_month"`
}

// CaughtPony is one pony owned by a user.
type CaughtPony struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	SpeciesID int64     `db:"species_id"`
	Name      string    `db:"name"`
	CaughtAt  time.Time `db:"caught_at"`
}

// UserCard is a user's holding of one trading card type.
type UserCard struct {
	UserID   int64  `db:"user_id"`
	CardID   int64  `db:"card_id"`
	CardName string `db:"card_name"`
	Quantity int    `db:"quantity"`
}

// GuildSettings holds per-chat configuration.
type GuildSettings struct {
	ChatID         int64     `db:"chat_id"`
	SpawnChannelID int64     `db:"spawn_channel_id"`
	Language       string    `db:"language"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeInitial       = "initial"        // Initial balance on account creation
	TxTypeDaily         = "daily"          // Daily bonus claim
	TxTypeTransfer      = "transfer"       // User-to-user transfer
	TxTypeChallengeWin  = "challenge_win"  // Winnings from a two-player game
	TxTypeChallengeLoss = "challenge_loss" // Losses from a two-player game
	TxTypeSlot          = "slot"           // Slot machine result
	TxTypeCatch         = "catch"          // Reward for catching a spawned pony
	TxTypeAdminAdjust   = "admin_adjust"   // Manual balance correction
)

// GameTransactionTypes returns the transaction types produced by games.
func GameTransactionTypes() []string {
	return []string{TxTypeChallengeWin, TxTypeChallengeLoss, TxTypeSlot}
}
