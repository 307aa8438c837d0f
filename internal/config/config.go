// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Daily     DailyConfig     `mapstructure:"daily"`
	Economy   EconomyConfig   `mapstructure:"economy"`
	Games     GamesConfig     `mapstructure:"games"`
	Spawn     SpawnConfig     `mapstructure:"spawn"`
}

// BotConfig holds chat platform bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// DailyConfig holds daily bonus configuration.
type DailyConfig struct {
	Reward        int64 `mapstructure:"reward"`
	CooldownHours int   `mapstructure:"cooldown_hours"`
}

// EconomyConfig holds account defaults.
type EconomyConfig struct {
	StartingBalance int64 `mapstructure:"starting_balance"`
}

// GamesConfig holds game and challenge-engine configuration.
type GamesConfig struct {
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout"`
	MoveTimeout      time.Duration `mapstructure:"move_timeout"`
	TradeTimeout     time.Duration `mapstructure:"trade_timeout"`
	MaxStake         int64         `mapstructure:"max_stake"`
	Slot             SlotConfig    `mapstructure:"slot"`
}

// SlotConfig holds slot game configuration.
type SlotConfig struct {
	MaxBet          int64 `mapstructure:"max_bet"`
	CooldownSeconds int   `mapstructure:"cooldown_seconds"`
}

// SpawnConfig holds pony spawn configuration.
type SpawnConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	CatchWindow time.Duration `mapstructure:"catch_window"`
	Reward      int64         `mapstructure:"reward"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// e.g., BOT_TOKEN, DATABASE_HOST, GAMES_MAX_STAKE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ponybot")
	v.SetDefault("database.name", "ponybot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Economy defaults
	v.SetDefault("economy.starting_balance", 500)
	v.SetDefault("daily.reward", 100)
	v.SetDefault("daily.cooldown_hours", 24)

	// Challenge engine defaults
	v.SetDefault("games.challenge_timeout", "60s")
	v.SetDefault("games.move_timeout", "60s")
	v.SetDefault("games.trade_timeout", "300s")
	v.SetDefault("games.max_stake", 10000)
	v.SetDefault("games.slot.max_bet", 500)
	v.SetDefault("games.slot.cooldown_seconds", 5)

	// Spawn defaults
	v.SetDefault("spawn.interval", "30m")
	v.SetDefault("spawn.catch_window", "120s")
	v.SetDefault("spawn.reward", 50)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
