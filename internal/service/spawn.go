package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ponybot/internal/ledger"
	"ponybot/internal/model"
	"ponybot/internal/repository"
	"ponybot/internal/session"
)

// ErrNothingToCatch is returned when no pony is currently up for grabs in
// the chat.
var ErrNothingToCatch = errors.New("nothing to catch right now")

// SpawnAnnouncer delivers spawn events to a chat. Implemented by the bot
// layer; errors are logged and swallowed.
type SpawnAnnouncer interface {
	PonyAppeared(chatID int64, species *model.PonySpecies) error
	PonyEscaped(chatID int64, species *model.PonySpecies) error
}

// Spawner periodically drops a wild pony into each configured chat. The
// first user to catch it within the window claims the pony and a bit
// reward; otherwise it escapes.
type Spawner struct {
	guildRepo *repository.GuildRepository
	ponyRepo  *repository.PonyRepository
	ledger    *ledger.Ledger
	announcer SpawnAnnouncer

	interval    time.Duration
	catchWindow time.Duration
	reward      int64

	mu     sync.Mutex
	active map[int64]*model.PonySpecies
	sched  *session.Scheduler
}

// NewSpawner creates a Spawner. Call Run to start it.
func NewSpawner(
	guildRepo *repository.GuildRepository,
	ponyRepo *repository.PonyRepository,
	led *ledger.Ledger,
	announcer SpawnAnnouncer,
	interval, catchWindow time.Duration,
	reward int64,
) *Spawner {
	return &Spawner{
		guildRepo:   guildRepo,
		ponyRepo:    ponyRepo,
		ledger:      led,
		announcer:   announcer,
		interval:    interval,
		catchWindow: catchWindow,
		reward:      reward,
		active:      make(map[int64]*model.PonySpecies),
		sched:       session.NewScheduler(),
	}
}

// Run spawns ponies on the configured interval until ctx is cancelled.
func (s *Spawner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.sched.Stop()

	log.Info().
		Dur("interval", s.interval).
		Dur("catch_window", s.catchWindow).
		Msg("Spawner started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Spawner stopped")
			return
		case <-ticker.C:
			s.spawnAll(ctx)
		}
	}
}

// spawnAll drops one pony into every configured chat that has no pony
// pending. Seasonal species only spawn in their month.
func (s *Spawner) spawnAll(ctx context.Context) {
	targets, err := s.guildRepo.ListSpawnTargets(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list spawn targets")
		return
	}

	month := int(time.Now().Month())
	for _, target := range targets {
		chatID := target.SpawnChannelID

		s.mu.Lock()
		_, pending := s.active[chatID]
		s.mu.Unlock()
		if pending {
			continue
		}

		species, err := s.ponyRepo.RandomSpecies(ctx, month)
		if err != nil {
			if !errors.Is(err, repository.ErrNoSpawnableSpecies) {
				log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to pick species")
			}
			continue
		}

		s.mu.Lock()
		s.active[chatID] = species
		s.mu.Unlock()

		s.sched.Arm(spawnKey(chatID), s.catchWindow, func() { s.escape(chatID) })

		log.Info().
			Int64("chat_id", chatID).
			Str("species", species.Name).
			Msg("Pony spawned")

		if s.announcer != nil {
			if err := s.announcer.PonyAppeared(chatID, species); err != nil {
				log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to announce spawn")
			}
		}
	}
}

// escape removes an uncaught pony when its window closes.
func (s *Spawner) escape(chatID int64) {
	s.mu.Lock()
	species, ok := s.active[chatID]
	if ok {
		delete(s.active, chatID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	log.Info().Int64("chat_id", chatID).Str("species", species.Name).Msg("Pony escaped")

	if s.announcer != nil {
		if err := s.announcer.PonyEscaped(chatID, species); err != nil {
			log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to announce escape")
		}
	}
}

// TryCatch claims the pending pony in a chat for userID. The map delete
// under the lock is the claim; of any number of racing catchers exactly
// one gets the pony.
func (s *Spawner) TryCatch(ctx context.Context, chatID, userID int64) (*model.PonySpecies, int64, error) {
	s.mu.Lock()
	species, ok := s.active[chatID]
	if ok {
		delete(s.active, chatID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, 0, ErrNothingToCatch
	}

	s.sched.Cancel(spawnKey(chatID))

	if _, err := s.ponyRepo.AddCatch(ctx, userID, species.ID); err != nil {
		return nil, 0, fmt.Errorf("failed to record catch: %w", err)
	}

	desc := fmt.Sprintf("caught %s", species.Name)
	if _, err := s.ledger.Credit(ctx, userID, s.reward, model.TxTypeCatch, &desc); err != nil {
		return nil, 0, fmt.Errorf("failed to credit catch reward: %w", err)
	}

	log.Info().
		Int64("chat_id", chatID).
		Int64("user_id", userID).
		Str("species", species.Name).
		Msg("Pony caught")

	return species, s.reward, nil
}

// Collection retrieves a user's most recent catches.
func (s *Spawner) Collection(ctx context.Context, userID int64, limit int) ([]*model.CaughtPony, error) {
	return s.ponyRepo.GetCollection(ctx, userID, limit)
}

func spawnKey(chatID int64) string {
	return fmt.Sprintf("spawn:%d", chatID)
}
