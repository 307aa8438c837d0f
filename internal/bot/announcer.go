package bot

import (
	"fmt"
	"sync"

	tele "gopkg.in/telebot.v3"

	"ponybot/internal/model"
)

// Announcer posts spawn events into chats. It implements
// service.SpawnAnnouncer and is created before the bot exists, so the
// bot instance is bound late; announcements before Bind are dropped.
type Announcer struct {
	mu  sync.RWMutex
	bot *tele.Bot
}

// NewAnnouncer creates an unbound Announcer.
func NewAnnouncer() *Announcer {
	return &Announcer{}
}

// Bind attaches the bot instance used for sending.
func (a *Announcer) Bind(b *tele.Bot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bot = b
}

func (a *Announcer) send(chatID int64, text string) error {
	a.mu.RLock()
	b := a.bot
	a.mu.RUnlock()
	if b == nil {
		return nil
	}
	_, err := b.Send(tele.ChatID(chatID), text)
	return err
}

// PonyAppeared announces a wild pony in the chat.
func (a *Announcer) PonyAppeared(chatID int64, species *model.PonySpecies) error {
	return a.send(chatID, spawnText(species))
}

func spawnText(species *model.PonySpecies) string {
	return fmt.Sprintf(
		"🌿 A wild %s pony appeared: %s!\nType /catch before it runs off!",
		rarityLabel(species.Rarity), species.Name,
	)
}

// rarityLabel maps a species rarity tier to its display name.
func rarityLabel(rarity int) string {
	switch {
	case rarity >= 5:
		return "legendary"
	case rarity == 4:
		return "epic"
	case rarity == 3:
		return "rare"
	case rarity == 2:
		return "uncommon"
	default:
		return "common"
	}
}

// PonyEscaped announces that the pony left uncaught.
func (a *Announcer) PonyEscaped(chatID int64, species *model.PonySpecies) error {
	return a.send(chatID, fmt.Sprintf("💨 %s galloped away...", species.Name))
}
