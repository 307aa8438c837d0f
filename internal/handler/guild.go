package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"ponybot/internal/repository"
)

// supportedLanguages lists the reply languages a chat may pick.
var supportedLanguages = map[string]bool{
	"en": true,
	"de": true,
	"es": true,
}

// GuildHandler handles per-chat configuration commands. Registered
// behind the admin middleware.
type GuildHandler struct {
	guildRepo *repository.GuildRepository
}

// NewGuildHandler creates a new GuildHandler.
func NewGuildHandler(guildRepo *repository.GuildRepository) *GuildHandler {
	return &GuildHandler{guildRepo: guildRepo}
}

// HandleSetSpawn handles /setspawn, marking the current chat as a spawn
// target. /setspawn off disables spawns for the chat.
func (h *GuildHandler) HandleSetSpawn(c tele.Context) error {
	ctx := context.Background()
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	args := c.Args()
	if len(args) > 0 && strings.EqualFold(args[0], "off") {
		if err := h.guildRepo.SetSpawnChannel(ctx, chat.ID, 0); err != nil {
			return c.Reply("❌ Could not update spawn settings")
		}
		return c.Reply("🚫 Wild ponies will no longer spawn here")
	}

	if err := h.guildRepo.SetSpawnChannel(ctx, chat.ID, chat.ID); err != nil {
		return c.Reply("❌ Could not update spawn settings")
	}
	return c.Reply("🌿 Wild ponies will now spawn in this chat!")
}

// HandleSetLang handles /setlang <code>.
func (h *GuildHandler) HandleSetLang(c tele.Context) error {
	ctx := context.Background()
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		settings, err := h.guildRepo.Get(ctx, chat.ID)
		if err != nil {
			return c.Reply("❌ Could not fetch chat settings")
		}
		return c.Reply(fmt.Sprintf("🌐 Current language: %s\nUsage: /setlang <en|de|es>", settings.Language))
	}

	lang := strings.ToLower(args[0])
	if !supportedLanguages[lang] {
		return c.Reply("❌ Unsupported language. Available: en, de, es")
	}

	if err := h.guildRepo.SetLanguage(ctx, chat.ID, lang); err != nil {
		return c.Reply("❌ Could not update chat settings")
	}
	return c.Reply(fmt.Sprintf("🌐 Language set to %s", lang))
}
