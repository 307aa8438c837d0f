package handler

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"ponybot/internal/service"
)

// PonyHandler handles catching and collection commands.
type PonyHandler struct {
	accountService *service.AccountService
	spawner        *service.Spawner
}

// NewPonyHandler creates a new PonyHandler.
func NewPonyHandler(accountService *service.AccountService, spawner *service.Spawner) *PonyHandler {
	return &PonyHandler{
		accountService: accountService,
		spawner:        spawner,
	}
}

// HandleCatch handles /catch. First pony to grab the spawn keeps it.
func (h *PonyHandler) HandleCatch(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}

	species, reward, err := h.spawner.TryCatch(ctx, chat.ID, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrNothingToCatch) {
			return c.Reply("👀 There's no wild pony here right now")
		}
		return c.Reply("❌ The pony slipped away, please try again")
	}

	return c.Reply(fmt.Sprintf(
		"🎉 @%s caught %s! (+%d bits)",
		senderName(sender), species.Name, reward,
	))
}

// HandlePonies handles /ponies, listing the sender's collection.
func (h *PonyHandler) HandlePonies(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	collection, err := h.spawner.Collection(ctx, sender.ID, 30)
	if err != nil {
		return c.Reply("❌ Could not fetch your collection, please try again later")
	}
	if len(collection) == 0 {
		return c.Reply("🧺 Your stable is empty. Wait for a wild pony and /catch it!")
	}

	msg := fmt.Sprintf("🏠 @%s's stable:\n", senderName(sender))
	for _, pony := range collection {
		msg += fmt.Sprintf("🦄 %s — %s\n", pony.Name, pony.CaughtAt.Format("Jan 2"))
	}
	return c.Reply(msg)
}
