// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"ponybot/internal/service"
)

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// senderName picks a display name for a Telegram user.
func senderName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// HandleStart handles the /start command, creating an account with the
// starting bits if the user is new.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, created, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender))
	if err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🦄 Welcome to the herd, @%s!\n\n"+
				"Your account starts with %d bits.\n\n"+
				"Commands:\n"+
				"/balance - check your bits\n"+
				"/daily - claim your daily bits\n"+
				"/top - richest ponies\n"+
				"/coinflip, /dice, /rps, /ttt - challenge somepony\n"+
				"/slot <bet> - spin the slots\n"+
				"/catch - catch a wild pony\n"+
				"/pay <amount> - send bits (reply to a message)",
			senderName(sender), user.Balance,
		))
	}

	return c.Reply(fmt.Sprintf("👋 Welcome back @%s! You have %d bits.", senderName(sender), user.Balance))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender))
	if err != nil {
		return c.Reply("❌ Could not fetch your balance, please try again later")
	}

	return c.Reply(fmt.Sprintf("💰 You have %d bits", user.Balance))
}

// HandleMy handles the /my command with an account summary.
func (h *AccountHandler) HandleMy(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender))
	if err != nil {
		return c.Reply("❌ Could not fetch your account, please try again later")
	}

	profit, _ := h.accountService.NetGameProfit(ctx, sender.ID)
	profitStr := fmt.Sprintf("%d", profit)
	if profit > 0 {
		profitStr = "+" + profitStr
	}

	return c.Reply(fmt.Sprintf(
		"📊 @%s\n"+
			"💰 Balance: %d bits\n"+
			"🎲 Game profit: %s bits",
		user.Username, user.Balance, profitStr,
	))
}

// HandleDaily handles the /daily command.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}

	reward, newBalance, err := h.accountService.ClaimDaily(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrDailyAlreadyClaimed) {
			return c.Reply("⏰ " + err.Error())
		}
		return c.Reply("❌ Claim failed, please try again later")
	}

	return c.Reply(fmt.Sprintf("✅ You claimed %d bits! Balance: %d bits", reward, newBalance))
}

// HandleTop handles the /top command with the richest users.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	users, err := h.accountService.GetTopUsers(ctx, 10)
	if err != nil {
		return c.Reply("❌ Could not fetch the leaderboard, please try again later")
	}
	if len(users) == 0 {
		return c.Reply("📊 Nopony has any bits yet")
	}

	msg := "🏆 Richest ponies\n"
	medals := []string{"🥇", "🥈", "🥉"}
	for i, user := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < 3 {
			rank = medals[i]
		}

		name := user.Username
		if name == "" {
			name = fmt.Sprintf("Pony%d", user.UserID)
		}
		msg += fmt.Sprintf("%s @%s: %d\n", rank, name, user.Balance)
	}

	return c.Reply(msg)
}
