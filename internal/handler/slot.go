package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"ponybot/internal/game/slot"
	"ponybot/internal/ledger"
	"ponybot/internal/model"
	"ponybot/internal/service"
)

// SlotHandler handles the /slot command.
type SlotHandler struct {
	accountService *service.AccountService
	ledger         *ledger.Ledger
	maxBet         int64
}

// NewSlotHandler creates a new SlotHandler.
func NewSlotHandler(accountService *service.AccountService, led *ledger.Ledger, maxBet int64) *SlotHandler {
	return &SlotHandler{
		accountService: accountService,
		ledger:         led,
		maxBet:         maxBet,
	}
}

// HandleSlot handles /slot <bet>. The bet is debited up front; Telegram's
// slot animation supplies the spin value and the payout is credited from
// the evaluated result.
func (h *SlotHandler) HandleSlot(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /slot <bet>")
	}
	bet, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || bet <= 0 {
		return c.Reply("❌ Bet must be a positive number")
	}
	if h.maxBet > 0 && bet > h.maxBet {
		return c.Reply(fmt.Sprintf("❌ Max bet is %d bits", h.maxBet))
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}

	desc := "slot spin"
	if _, err := h.ledger.Debit(ctx, sender.ID, bet, model.TxTypeSlot, &desc); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return c.Reply("❌ Not enough bits for that bet")
		}
		return c.Reply("❌ Spin failed, please try again later")
	}

	// The animated dice message carries the spin value.
	msg, err := c.Bot().Send(c.Chat(), tele.Slot)
	if err != nil || msg == nil {
		// Refund; the spin never happened.
		if _, rbErr := h.ledger.Credit(ctx, sender.ID, bet, model.TxTypeSlot, &desc); rbErr != nil {
			log.Error().Err(rbErr).Int64("user_id", sender.ID).Msg("Failed to refund slot bet")
		}
		return c.Reply("❌ Spin failed, please try again later")
	}

	result, err := slot.Evaluate(msg.Dice.Value, bet, h.maxBet)
	if err != nil {
		log.Error().Err(err).Int("value", msg.Dice.Value).Msg("Failed to evaluate spin")
		return nil
	}

	// The bet is already taken, so the credit is bet+payout on a win and
	// bet on a push.
	winnings := bet + result.Payout
	if winnings > 0 {
		if _, err := h.ledger.Credit(ctx, sender.ID, winnings, model.TxTypeSlot, &desc); err != nil {
			log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to credit slot winnings")
			return c.Reply("❌ Payout failed, please contact an admin")
		}
	}

	balance, _ := h.accountService.GetBalance(ctx, sender.ID)

	switch {
	case result.Payout > 0:
		return c.Reply(fmt.Sprintf("🎰 %s\n🎊 Jackpot! You win %d bits! Balance: %d", result.Display(), result.Payout, balance))
	case result.Payout == 0:
		return c.Reply(fmt.Sprintf("🎰 %s\n😐 Push, your bet comes back. Balance: %d", result.Display(), balance))
	default:
		return c.Reply(fmt.Sprintf("🎰 %s\n😢 No match, you lose %d bits. Balance: %d", result.Display(), bet, balance))
	}
}
