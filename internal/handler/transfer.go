package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"ponybot/internal/ledger"
	"ponybot/internal/service"
)

// TransferHandler handles bit transfers between users.
type TransferHandler struct {
	accountService  *service.AccountService
	transferService *service.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(accountService *service.AccountService, transferService *service.TransferService) *TransferHandler {
	return &TransferHandler{
		accountService:  accountService,
		transferService: transferService,
	}
}

// HandlePay handles the /pay command.
// Format: /pay <amount>, sent as a reply to the recipient's message.
func (h *TransferHandler) HandlePay(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if c.Message() == nil || c.Message().ReplyTo == nil || c.Message().ReplyTo.Sender == nil {
		return c.Reply("❌ Reply to somepony's message with /pay <amount>")
	}
	target := c.Message().ReplyTo.Sender

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /pay <amount> (as a reply)")
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || amount <= 0 {
		return c.Reply("❌ Amount must be a positive number")
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}
	if _, _, err := h.accountService.EnsureUser(ctx, target.ID, senderName(target)); err != nil {
		return c.Reply("❌ Could not find the recipient")
	}

	if err := h.transferService.Transfer(ctx, sender.ID, target.ID, amount); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return c.Reply("❌ Not enough bits")
		case errors.Is(err, ledger.ErrSelfTransfer):
			return c.Reply("❌ You cannot pay yourself")
		case errors.Is(err, service.ErrUserNotFound):
			return c.Reply("❌ The recipient has no account yet")
		default:
			return c.Reply("❌ Transfer failed, please try again later")
		}
	}

	newBalance, _ := h.accountService.GetBalance(ctx, sender.ID)
	return c.Reply(fmt.Sprintf(
		"✅ Sent %d bits to @%s\n💰 Your balance: %d bits",
		amount, senderName(target), newBalance,
	))
}
