package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"ponybot/internal/repository"
	"ponybot/internal/service"
	"ponybot/internal/session"
)

// TradeCallbackUnique is the telebot unique prefix for trade buttons.
const TradeCallbackUnique = "tr"

// TradeHandler handles card listing and trade offers.
type TradeHandler struct {
	accountService *service.AccountService
	tradeService   *service.TradeService
	cardRepo       *repository.CardRepository

	bot      *tele.Bot
	messages sync.Map
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(accountService *service.AccountService, tradeService *service.TradeService, cardRepo *repository.CardRepository) *TradeHandler {
	return &TradeHandler{
		accountService: accountService,
		tradeService:   tradeService,
		cardRepo:       cardRepo,
	}
}

// SetBot gives the handler a bot instance for background message edits.
func (h *TradeHandler) SetBot(b *tele.Bot) {
	h.bot = b
}

// HandleCards handles /cards, listing the sender's holdings.
func (h *TradeHandler) HandleCards(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	holdings, err := h.cardRepo.GetHoldings(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Could not fetch your cards, please try again later")
	}
	if len(holdings) == 0 {
		return c.Reply("🃏 You have no trading cards yet")
	}

	msg := fmt.Sprintf("🃏 @%s's cards:\n", senderName(sender))
	for _, card := range holdings {
		msg += fmt.Sprintf("#%d %s ×%d\n", card.CardID, card.CardName, card.Quantity)
	}
	return c.Reply(msg)
}

// HandleTrade handles /trade <give_id> <give_qty> <want_id> <want_qty>,
// sent as a reply to the trade partner.
func (h *TradeHandler) HandleTrade(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if c.Message() == nil || c.Message().ReplyTo == nil || c.Message().ReplyTo.Sender == nil {
		return c.Reply("❌ Reply to your trade partner's message with /trade <give_id> <give_qty> <want_id> <want_qty>")
	}
	target := c.Message().ReplyTo.Sender

	args := c.Args()
	if len(args) < 4 {
		return c.Reply("❌ Usage: /trade <give_id> <give_qty> <want_id> <want_qty>")
	}
	nums := make([]int64, 4)
	for i, arg := range args[:4] {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n <= 0 {
			return c.Reply("❌ All trade values must be positive numbers")
		}
		nums[i] = n
	}
	offer := service.TradeOffer{
		GiveCardID: nums[0],
		GiveQty:    int(nums[1]),
		WantCardID: nums[2],
		WantQty:    int(nums[3]),
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}
	if _, _, err := h.accountService.EnsureUser(ctx, target.ID, senderName(target)); err != nil {
		return c.Reply("❌ Could not find your trade partner")
	}

	sess, err := h.tradeService.Offer(ctx, sender.ID, target.ID, offer)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfTrade):
			return c.Reply("❌ You cannot trade with yourself")
		case errors.Is(err, service.ErrOfferNotCovered):
			return c.Reply("❌ You don't hold that many copies")
		case errors.Is(err, service.ErrTradePending):
			return c.Reply("❌ One of you already has a trade open")
		default:
			log.Error().Err(err).Msg("Failed to open trade")
			return c.Reply("❌ Could not open the trade")
		}
	}

	markup := &tele.ReplyMarkup{}
	btnAccept := markup.Data("✅ Accept", TradeCallbackUnique, sess.ID, "accept")
	btnDecline := markup.Data("❌ Decline", TradeCallbackUnique, sess.ID, "decline")
	btnCancel := markup.Data("✖ Withdraw", TradeCallbackUnique, sess.ID, "cancel")
	markup.Inline(markup.Row(btnAccept, btnDecline), markup.Row(btnCancel))

	msg := fmt.Sprintf(
		"🔄 @%s offers @%s a trade:\n"+
			"gives %d× card #%d for %d× card #%d\n\n"+
			"Only @%s can accept or decline.",
		senderName(sender), senderName(target),
		offer.GiveQty, offer.GiveCardID, offer.WantQty, offer.WantCardID,
		senderName(target),
	)

	sent, err := c.Bot().Send(chat, msg, markup)
	if err != nil {
		return c.Reply("❌ Could not post the trade")
	}
	h.messages.Store(sess.ID, sent)

	return nil
}

// HandleTradeCallback routes trade button presses.
func (h *TradeHandler) HandleTradeCallback(c tele.Context) error {
	ctx := context.Background()
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}

	data := strings.TrimPrefix(callback.Data, "\f")
	parts := strings.Split(data, "|")
	if len(parts) < 3 || parts[0] != TradeCallbackUnique {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}
	tradeID, action := parts[1], parts[2]

	alert := func(text string) error {
		return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
	}

	switch action {
	case "accept":
		offer, err := h.tradeService.Accept(ctx, tradeID, sender.ID)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrStaleSession):
				return alert("❌ This trade is no longer available")
			case errors.Is(err, service.ErrNotTradeTarget), errors.Is(err, service.ErrNotTradeParty):
				return alert("❌ This is not your trade")
			case errors.Is(err, service.ErrOfferNotCovered), errors.Is(err, service.ErrWantedNotCovered):
				return alert("❌ Cards changed hooves since the offer; trade is off")
			default:
				log.Error().Err(err).Msg("Trade accept failed")
				return alert("❌ Something went wrong")
			}
		}

		h.messages.Delete(tradeID)
		_ = c.Edit(fmt.Sprintf(
			"✅ Trade complete: %d× card #%d for %d× card #%d",
			offer.GiveQty, offer.GiveCardID, offer.WantQty, offer.WantCardID,
		))
		return c.Respond(&tele.CallbackResponse{Text: "🔄 Traded!"})

	case "decline", "cancel":
		var err error
		if action == "decline" {
			err = h.tradeService.Decline(ctx, tradeID, sender.ID)
		} else {
			err = h.tradeService.Cancel(ctx, tradeID, sender.ID)
		}
		if err != nil {
			switch {
			case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrStaleSession):
				return alert("❌ This trade is no longer available")
			case errors.Is(err, service.ErrNotTradeTarget), errors.Is(err, service.ErrNotTradeOfferer), errors.Is(err, service.ErrNotTradeParty):
				return alert("❌ This is not your trade")
			default:
				return alert("❌ Something went wrong")
			}
		}

		h.messages.Delete(tradeID)
		if action == "decline" {
			_ = c.Edit("❌ Trade declined")
		} else {
			_ = c.Edit("✖ Trade withdrawn")
		}
		return c.Respond(&tele.CallbackResponse{Text: "Done"})

	default:
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}
}

// TradeExpired implements service.TradeNotifier.
func (h *TradeHandler) TradeExpired(sess session.Session) error {
	value, ok := h.messages.LoadAndDelete(sess.ID)
	if !ok || h.bot == nil {
		return nil
	}
	msg := value.(*tele.Message)

	_, err := h.bot.Edit(msg, "⏰ Trade offer expired")
	return err
}
