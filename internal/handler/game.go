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

	"ponybot/internal/challenge"
	"ponybot/internal/game"
	"ponybot/internal/game/coinflip"
	"ponybot/internal/game/dice"
	"ponybot/internal/game/rps"
	"ponybot/internal/game/tictactoe"
	"ponybot/internal/ledger"
	"ponybot/internal/service"
	"ponybot/internal/session"
)

// ChallengeCallbackUnique is the telebot unique prefix for challenge
// buttons. Callback data is <unique>|<sessionID>|<action>[|<arg>].
const ChallengeCallbackUnique = "gm"

// GameHandler handles challenge commands and their button callbacks. It
// doubles as the protocol's expiry notifier so abandoned challenge
// messages get updated in place.
type GameHandler struct {
	accountService *service.AccountService
	protocol       *challenge.Protocol

	bot *tele.Bot
	// messages maps session ID to the challenge message for later edits.
	messages sync.Map
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(accountService *service.AccountService, protocol *challenge.Protocol) *GameHandler {
	return &GameHandler{
		accountService: accountService,
		protocol:       protocol,
	}
}

// SetBot gives the handler a bot instance for background message edits.
func (h *GameHandler) SetBot(b *tele.Bot) {
	h.bot = b
}

// HandleCoinflip handles /coinflip <stake> <heads|tails> as a reply.
func (h *GameHandler) HandleCoinflip(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ Usage: /coinflip <stake> <heads|tails> (reply to your opponent)")
	}
	stake, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || stake < 0 {
		return c.Reply("❌ Stake must be a non-negative number")
	}
	return h.createChallenge(c, "coinflip", stake, map[string]any{"call": strings.ToLower(args[1])})
}

// HandleDice handles /dice <stake> <over|under> <threshold> as a reply.
func (h *GameHandler) HandleDice(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return c.Reply("❌ Usage: /dice <stake> <over|under> <threshold> (reply to your opponent)")
	}
	stake, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || stake < 0 {
		return c.Reply("❌ Stake must be a non-negative number")
	}
	threshold, err := strconv.Atoi(args[2])
	if err != nil {
		return c.Reply("❌ Threshold must be a number")
	}
	return h.createChallenge(c, "dice", stake, map[string]any{
		"side":      strings.ToLower(args[1]),
		"threshold": threshold,
	})
}

// HandleRPS handles /rps <stake> as a reply.
func (h *GameHandler) HandleRPS(c tele.Context) error {
	stake, ok := h.parseStake(c)
	if !ok {
		return nil
	}
	return h.createChallenge(c, "rps", stake, nil)
}

// HandleTicTacToe handles /ttt <stake> as a reply.
func (h *GameHandler) HandleTicTacToe(c tele.Context) error {
	stake, ok := h.parseStake(c)
	if !ok {
		return nil
	}
	return h.createChallenge(c, "ttt", stake, nil)
}

func (h *GameHandler) parseStake(c tele.Context) (int64, bool) {
	args := c.Args()
	if len(args) < 1 {
		_ = c.Reply("❌ Usage: include the stake, e.g. /rps 50 (reply to your opponent)")
		return 0, false
	}
	stake, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || stake < 0 {
		_ = c.Reply("❌ Stake must be a non-negative number")
		return 0, false
	}
	return stake, true
}

// createChallenge opens the session and posts the challenge message with
// accept, decline and cancel buttons.
func (h *GameHandler) createChallenge(c tele.Context, command string, stake int64, params map[string]any) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if c.Message() == nil || c.Message().ReplyTo == nil || c.Message().ReplyTo.Sender == nil {
		return c.Reply("❌ Reply to your opponent's message to challenge them")
	}
	target := c.Message().ReplyTo.Sender
	if target.IsBot {
		return c.Reply("❌ Bots don't gamble")
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}
	if _, _, err := h.accountService.EnsureUser(ctx, target.ID, senderName(target)); err != nil {
		return c.Reply("❌ Could not find your opponent")
	}

	sess, err := h.protocol.Create(ctx, command, sender.ID, target.ID, stake, params)
	if err != nil {
		return h.replyCreateError(c, err)
	}

	rules, _ := h.protocol.Rules(command)

	markup := &tele.ReplyMarkup{}
	btnAccept := markup.Data("✅ Accept", ChallengeCallbackUnique, sess.ID, "accept")
	btnDecline := markup.Data("❌ Decline", ChallengeCallbackUnique, sess.ID, "decline")
	btnCancel := markup.Data("✖ Withdraw", ChallengeCallbackUnique, sess.ID, "cancel")
	markup.Inline(markup.Row(btnAccept, btnDecline), markup.Row(btnCancel))

	msg := fmt.Sprintf(
		"⚔️ @%s challenges @%s to %s!\n💰 Stake: %d bits\n\nOnly @%s can accept or decline.",
		senderName(sender), senderName(target), rules.Name(), stake, senderName(target),
	)

	sent, err := c.Bot().Send(chat, msg, markup)
	if err != nil {
		return c.Reply("❌ Could not post the challenge")
	}
	h.messages.Store(sess.ID, sent)

	return nil
}

func (h *GameHandler) replyCreateError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, challenge.ErrSelfChallenge):
		return c.Reply("❌ You cannot challenge yourself")
	case errors.Is(err, challenge.ErrPendingSession):
		return c.Reply("❌ One of you already has a game going")
	case errors.Is(err, challenge.ErrStakeTooHigh):
		return c.Reply("❌ " + err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return c.Reply("❌ You cannot cover that stake")
	case errors.Is(err, game.ErrInvalidParams):
		return c.Reply("❌ " + err.Error())
	default:
		log.Error().Err(err).Msg("Failed to create challenge")
		return c.Reply("❌ Could not create the challenge")
	}
}

// HandleChallengeCallback routes challenge button presses. Data layout:
// <sessionID>|<action>[|<arg>]. Stale buttons from settled or expired
// sessions get a friendly alert rather than an error.
func (h *GameHandler) HandleChallengeCallback(c tele.Context) error {
	ctx := context.Background()
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}

	data := strings.TrimPrefix(callback.Data, "\f")
	parts := strings.Split(data, "|")
	if len(parts) < 3 || parts[0] != ChallengeCallbackUnique {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}
	sessionID, action := parts[1], parts[2]

	switch action {
	case "accept":
		return h.handleAccept(ctx, c, sessionID)
	case "decline":
		return h.handleClose(ctx, c, sessionID, false)
	case "cancel":
		return h.handleClose(ctx, c, sessionID, true)
	case "choose":
		if len(parts) < 4 {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
		}
		return h.handleMove(ctx, c, sessionID, game.Move{Kind: "choose", Data: map[string]any{"choice": parts[3]}})
	case "place":
		if len(parts) < 4 {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
		}
		cell, err := strconv.Atoi(parts[3])
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
		}
		return h.handleMove(ctx, c, sessionID, game.Move{Kind: "place", Data: map[string]any{"cell": cell}})
	default:
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}
}

func (h *GameHandler) handleAccept(ctx context.Context, c tele.Context, sessionID string) error {
	sess, result, err := h.protocol.Accept(ctx, sessionID, c.Sender().ID)
	if err != nil {
		return h.respondChallengeError(c, err)
	}

	if result != nil {
		h.messages.Delete(sessionID)
		_ = c.Edit(h.resultText(ctx, sess, result))
		return c.Respond(&tele.CallbackResponse{Text: "⚔️ Done!"})
	}

	view, markup := h.gameView(sess)
	_ = c.Edit(view, markup)
	return c.Respond(&tele.CallbackResponse{Text: "Game on!"})
}

func (h *GameHandler) handleClose(ctx context.Context, c tele.Context, sessionID string, cancel bool) error {
	var (
		closed session.Session
		err    error
	)
	if cancel {
		closed, err = h.protocol.Cancel(ctx, sessionID, c.Sender().ID)
	} else {
		closed, err = h.protocol.Decline(ctx, sessionID, c.Sender().ID)
	}
	if err != nil {
		return h.respondChallengeError(c, err)
	}

	h.messages.Delete(sessionID)
	if closed.Phase == session.PhaseCancelled {
		_ = c.Edit("✖ Challenge withdrawn")
		return c.Respond(&tele.CallbackResponse{Text: "Withdrawn"})
	}
	_ = c.Edit("❌ Challenge declined")
	return c.Respond(&tele.CallbackResponse{Text: "Declined"})
}

func (h *GameHandler) handleMove(ctx context.Context, c tele.Context, sessionID string, move game.Move) error {
	sess, result, err := h.protocol.Move(ctx, sessionID, c.Sender().ID, move)
	if err != nil {
		return h.respondChallengeError(c, err)
	}

	if result != nil {
		h.messages.Delete(sessionID)
		_ = c.Edit(h.resultText(ctx, sess, result))
		return c.Respond(&tele.CallbackResponse{Text: "⚔️ Done!"})
	}

	view, markup := h.gameView(sess)
	_ = c.Edit(view, markup)
	return c.Respond(&tele.CallbackResponse{Text: "✔"})
}

func (h *GameHandler) respondChallengeError(c tele.Context, err error) error {
	alert := func(text string) error {
		return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrStaleSession):
		return alert("❌ This challenge is no longer available")
	case errors.Is(err, challenge.ErrUnauthorized), errors.Is(err, challenge.ErrNotResponder),
		errors.Is(err, challenge.ErrNotInitiator):
		return alert("❌ This is not your challenge")
	case errors.Is(err, challenge.ErrNotActive):
		return alert("❌ The game has not started yet")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return alert("❌ You cannot cover the stake")
	case errors.Is(err, game.ErrNotYourTurn):
		return alert("⏳ Not your turn")
	case errors.Is(err, game.ErrInvalidMove):
		return alert("❌ " + err.Error())
	default:
		log.Error().Err(err).Msg("Challenge callback failed")
		return alert("❌ Something went wrong")
	}
}

// gameView renders the current state of an active session.
func (h *GameHandler) gameView(sess session.Session) (string, *tele.ReplyMarkup) {
	switch payload := sess.Payload.(type) {
	case *rps.Payload:
		markup := &tele.ReplyMarkup{}
		rock := markup.Data("🪨 Rock", ChallengeCallbackUnique, sess.ID, "choose", rps.Rock)
		paper := markup.Data("📄 Paper", ChallengeCallbackUnique, sess.ID, "choose", rps.Paper)
		scissors := markup.Data("✂️ Scissors", ChallengeCallbackUnique, sess.ID, "choose", rps.Scissors)
		markup.Inline(markup.Row(rock, paper, scissors))

		waiting := 2 - len(payload.Choices)
		return fmt.Sprintf("✊ Rock Paper Scissors — %d bits\nWaiting for %d choice(s)...", sess.Stake, waiting), markup

	case *tictactoe.Payload:
		markup := &tele.ReplyMarkup{}
		var rows []tele.Row
		for r := 0; r < 3; r++ {
			var row []tele.Btn
			for col := 0; col < 3; col++ {
				cell := r*3 + col
				label := cellLabel(payload.Board[cell])
				row = append(row, markup.Data(label, ChallengeCallbackUnique, sess.ID, "place", strconv.Itoa(cell)))
			}
			rows = append(rows, markup.Row(row...))
		}
		markup.Inline(rows...)

		return fmt.Sprintf("⭕❌ Tic-Tac-Toe — %d bits\nNext move: %s", sess.Stake, cellLabel(payload.Mark(payload.Next))), markup
	}

	return fmt.Sprintf("🎮 Game in progress — %d bits at stake", sess.Stake), nil
}

func cellLabel(mark int) string {
	switch mark {
	case tictactoe.X:
		return "❌"
	case tictactoe.O:
		return "⭕"
	default:
		return "·"
	}
}

// resultText renders a settled session.
func (h *GameHandler) resultText(ctx context.Context, sess session.Session, result *challenge.Result) string {
	if result.Tie {
		return fmt.Sprintf("🤝 It's a draw! Nopony loses any bits.\n(%s, stake %d)", sess.Game, sess.Stake)
	}

	winner := h.displayName(ctx, result.Winner)
	loser := h.displayName(ctx, result.Loser)

	text := fmt.Sprintf("🏆 @%s beats @%s", winner, loser)
	if detail := flavorText(sess); detail != "" {
		text += "\n" + detail
	}
	if result.Amount > 0 {
		text += fmt.Sprintf("\n💰 @%s wins %d bits (balance: %d)", winner, result.Amount, result.WinnerBalance)
	} else {
		text += "\n💰 No bits change hooves"
	}
	if result.Partial {
		text += fmt.Sprintf("\n⚠️ @%s could only cover %d of %d bits", loser, result.Amount, result.Requested)
	}
	return text
}

// flavorText adds the game-specific reveal where the payload has one.
func flavorText(sess session.Session) string {
	switch payload := sess.Payload.(type) {
	case *coinflip.Payload:
		return fmt.Sprintf("🪙 The coin was called %s", payload.Call)
	case *dice.Payload:
		return fmt.Sprintf("🎲 %s %d at stake %d", payload.Side, payload.Threshold, payload.Stake)
	}
	return ""
}

func (h *GameHandler) displayName(ctx context.Context, userID int64) string {
	user, err := h.accountService.GetUser(ctx, userID)
	if err != nil || user.Username == "" {
		return fmt.Sprintf("Pony%d", userID)
	}
	return user.Username
}

// SessionExpired implements challenge.Notifier: the original challenge
// message is edited in place when the session times out.
func (h *GameHandler) SessionExpired(sess session.Session) error {
	value, ok := h.messages.LoadAndDelete(sess.ID)
	if !ok || h.bot == nil {
		return nil
	}
	msg := value.(*tele.Message)

	_, err := h.bot.Edit(msg, "⏰ Challenge expired — nopony loses any bits")
	return err
}
