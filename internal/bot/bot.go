package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"ponybot/internal/challenge"
	"ponybot/internal/config"
	"ponybot/internal/handler"
	"ponybot/internal/ledger"
	"ponybot/internal/repository"
	"ponybot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	// Handlers
	accountHandler  *handler.AccountHandler
	transferHandler *handler.TransferHandler
	gameHandler     *handler.GameHandler
	slotHandler     *handler.SlotHandler
	ponyHandler     *handler.PonyHandler
	tradeHandler    *handler.TradeHandler
	guildHandler    *handler.GuildHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config          *config.Config
	AccountService  *service.AccountService
	TransferService *service.TransferService
	TradeService    *service.TradeService
	Spawner         *service.Spawner
	Protocol        *challenge.Protocol
	Ledger          *ledger.Ledger
	CardRepo        *repository.CardRepository
	GuildRepo       *repository.GuildRepository
	Announcer       *Announcer
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	// Initialize handlers
	b.accountHandler = handler.NewAccountHandler(deps.AccountService)
	b.transferHandler = handler.NewTransferHandler(deps.AccountService, deps.TransferService)
	b.gameHandler = handler.NewGameHandler(deps.AccountService, deps.Protocol)
	b.slotHandler = handler.NewSlotHandler(deps.AccountService, deps.Ledger, deps.Config.Games.Slot.MaxBet)
	b.ponyHandler = handler.NewPonyHandler(deps.AccountService, deps.Spawner)
	b.tradeHandler = handler.NewTradeHandler(deps.AccountService, deps.TradeService, deps.CardRepo)
	b.guildHandler = handler.NewGuildHandler(deps.GuildRepo)

	// Handlers that edit messages in the background need the bot
	// instance; expiry notifications flow back through them.
	b.gameHandler.SetBot(teleBot)
	b.tradeHandler.SetBot(teleBot)
	deps.Protocol.SetNotifier(b.gameHandler)
	deps.TradeService.SetNotifier(b.tradeHandler)
	if deps.Announcer != nil {
		deps.Announcer.Bind(teleBot)
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/my", b.accountHandler.HandleMy)
	b.bot.Handle("/daily", b.accountHandler.HandleDaily)
	b.bot.Handle("/top", b.accountHandler.HandleTop)

	// Transfer handler
	b.bot.Handle("/pay", b.transferHandler.HandlePay)

	// Challenge game handlers
	b.bot.Handle("/coinflip", b.gameHandler.HandleCoinflip)
	b.bot.Handle("/dice", b.gameHandler.HandleDice)
	b.bot.Handle("/rps", b.gameHandler.HandleRPS)
	b.bot.Handle("/ttt", b.gameHandler.HandleTicTacToe)

	// Solo slot machine
	b.bot.Handle("/slot", b.slotHandler.HandleSlot)

	// Pony catching
	b.bot.Handle("/catch", b.ponyHandler.HandleCatch)
	b.bot.Handle("/ponies", b.ponyHandler.HandlePonies)

	// Card trading
	b.bot.Handle("/cards", b.tradeHandler.HandleCards)
	b.bot.Handle("/trade", b.tradeHandler.HandleTrade)

	// Chat settings (admin only)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/setspawn", b.guildHandler.HandleSetSpawn)
	adminGroup.Handle("/setlang", b.guildHandler.HandleSetLang)

	// Inline button callbacks
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes button presses by their unique prefix.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot prefixes callback data with \f.
	data := strings.TrimPrefix(callback.Data, "\f")

	switch {
	case strings.HasPrefix(data, handler.ChallengeCallbackUnique+"|"):
		return b.gameHandler.HandleChallengeCallback(c)
	case strings.HasPrefix(data, handler.TradeCallbackUnique+"|"):
		return b.tradeHandler.HandleTradeCallback(c)
	}

	log.Debug().Str("data", data).Msg("Unroutable callback")
	return c.Respond(&tele.CallbackResponse{})
}

// Start starts the bot polling. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// Telebot returns the underlying telebot instance.
func (b *Bot) Telebot() *tele.Bot {
	return b.bot
}
