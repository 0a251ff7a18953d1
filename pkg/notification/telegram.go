package notification

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	tb "gopkg.in/tucnak/telebot.v2"
)

// setRegexp matches "/set <key> <value>" config commands
var setRegexp = regexp.MustCompile(`^/set\s+(?P<key>[\w.-]+)\s+(?P<value>\S+)\s*$`)

var commands = []tb.Command{
	{Text: "/help", Description: "Display help instructions"},
	{Text: "/status", Description: "Check bot status"},
	{Text: "/profit", Description: "Session performance"},
	{Text: "/start", Description: "Start trading"},
	{Text: "/stop", Description: "Stop trading"},
	{Text: "/set", Description: "Change a setting, e.g. /set lot_size 0.02"},
}

// TelegramSettings holds the bot token and the chat users allowed to talk to it
type TelegramSettings struct {
	Token string
	Users []int64
}

type messenger interface {
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
}

// Telegram pushes trade events to the authorized users and lets them drive
// the engine through chat commands
type Telegram struct {
	controller  Controller
	users       []int64
	client      messenger
	bot         *tb.Bot
	defaultMenu *tb.ReplyMarkup
	log         logger.Logger
	ctx         context.Context
}

// NewTelegram creates and initializes a new Telegram service
func NewTelegram(controller Controller, settings TelegramSettings, log logger.Logger) (*Telegram, error) {
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Token,
		Poller:    createAuthMiddleware(poller, settings.Users, log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	if err := client.SetCommands(commands); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	t := newTelegram(client, controller, settings.Users, log)
	t.bot = client
	t.register(client)
	return t, nil
}

func newTelegram(client messenger, controller Controller, users []int64, log logger.Logger) *Telegram {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	setupKeyboard(menu)

	return &Telegram{
		controller:  controller,
		users:       users,
		client:      client,
		defaultMenu: menu,
		log:         log,
		ctx:         context.Background(),
	}
}

// createAuthMiddleware drops updates from users outside the allow list
func createAuthMiddleware(poller *tb.LongPoller, users []int64, log logger.Logger) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil")
			return false
		}

		if slices.Contains(users, u.Message.Sender.ID) {
			return true
		}

		log.Errorf("unauthorized user %d", u.Message.Sender.ID)
		return false
	})
}

func setupKeyboard(menu *tb.ReplyMarkup) {
	menu.Reply(
		menu.Row(menu.Text("/status"), menu.Text("/profit")),
		menu.Row(menu.Text("/start"), menu.Text("/stop")),
	)
}

func (t *Telegram) register(client *tb.Bot) {
	client.Handle("/help", t.HelpHandle)
	client.Handle("/start", t.StartHandle)
	client.Handle("/stop", t.StopHandle)
	client.Handle("/status", t.StatusHandle)
	client.Handle("/profit", t.ProfitHandle)
	client.Handle("/set", t.SetHandle)
}

// Start begins polling for commands and greets the authorized users.
// Engines started from chat run under ctx.
func (t *Telegram) Start(ctx context.Context) {
	t.ctx = ctx
	if t.bot != nil {
		go t.bot.Start()
	}
	t.sendMessageWithOptions("Bot initialized.", t.defaultMenu)
}

// Stop ends polling for commands
func (t *Telegram) Stop() {
	if t.bot != nil {
		t.bot.Stop()
	}
}

// Notify sends a message to all authorized users
func (t *Telegram) Notify(text string) {
	t.sendMessageWithOptions(text)
}

func (t *Telegram) sendMessageWithOptions(text string, options ...interface{}) {
	for _, user := range t.users {
		_, err := t.client.Send(&tb.User{ID: user}, text, options...)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification")
		}
	}
}

func (t *Telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		t.log.WithError(err).Error("failed to send message")
	}
}

// HelpHandle displays available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("%s - %s", command.Text, command.Description))
	}
	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle displays the current engine status
func (t *Telegram) StatusHandle(m *tb.Message) {
	status := t.controller.Status()

	lines := []string{
		fmt.Sprintf("Status: `%s`", status.State),
		fmt.Sprintf("Symbol: `%s`", status.Config.Symbol),
		fmt.Sprintf("Strategy: `%s`", status.StrategyName),
		fmt.Sprintf("Auto trading: `%t`", status.Config.AutoTradingEnabled),
	}
	if status.LastQuote != nil {
		lines = append(lines, fmt.Sprintf("Quote: `%.5f / %.5f`", status.LastQuote.Bid, status.LastQuote.Ask))
	}
	if status.LastSignal != nil {
		lines = append(lines, fmt.Sprintf("Last signal: `%s`", *status.LastSignal))
	}
	lines = append(lines, fmt.Sprintf("Open trades: `%d`", len(status.ActiveTrades)))

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// ProfitHandle shows the session performance table
func (t *Telegram) ProfitHandle(m *tb.Message) {
	snapshot := t.controller.Status().Snapshot
	if snapshot.TotalTrades == 0 && snapshot.ActiveTrades == 0 {
		t.sendMessage(m.Sender, "No trades registered.")
		return
	}
	t.sendMessage(m.Sender, fmt.Sprintf("```\n%s```", snapshot.String()))
}

// StartHandle starts the engine
func (t *Telegram) StartHandle(m *tb.Message) {
	if t.controller.Status().Running() {
		t.sendMessage(m.Sender, "Bot is already running.", t.defaultMenu)
		return
	}

	if err := t.controller.Start(t.ctx); err != nil {
		t.OnError(err)
		return
	}
	t.sendMessage(m.Sender, "Bot started.", t.defaultMenu)
}

// StopHandle stops the engine
func (t *Telegram) StopHandle(m *tb.Message) {
	if !t.controller.Status().Running() {
		t.sendMessage(m.Sender, "Bot is already stopped.", t.defaultMenu)
		return
	}

	if err := t.controller.Stop(); err != nil {
		t.OnError(err)
	}
	t.sendMessage(m.Sender, "Bot stopped.", t.defaultMenu)
}

// SetHandle applies a single key/value config update
func (t *Telegram) SetHandle(m *tb.Message) {
	match := setRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, "Invalid command.\nExamples of usage:\n`/set lot_size 0.02`\n\n`/set strategy rsi`")
		return
	}

	command := extractCommandParams(setRegexp, match)
	update, err := t.controller.UpdateConfig(map[string]any{command["key"]: parseValue(command["value"])})
	if err != nil {
		t.sendMessage(m.Sender, fmt.Sprintf("Update rejected: %s", err))
		return
	}

	for _, rejected := range update.Rejected {
		t.sendMessage(m.Sender, fmt.Sprintf("`%s` rejected: %s", rejected.Field, rejected.Reason))
	}
	if len(update.Changed) == 0 {
		t.sendMessage(m.Sender, "Nothing changed.")
		return
	}
	t.sendMessage(m.Sender, fmt.Sprintf("Updated: `%s`", strings.Join(update.Changed, ", ")))
}

// OnEvent forwards trade and lifecycle events to the chat
func (t *Telegram) OnEvent(event engine.Event) {
	title, body, ok := Message(event)
	if !ok {
		return
	}
	t.Notify(fmt.Sprintf("%s\n-----\n%s", title, body))
}

// OnError notifies users about errors
func (t *Telegram) OnError(err error) {
	t.Notify(fmt.Sprintf("🛑 ERROR\n-----\n%s", err))
}

// parseValue keeps chat input loosely typed the way JSON updates are
func parseValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// extractCommandParams maps named groups of a regex match
func extractCommandParams(regex *regexp.Regexp, match []string) map[string]string {
	command := make(map[string]string)
	for i, name := range regex.SubexpNames() {
		if i != 0 && name != "" {
			command[name] = match[i]
		}
	}
	return command
}
