package notification

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/order"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tb "gopkg.in/tucnak/telebot.v2"
)

var eventTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func executedEvent() engine.Event {
	signal := core.NewSignal(core.SideBuy, 2030.5, 0.8, "rsi crossed up")
	return engine.Event{
		Kind:     engine.KindTradeExecuted,
		EngineID: "bot-1",
		Time:     eventTime,
		Payload: engine.TradeExecution{
			Trade: order.ActiveTrade{
				ID:         "local-1",
				Ticket:     42,
				Symbol:     "ETHUSD",
				Side:       core.SideBuy,
				Volume:     0.01,
				EntryPrice: 2030.5,
				StopLoss:   2029,
				TakeProfit: 2033.5,
			},
			Signal: *signal,
		},
	}
}

func errorEvent(code string) engine.Event {
	return engine.Event{
		Kind:     engine.KindTradeError,
		EngineID: "bot-1",
		Time:     eventTime,
		Payload: engine.TradeError{
			Code:    code,
			Message: "order rejected",
			Reasons: []string{"volume below minimum"},
		},
	}
}

func TestMessage(t *testing.T) {
	title, body, ok := Message(executedEvent())
	require.True(t, ok)
	require.Contains(t, title, "BUY ETHUSD")
	require.Contains(t, body, "Ticket: 42")
	require.Contains(t, body, "rsi crossed up")

	title, body, ok = Message(errorEvent(engine.CodeValidationRejected))
	require.True(t, ok)
	require.Contains(t, title, engine.CodeValidationRejected)
	require.Contains(t, body, "- volume below minimum")

	title, body, ok = Message(engine.Event{
		Kind:     engine.KindStopped,
		EngineID: "bot-1",
		Payload:  engine.Lifecycle{Tag: 7, Symbol: "ETHUSD", Strategy: "rsi", Reason: "engine loop did not stop in time"},
	})
	require.True(t, ok)
	require.Contains(t, title, "STOPPED bot-1")
	require.Contains(t, body, "rsi on ETHUSD (tag 7)")
	require.Contains(t, body, "did not stop")

	_, _, ok = Message(engine.Event{Kind: engine.KindBotUpdate, Payload: engine.BotUpdate{}})
	require.False(t, ok)
}

type countingObserver struct {
	mu     sync.Mutex
	events []engine.Event
	panics bool
}

func (c *countingObserver) OnEvent(e engine.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	if c.panics {
		panic("boom")
	}
}

func TestAsyncDeliversInOrder(t *testing.T) {
	target := &countingObserver{}
	async := NewAsync(target, 16, logger.Nop())

	for i := 0; i < 5; i++ {
		async.OnEvent(engine.Event{Kind: engine.KindBotUpdate, EngineID: string(rune('a' + i))})
	}
	async.Close()
	async.OnEvent(engine.Event{Kind: engine.KindBotUpdate})

	require.Len(t, target.events, 5)
	for i, e := range target.events {
		require.Equal(t, string(rune('a'+i)), e.EngineID)
	}
}

// gatedObserver blocks every delivery until released
type gatedObserver struct {
	countingObserver
	release chan struct{}
}

func (g *gatedObserver) OnEvent(e engine.Event) {
	<-g.release
	g.countingObserver.OnEvent(e)
}

func (g *gatedObserver) kinds() []engine.Kind {
	g.mu.Lock()
	defer g.mu.Unlock()
	kinds := make([]engine.Kind, len(g.events))
	for i, e := range g.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestAsyncNeverDropsTradeEvents(t *testing.T) {
	target := &gatedObserver{release: make(chan struct{})}
	async := NewAsync(target, 1, logger.Nop())

	// the first event is taken by the delivery goroutine, the second fills
	// the buffer and the third is dropped
	async.OnEvent(engine.Event{Kind: engine.KindStarted})
	require.Eventually(t, func() bool { return len(async.events) == 0 }, time.Second, time.Millisecond)
	async.OnEvent(engine.Event{Kind: engine.KindBotUpdate})
	async.OnEvent(engine.Event{Kind: engine.KindBotUpdate})

	queued := make(chan struct{})
	go func() {
		async.OnEvent(executedEvent())
		async.OnEvent(errorEvent(engine.CodeSubmissionFailed))
		close(queued)
	}()

	select {
	case <-queued:
		t.Fatal("trade events were not held while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	close(target.release)
	<-queued
	async.Close()

	require.Equal(t, []engine.Kind{
		engine.KindStarted,
		engine.KindBotUpdate,
		engine.KindTradeExecuted,
		engine.KindTradeError,
	}, target.kinds())
}

func TestAsyncSurvivesPanickingTarget(t *testing.T) {
	target := &countingObserver{panics: true}
	async := NewAsync(target, 4, logger.Nop())

	async.OnEvent(engine.Event{Kind: engine.KindStarted})
	async.OnEvent(engine.Event{Kind: engine.KindStopped})
	async.Close()

	require.Len(t, target.events, 2)
}

func TestLogHandlesEveryPayload(t *testing.T) {
	l := NewLog(logger.Nop())
	quote := core.Quote{Symbol: "ETHUSD", Bid: 1, Ask: 2}

	require.NotPanics(t, func() {
		l.OnEvent(executedEvent())
		l.OnEvent(errorEvent(engine.CodeThrottled))
		l.OnEvent(engine.Event{Kind: engine.KindBotUpdate, Payload: engine.BotUpdate{
			Quote:       &quote,
			Diagnostics: []engine.Diagnostic{{Code: engine.CodeSpreadExceeded, Message: "wide"}},
		}})
		l.OnEvent(engine.Event{Kind: engine.KindConfigUpdated, Payload: engine.Update{Changed: []string{"lot_size"}}})
		l.OnEvent(engine.Event{Kind: engine.KindStarted, Payload: engine.Lifecycle{}})
		l.OnEvent(engine.Event{Kind: "custom"})
	})
}

func TestMail(t *testing.T) {
	var sent []string
	mail := NewMail(MailParams{
		SMTPServerPort:    587,
		SMTPServerAddress: "smtp.example.com",
		To:                "ops@example.com",
		From:              "bot@example.com",
		Password:          "secret",
	}, logger.Nop())
	mail.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		require.Equal(t, "smtp.example.com:587", addr)
		require.Equal(t, "bot@example.com", from)
		require.Equal(t, []string{"ops@example.com"}, to)
		sent = append(sent, string(msg))
		return nil
	}

	mail.OnEvent(executedEvent())
	mail.OnEvent(engine.Event{Kind: engine.KindBotUpdate, Payload: engine.BotUpdate{}})

	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "Subject: ✅ BUY ETHUSD\r\n")
	require.Contains(t, sent[0], "Ticket: 42")
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafka(t *testing.T) {
	writer := &fakeWriter{}
	k := newKafka(writer, WithoutKinds(engine.KindBotUpdate))

	k.OnEvent(executedEvent())
	k.OnEvent(engine.Event{Kind: engine.KindBotUpdate, EngineID: "bot-1"})

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	require.Equal(t, "bot-1", string(msg.Key))
	require.Equal(t, eventTime, msg.Time)
	require.Equal(t, "kind", msg.Headers[0].Key)
	require.Equal(t, string(engine.KindTradeExecuted), string(msg.Headers[0].Value))
	require.Contains(t, string(msg.Value), `"kind":"trade_executed"`)
	require.Contains(t, string(msg.Value), `"engine_id":"bot-1"`)

	writer.err = errors.New("broker down")
	require.NotPanics(t, func() { k.OnEvent(executedEvent()) })

	require.NoError(t, k.Close())
	require.True(t, writer.closed)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	quote := core.Quote{Symbol: "ETHUSD", Bid: 2029.5, Ask: 2030.5}
	signal := core.NewSignal(core.SideSell, 2029.5, 0.7, "test")

	m.OnEvent(engine.Event{Kind: engine.KindStarted, EngineID: "bot-1", Payload: engine.Lifecycle{}})
	m.OnEvent(engine.Event{Kind: engine.KindBotUpdate, EngineID: "bot-1", Payload: engine.BotUpdate{
		Quote:        &quote,
		SpreadPoints: 100,
		Signal:       signal,
		Snapshot:     order.PerformanceSnapshot{TotalTrades: 4, WinRate: 0.75, RealizedProfit: 12.5, MaxDrawdown: 3},
		Diagnostics:  []engine.Diagnostic{{Code: engine.CodeThrottled}},
	}})
	m.OnEvent(executedEvent())
	m.OnEvent(errorEvent(engine.CodeSubmissionFailed))
	m.OnEvent(errorEvent(engine.CodeSubmissionFailed))

	require.Equal(t, 1.0, testutil.ToFloat64(m.running.WithLabelValues("bot-1")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.trades.WithLabelValues("bot-1")))
	require.Equal(t, 0.75, testutil.ToFloat64(m.winRate.WithLabelValues("bot-1")))
	require.Equal(t, 12.5, testutil.ToFloat64(m.realized.WithLabelValues("bot-1")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.maxDrawdown.WithLabelValues("bot-1")))
	require.Equal(t, 100.0, testutil.ToFloat64(m.spread.WithLabelValues("bot-1")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.signals.WithLabelValues("bot-1", "SELL")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("bot-1", "BUY")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("bot-1", engine.CodeThrottled)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.errors.WithLabelValues("bot-1", engine.CodeSubmissionFailed)))

	m.OnEvent(engine.Event{Kind: engine.KindStopped, EngineID: "bot-1", Payload: engine.Lifecycle{}})
	require.Equal(t, 0.0, testutil.ToFloat64(m.running.WithLabelValues("bot-1")))
}

type sentMessage struct {
	to   string
	text string
}

type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) Send(to tb.Recipient, what interface{}, _ ...interface{}) (*tb.Message, error) {
	f.sent = append(f.sent, sentMessage{to: to.Recipient(), text: what.(string)})
	return &tb.Message{}, nil
}

func (f *fakeMessenger) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

type fakeController struct {
	running bool
	updates []map[string]any
	update  engine.Update
	err     error
}

func (c *fakeController) Status() engine.Status {
	state := engine.StateStopped
	if c.running {
		state = engine.StateRunning
	}
	return engine.Status{
		State:        state,
		Config:       engine.DefaultConfig(),
		StrategyName: "rsi",
		Snapshot:     order.PerformanceSnapshot{TotalTrades: 2, WinningTrades: 1, LosingTrades: 1},
	}
}

func (c *fakeController) Start(context.Context) error {
	c.running = true
	return nil
}

func (c *fakeController) Stop() error {
	c.running = false
	return nil
}

func (c *fakeController) UpdateConfig(partial map[string]any) (engine.Update, error) {
	c.updates = append(c.updates, partial)
	return c.update, c.err
}

func TestTelegramCommands(t *testing.T) {
	client := &fakeMessenger{}
	controller := &fakeController{}
	bot := newTelegram(client, controller, []int64{100, 200}, logger.Nop())
	sender := &tb.User{ID: 100}

	bot.StopHandle(&tb.Message{Sender: sender, Text: "/stop"})
	require.Equal(t, "Bot is already stopped.", client.last())

	bot.StartHandle(&tb.Message{Sender: sender, Text: "/start"})
	require.True(t, controller.running)
	require.Equal(t, "Bot started.", client.last())

	bot.StartHandle(&tb.Message{Sender: sender, Text: "/start"})
	require.Equal(t, "Bot is already running.", client.last())

	bot.StatusHandle(&tb.Message{Sender: sender, Text: "/status"})
	require.Contains(t, client.last(), "Status: `running`")
	require.Contains(t, client.last(), "Strategy: `rsi`")

	bot.ProfitHandle(&tb.Message{Sender: sender, Text: "/profit"})
	require.True(t, strings.HasPrefix(client.last(), "```"))

	bot.HelpHandle(&tb.Message{Sender: sender, Text: "/help"})
	require.Contains(t, client.last(), "/set - ")

	bot.StopHandle(&tb.Message{Sender: sender, Text: "/stop"})
	require.False(t, controller.running)
	require.Equal(t, "Bot stopped.", client.last())

	for _, m := range client.sent {
		require.Equal(t, "100", m.to)
	}
}

func TestTelegramSet(t *testing.T) {
	client := &fakeMessenger{}
	controller := &fakeController{update: engine.Update{Changed: []string{"lot_size"}}}
	bot := newTelegram(client, controller, []int64{100}, logger.Nop())
	sender := &tb.User{ID: 100}

	bot.SetHandle(&tb.Message{Sender: sender, Text: "/set lot_size 0.02"})
	require.Equal(t, map[string]any{"lot_size": 0.02}, controller.updates[0])
	require.Equal(t, "Updated: `lot_size`", client.last())

	bot.SetHandle(&tb.Message{Sender: sender, Text: "/set auto_trading_enabled false"})
	require.Equal(t, map[string]any{"auto_trading_enabled": false}, controller.updates[1])

	bot.SetHandle(&tb.Message{Sender: sender, Text: "/set strategy rsi"})
	require.Equal(t, map[string]any{"strategy": "rsi"}, controller.updates[2])

	bot.SetHandle(&tb.Message{Sender: sender, Text: "/set"})
	require.Len(t, controller.updates, 3)
	require.Contains(t, client.last(), "Invalid command.")

	controller.err = errors.New("lot_size must be greater than 0")
	bot.SetHandle(&tb.Message{Sender: sender, Text: "/set lot_size 0"})
	require.Equal(t, "Update rejected: lot_size must be greater than 0", client.last())
}

func TestTelegramBroadcastsEvents(t *testing.T) {
	client := &fakeMessenger{}
	bot := newTelegram(client, &fakeController{}, []int64{100, 200}, logger.Nop())

	bot.OnEvent(executedEvent())
	bot.OnEvent(engine.Event{Kind: engine.KindBotUpdate, Payload: engine.BotUpdate{}})

	require.Len(t, client.sent, 2)
	require.Equal(t, "100", client.sent[0].to)
	require.Equal(t, "200", client.sent[1].to)
	require.Contains(t, client.sent[0].text, "Ticket: 42")
}
