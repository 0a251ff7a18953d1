// Package notification provides engine observers that forward events to
// logs, chat, e-mail, Kafka and Prometheus.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
)

// Controller is the subset of the engine a chat operator can drive
type Controller interface {
	Status() engine.Status
	Start(ctx context.Context) error
	Stop() error
	UpdateConfig(partial map[string]any) (engine.Update, error)
}

// Message renders a human readable title and body for the events worth
// pushing to people. Iteration updates and config changes are skipped.
func Message(event engine.Event) (title, body string, ok bool) {
	switch payload := event.Payload.(type) {
	case engine.TradeExecution:
		trade := payload.Trade
		title = fmt.Sprintf("✅ %s %s", trade.Side, trade.Symbol)
		lines := []string{
			fmt.Sprintf("Ticket: %d", trade.Ticket),
			fmt.Sprintf("Volume: %.2f", trade.Volume),
			fmt.Sprintf("Entry: %.5f", trade.EntryPrice),
			fmt.Sprintf("SL: %.5f TP: %.5f", trade.StopLoss, trade.TakeProfit),
			fmt.Sprintf("Signal: %s", payload.Signal),
		}
		if payload.Override {
			lines = append(lines, "Auto trading override")
		}
		return title, strings.Join(lines, "\n"), true

	case engine.TradeError:
		title = fmt.Sprintf("🛑 ERROR %s", payload.Code)
		lines := []string{payload.Message}
		if payload.Signal != nil {
			lines = append(lines, fmt.Sprintf("Signal: %s", *payload.Signal))
		}
		for _, reason := range payload.Reasons {
			lines = append(lines, "- "+reason)
		}
		for _, attempt := range payload.Attempts {
			lines = append(lines, "- "+attempt.String())
		}
		return title, strings.Join(lines, "\n"), true

	case engine.Lifecycle:
		switch event.Kind {
		case engine.KindStarted:
			title = fmt.Sprintf("▶️ STARTED %s", event.EngineID)
		case engine.KindStopped:
			title = fmt.Sprintf("⏹ STOPPED %s", event.EngineID)
		default:
			return "", "", false
		}
		body = fmt.Sprintf("%s on %s (tag %d)", payload.Strategy, payload.Symbol, payload.Tag)
		if payload.Reason != "" {
			body += "\n" + payload.Reason
		}
		if event.Kind == engine.KindStopped {
			body += "\n" + payload.Snapshot.String()
		}
		return title, body, true
	}

	return "", "", false
}

// Async delivers events to the wrapped observer from its own goroutine so
// slow transports do not hold up the engine loop. While the buffer is full
// periodic bot_update events are dropped; every other event waits for room.
type Async struct {
	target engine.Observer
	events chan engine.Event
	log    logger.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts delivering to target through a buffer of size events
func NewAsync(target engine.Observer, size int, log logger.Logger) *Async {
	if size <= 0 {
		size = 64
	}
	a := &Async{
		target: target,
		events: make(chan engine.Event, size),
		log:    log,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for event := range a.events {
			a.deliver(event)
		}
	}()
	return a
}

// OnEvent queues the event for delivery
func (a *Async) OnEvent(event engine.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	if event.Kind != engine.KindBotUpdate {
		a.events <- event
		return
	}

	select {
	case a.events <- event:
	default:
		a.log.Warnf("notification queue full, dropping %s event", event.Kind)
	}
}

func (a *Async) deliver(event engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Errorf("notification panic on %s event: %v", event.Kind, r)
		}
	}()
	a.target.OnEvent(event)
}

// Close drains the queue and waits for pending deliveries
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
