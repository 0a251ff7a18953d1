package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/order"
)

// Kind identifies an engine event
type Kind string

const (
	KindStarted       Kind = "started"
	KindStopped       Kind = "stopped"
	KindConfigUpdated Kind = "config_updated"
	KindBotUpdate     Kind = "bot_update"
	KindTradeExecuted Kind = "trade_executed"
	KindTradeError    Kind = "trade_error"
)

// Machine-readable codes carried by diagnostics and errors
const (
	CodeQuoteUnavailable    = "quote_unavailable"
	CodeSymbolUnavailable   = "symbol_unavailable"
	CodeAccountUnavailable  = "account_unavailable"
	CodeSpreadExceeded      = "spread_exceeded"
	CodeWindowUnavailable   = "window_unavailable"
	CodeInvalidSignal       = "invalid_signal"
	CodeBelowConfidence     = "below_confidence"
	CodeValidationRejected  = "validation_rejected"
	CodeSubmissionFailed    = "submission_failed"
	CodeSubmissionAbandoned = "submission_abandoned"
	CodeAutoTradingDisabled = "auto_trading_disabled"
	CodeAutoTradingOverride = "auto_trading_override"
	CodeThrottled           = "throttled"
	CodeCooldown            = "cooldown"
	CodeIterationPanic      = "iteration_panic"
	CodeLedgerRefreshFailed = "ledger_refresh_failed"
	CodeStrategyFallback    = "strategy_fallback"
	CodeConfigRejectedField = "config_rejected_field"
	CodeConfigInvalidValue  = "config_invalid_value"
)

// Event is delivered to every observer
type Event struct {
	Kind     Kind      `json:"kind"`
	EngineID string    `json:"engine_id"`
	Time     time.Time `json:"time"`
	Payload  any       `json:"payload,omitempty"`
}

// Diagnostic is a non-fatal condition observed during an iteration
type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string { return fmt.Sprintf("[%s] %s", d.Code, d.Message) }

// Lifecycle is the payload of started and stopped events
type Lifecycle struct {
	Tag      int64                     `json:"tag"`
	Symbol   string                    `json:"symbol"`
	Strategy string                    `json:"strategy"`
	Snapshot order.PerformanceSnapshot `json:"snapshot"`
	Reason   string                    `json:"reason,omitempty"`
}

// BotUpdate is emitted at the end of every iteration
type BotUpdate struct {
	Quote        *core.Quote               `json:"quote,omitempty"`
	SpreadPoints int                       `json:"spread_points"`
	Signal       *core.Signal              `json:"signal,omitempty"`
	Strategy     string                    `json:"strategy"`
	Snapshot     order.PerformanceSnapshot `json:"snapshot"`
	Diagnostics  []Diagnostic              `json:"diagnostics,omitempty"`
}

// TradeExecution is the payload of trade_executed events
type TradeExecution struct {
	Trade    order.ActiveTrade `json:"trade"`
	Signal   core.Signal       `json:"signal"`
	Attempts []order.Attempt   `json:"attempts"`
	Override bool              `json:"override"`
}

// TradeError is the payload of trade_error events
type TradeError struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Signal   *core.Signal    `json:"signal,omitempty"`
	Reasons  []string        `json:"reasons,omitempty"`
	Attempts []order.Attempt `json:"attempts,omitempty"`
	Override bool            `json:"override"`
}

func (t TradeError) Error() string { return fmt.Sprintf("[%s] %s", t.Code, t.Message) }

// Observer receives engine events
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// bus delivers events synchronously to each observer in registration order
type bus struct {
	mu        sync.RWMutex
	observers []Observer
	log       logger.Logger
}

func (b *bus) subscribe(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, observer)
}

func (b *bus) publish(event Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()

	for _, observer := range observers {
		b.deliver(observer, event)
	}
}

func (b *bus) deliver(observer Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("observer panic on %s event: %v", event.Kind, r)
		}
	}()
	observer.OnEvent(event)
}
