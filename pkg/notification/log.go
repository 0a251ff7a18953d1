package notification

import (
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
)

// Log writes every engine event through a structured logger
type Log struct {
	log logger.Logger
}

// NewLog returns an observer writing events to log
func NewLog(log logger.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) OnEvent(event engine.Event) {
	entry := l.log.WithFields(map[string]any{
		"engine_id": event.EngineID,
		"event":     string(event.Kind),
	})

	switch payload := event.Payload.(type) {
	case engine.BotUpdate:
		if payload.Quote != nil {
			entry = entry.WithFields(map[string]any{
				"bid":    payload.Quote.Bid,
				"ask":    payload.Quote.Ask,
				"spread": payload.SpreadPoints,
			})
		}
		for _, d := range payload.Diagnostics {
			entry.WithField("code", d.Code).Debug(d.Message)
		}
		if payload.Signal != nil {
			entry.Infof("signal %s", *payload.Signal)
			return
		}
		entry.Trace("iteration finished")

	case engine.TradeExecution:
		entry.WithFields(map[string]any{
			"ticket": payload.Trade.Ticket,
			"side":   string(payload.Trade.Side),
			"volume": payload.Trade.Volume,
			"price":  payload.Trade.EntryPrice,
		}).Info("trade executed")

	case engine.TradeError:
		entry.WithField("code", payload.Code).Warn(payload.Message)

	case engine.Update:
		for _, rejected := range payload.Rejected {
			entry.WithField("field", rejected.Field).Warn(rejected.Reason)
		}
		entry.Infof("config changed: %v", payload.Changed)

	case engine.Lifecycle:
		entry.WithFields(map[string]any{
			"tag":      payload.Tag,
			"strategy": payload.Strategy,
			"symbol":   payload.Symbol,
		}).Info(string(event.Kind))

	default:
		entry.Debug("event")
	}
}
