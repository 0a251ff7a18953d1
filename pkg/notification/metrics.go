package notification

import (
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/order"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records engine events as Prometheus series labeled by engine id
type Metrics struct {
	trades        *prometheus.GaugeVec
	winRate       *prometheus.GaugeVec
	realized      *prometheus.GaugeVec
	unrealized    *prometheus.GaugeVec
	drawdown      *prometheus.GaugeVec
	maxDrawdown   *prometheus.GaugeVec
	equity        *prometheus.GaugeVec
	activeTrades  *prometheus.GaugeVec
	spread        *prometheus.GaugeVec
	running       *prometheus.GaugeVec
	signals       *prometheus.CounterVec
	executions    *prometheus.CounterVec
	errors        *prometheus.CounterVec
	configUpdates *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg; nil means the default registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"engine"})
	}

	return &Metrics{
		trades:       gauge("tradepulse_trades_total", "Completed trades in the current session"),
		winRate:      gauge("tradepulse_win_rate", "Share of winning trades in the current session"),
		realized:     gauge("tradepulse_realized_profit", "Realized profit in the current session"),
		unrealized:   gauge("tradepulse_unrealized_profit", "Floating profit of open trades"),
		drawdown:     gauge("tradepulse_drawdown", "Current drawdown from the balance peak"),
		maxDrawdown:  gauge("tradepulse_max_drawdown", "Largest drawdown seen in the session"),
		equity:       gauge("tradepulse_equity", "Account equity"),
		activeTrades: gauge("tradepulse_active_trades", "Open trades owned by the engine"),
		spread:       gauge("tradepulse_spread_points", "Last observed spread in points"),
		running:      gauge("tradepulse_running", "1 while the engine loop runs"),
		signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_signals_total",
			Help: "Signals produced by the strategy",
		}, []string{"engine", "side"}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_executions_total",
			Help: "Orders accepted by the broker",
		}, []string{"engine", "side"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_errors_total",
			Help: "Trade errors and iteration diagnostics by code",
		}, []string{"engine", "code"}),
		configUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_config_updates_total",
			Help: "Configuration updates applied",
		}, []string{"engine"}),
	}
}

func (m *Metrics) OnEvent(event engine.Event) {
	id := event.EngineID

	switch payload := event.Payload.(type) {
	case engine.BotUpdate:
		m.snapshot(id, payload.Snapshot)
		if payload.Quote != nil {
			m.spread.WithLabelValues(id).Set(float64(payload.SpreadPoints))
		}
		if payload.Signal != nil {
			m.signals.WithLabelValues(id, string(payload.Signal.Side)).Inc()
		}
		for _, d := range payload.Diagnostics {
			m.errors.WithLabelValues(id, d.Code).Inc()
		}

	case engine.TradeExecution:
		m.executions.WithLabelValues(id, string(payload.Trade.Side)).Inc()

	case engine.TradeError:
		m.errors.WithLabelValues(id, payload.Code).Inc()

	case engine.Update:
		m.configUpdates.WithLabelValues(id).Inc()

	case engine.Lifecycle:
		m.snapshot(id, payload.Snapshot)
		if event.Kind == engine.KindStarted {
			m.running.WithLabelValues(id).Set(1)
		} else {
			m.running.WithLabelValues(id).Set(0)
		}
	}
}

func (m *Metrics) snapshot(id string, s order.PerformanceSnapshot) {
	m.trades.WithLabelValues(id).Set(float64(s.TotalTrades))
	m.winRate.WithLabelValues(id).Set(s.WinRate)
	m.realized.WithLabelValues(id).Set(s.RealizedProfit)
	m.unrealized.WithLabelValues(id).Set(s.UnrealizedProfit)
	m.drawdown.WithLabelValues(id).Set(s.Drawdown)
	m.maxDrawdown.WithLabelValues(id).Set(s.MaxDrawdown)
	m.equity.WithLabelValues(id).Set(s.Equity)
	m.activeTrades.WithLabelValues(id).Set(float64(s.ActiveTrades))
}
