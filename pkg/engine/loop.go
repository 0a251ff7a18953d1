package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/order"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/risk"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
)

// iteration carries the state of one pass of the loop
type iteration struct {
	cfg    BotConfig
	now    time.Time
	report Report
	update BotUpdate
}

func (it *iteration) diagnose(code, format string, args ...any) {
	d := Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)}
	it.report.Diagnostics = append(it.report.Diagnostics, d)
	it.update.Diagnostics = append(it.update.Diagnostics, d)
}

func (e *Engine) iterate(ctx context.Context) Report {
	e.mu.RLock()
	it := &iteration{cfg: e.cfg.Clone(), now: e.clock()}
	dirty, running := e.strategyDirty, e.state == StateRunning
	e.mu.RUnlock()

	it.report.Delay = it.cfg.PollInterval
	if !running {
		return it.report
	}

	defer func() {
		e.emit(KindBotUpdate, it.update)
	}()

	if dirty || e.strat == nil {
		e.resolveStrategy(it)
	}
	it.update.Strategy = e.strat.Name()

	quote, err := callValue(ctx, it.cfg.CallTimeout, func(ctx context.Context) (core.Quote, error) {
		return e.broker.Quote(ctx, it.cfg.Symbol)
	})
	if err != nil || quote.Bid <= 0 || quote.Ask <= 0 {
		it.diagnose(CodeQuoteUnavailable, "no quote for %s: %v", it.cfg.Symbol, err)
		e.refreshLedger(ctx, it)
		return it.report
	}
	it.report.Quote, it.update.Quote = &quote, &quote
	e.mu.Lock()
	e.lastQuote = &quote
	e.mu.Unlock()

	info, infoErr := callValue(ctx, it.cfg.CallTimeout, func(ctx context.Context) (core.SymbolInfo, error) {
		return e.broker.SymbolInfo(ctx, it.cfg.Symbol)
	})
	if infoErr == nil {
		it.update.SpreadPoints = quote.SpreadPoints(info.Point)
	}

	if it.cfg.SpreadFilterEnabled && infoErr == nil {
		if limit, ok := it.cfg.SpreadLimit(it.cfg.Symbol); ok && it.update.SpreadPoints > limit {
			it.diagnose(CodeSpreadExceeded, "spread %d points above limit %d", it.update.SpreadPoints, limit)
			e.refreshLedger(ctx, it)
			return it.report
		}
	}

	window, err := e.fetchWindow(ctx, it)
	if err != nil {
		it.diagnose(CodeWindowUnavailable, "no market window: %v", err)
		e.refreshLedger(ctx, it)
		return it.report
	}

	signal := e.strat.Evaluate(ctx, window)
	if signal != nil {
		if err := signal.Validate(); err != nil {
			it.diagnose(CodeInvalidSignal, "%s discarded: %v", e.strat.Name(), err)
			signal = nil
		}
	}
	if signal != nil {
		it.report.Signal, it.update.Signal = signal, signal
		e.mu.Lock()
		e.lastSignal = signal
		e.mu.Unlock()
		e.act(ctx, it, *signal, quote, info, infoErr)
	}

	e.refreshLedger(ctx, it)
	return it.report
}

// resolveStrategy builds the configured strategy, reporting any fallback
func (e *Engine) resolveStrategy(it *iteration) {
	resolution := e.registry.Resolve(it.cfg.Strategy, it.cfg.Symbol, strategy.Options(it.cfg.Options))
	if resolution.FellBack {
		it.diagnose(CodeStrategyFallback, "strategy %q unavailable (%s), using %s",
			resolution.Requested, resolution.Reason, resolution.ID)
	}

	e.strat = resolution.Strategy
	e.mu.Lock()
	e.strategyDirty = false
	e.strategyName = resolution.Strategy.Name()
	e.mu.Unlock()
}

// fetchWindow loads the lookback window, widening it once when it holds
// fewer observations than the configured minimum.
func (e *Engine) fetchWindow(ctx context.Context, it *iteration) (core.Window, error) {
	req := core.WindowRequest{Symbol: it.cfg.Symbol, Granularity: e.strat.Granularity()}
	if req.Granularity == core.GranularityTick {
		req.Since = it.now.Add(-time.Duration(it.cfg.LookbackSeconds) * time.Second)
	} else {
		req.Count = max(it.cfg.LookbackBars, e.strat.WarmupPeriod())
	}

	fetch := func(req core.WindowRequest) (core.Window, error) {
		return callValue(ctx, it.cfg.CallTimeout, func(ctx context.Context) (core.Window, error) {
			return e.broker.Window(ctx, req)
		})
	}

	window, err := fetch(req)
	if err == nil && len(window) >= it.cfg.MinWindow {
		return window, nil
	}

	wider := req
	if wider.Granularity == core.GranularityTick {
		wider.Since = it.now.Add(-time.Duration(it.cfg.LookbackSeconds*windowRetryFactor) * time.Second)
	} else {
		wider.Count = req.Count * windowRetryFactor
	}

	retried, retryErr := fetch(wider)
	switch {
	case retryErr == nil && len(retried) >= len(window):
		window, err = retried, nil
	case err != nil && retryErr != nil:
		return nil, retryErr
	}

	if len(window) == 0 {
		return nil, core.ErrUnavailable
	}
	return window, nil
}

// act decides whether a signal is traded and trades it
func (e *Engine) act(ctx context.Context, it *iteration, signal core.Signal, quote core.Quote,
	info core.SymbolInfo, infoErr error) {

	cfg := it.cfg

	// a signal seen while auto trading is off is always reported
	var override bool
	if !cfg.AutoTradingEnabled {
		if !cfg.OverrideEnabled || signal.Confidence < cfg.OverrideMinConfidence {
			it.diagnose(CodeAutoTradingDisabled, "auto trading disabled, %s signal (%.2f) not traded", signal.Side, signal.Confidence)
			e.log.Warnf("signal %s not traded: auto trading disabled", signal)
			return
		}
		override = true
		it.report.Override = true
		it.diagnose(CodeAutoTradingOverride, "auto trading disabled, trading %s signal (%.2f) at or above override threshold %.2f",
			signal.Side, signal.Confidence, cfg.OverrideMinConfidence)
		e.log.Warnf("override: trading %s while auto trading is disabled", signal)
	}

	if signal.Confidence < cfg.MinSignalConfidence {
		it.diagnose(CodeBelowConfidence, "%s signal confidence %.2f below floor %.2f",
			signal.Side, signal.Confidence, cfg.MinSignalConfidence)
		return
	}

	if it.now.Before(e.cooldownUntil) {
		it.diagnose(CodeCooldown, "cooling down until %s", e.cooldownUntil.Format(time.TimeOnly))
		return
	}
	if !e.throttle.CanSubmit(it.now) {
		it.diagnose(CodeThrottled, "%d orders in the last minute, limit %d", e.throttle.Count(it.now), cfg.MaxOrdersPerMinute)
		return
	}

	if infoErr != nil {
		e.tradeError(it, TradeError{Code: CodeSymbolUnavailable, Message: infoErr.Error(), Signal: &signal, Override: override})
		return
	}

	account, err := callValue(ctx, cfg.CallTimeout, func(ctx context.Context) (core.Account, error) {
		return e.broker.Account(ctx)
	})
	if err != nil {
		e.tradeError(it, TradeError{Code: CodeAccountUnavailable, Message: err.Error(), Signal: &signal, Override: override})
		return
	}

	var stops risk.Stops
	if cfg.UseStopLossTakeProfit || signal.HasStops() {
		planner := risk.Planner{
			Mode:       cfg.DistanceMode,
			StopLoss:   cfg.StopLoss,
			TakeProfit: cfg.TakeProfit,
			StopBuffer: cfg.StopBuffer,
			AutoAdjust: cfg.AutoAdjustStops,
		}
		stops = planner.Plan(signal, quote, info)
		if stops.Widened {
			e.log.Debugf("stops widened to the broker minimum: sl %.5f tp %.5f", stops.StopLoss, stops.TakeProfit)
		}
	} else {
		stops.Entry = quote.EntryPrice(signal.Side)
	}

	validator := risk.NewValidator(risk.WithMarginFactor(cfg.MarginFactor), risk.WithStopBuffer(cfg.StopBuffer))
	result := validator.Validate(risk.Check{
		Signal:     signal,
		Volume:     cfg.LotSize,
		Entry:      stops.Entry,
		StopLoss:   stops.StopLoss,
		TakeProfit: stops.TakeProfit,
		Account:    account,
		Symbol:     info,
	})
	if !result.OK() {
		e.tradeError(it, TradeError{
			Code: CodeValidationRejected, Message: result.Err().Error(),
			Signal: &signal, Reasons: result.Reasons, Override: override,
		})
		return
	}

	// an in-flight order is never cancelled by Stop
	submitCtx := context.WithoutCancel(ctx)
	submitted := e.submitter.Submit(submitCtx, order.Submission{
		Symbol:     cfg.Symbol,
		Side:       signal.Side,
		Volume:     cfg.LotSize,
		Price:      stops.Entry,
		StopLoss:   stops.StopLoss,
		TakeProfit: stops.TakeProfit,
	})

	// every submission takes a slot, filled or not
	e.throttle.Record(it.now)

	if submitted.Status != order.StatusFilled {
		code := CodeSubmissionFailed
		if submitted.Status == order.StatusAbandoned {
			code = CodeSubmissionAbandoned
		}
		e.tradeError(it, TradeError{
			Code: code, Message: submitted.Err().Error(),
			Signal: &signal, Attempts: submitted.Attempts, Override: override,
		})
		return
	}

	e.cooldownUntil = it.now.Add(cfg.Cooldown)
	it.report.Delay = cfg.PollInterval + cfg.Cooldown

	entry := submitted.Order.Price
	if entry <= 0 {
		entry = stops.Entry
	}
	trade := e.ledger.RecordOpened(order.ActiveTrade{
		Ticket:     submitted.Order.Ticket,
		Symbol:     cfg.Symbol,
		Side:       signal.Side,
		Signal:     signal,
		EntryTime:  it.now,
		Volume:     cfg.LotSize,
		EntryPrice: entry,
		StopLoss:   submitted.Request.StopLoss,
		TakeProfit: submitted.Request.TakeProfit,
	})
	it.report.Executed = &trade

	// force a ledger refresh in this iteration
	e.lastRefresh = time.Time{}

	e.emit(KindTradeExecuted, TradeExecution{
		Trade:    trade,
		Signal:   signal,
		Attempts: submitted.Attempts,
		Override: override,
	})
}

func (e *Engine) tradeError(it *iteration, te TradeError) {
	e.log.WithField("code", te.Code).Warn(te.Message)
	it.update.Diagnostics = append(it.update.Diagnostics, Diagnostic{Code: te.Code, Message: te.Message})
	it.report.Diagnostics = append(it.report.Diagnostics, Diagnostic{Code: te.Code, Message: te.Message})
	e.emit(KindTradeError, te)
}

// refreshLedger rebuilds performance from broker history when the refresh
// period elapsed, and attaches the latest snapshot to the update.
func (e *Engine) refreshLedger(ctx context.Context, it *iteration) {
	defer func() {
		it.update.Snapshot = e.ledger.Snapshot()
	}()

	if !e.lastRefresh.IsZero() && it.now.Sub(e.lastRefresh) < it.cfg.LedgerRefresh {
		return
	}

	since := e.ledger.SessionStart()
	deals, err := callValue(ctx, it.cfg.CallTimeout, func(ctx context.Context) ([]core.Deal, error) {
		return e.broker.DealsSince(ctx, since)
	})
	if err != nil {
		it.diagnose(CodeLedgerRefreshFailed, "deal history unavailable: %v", err)
		return
	}
	positions, err := callValue(ctx, it.cfg.CallTimeout, func(ctx context.Context) ([]core.Position, error) {
		return e.broker.OpenPositions(ctx, it.cfg.Symbol)
	})
	if err != nil {
		it.diagnose(CodeLedgerRefreshFailed, "open positions unavailable: %v", err)
		return
	}
	account, err := callValue(ctx, it.cfg.CallTimeout, func(ctx context.Context) (core.Account, error) {
		return e.broker.Account(ctx)
	})
	if err != nil {
		it.diagnose(CodeLedgerRefreshFailed, "account unavailable: %v", err)
		return
	}

	e.ledger.Refresh(deals, positions, account, it.now)
	e.lastRefresh = it.now
}

// callValue runs fn with a per-call timeout
func callValue[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}
