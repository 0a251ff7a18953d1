package exchange_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/stretchr/testify/require"
)

// buyOnce signals a single BUY on its first evaluation
type buyOnce struct {
	fired *atomic.Bool
}

func (b buyOnce) Name() string                  { return "buy_once" }
func (b buyOnce) Granularity() core.Granularity { return core.GranularityTick }
func (b buyOnce) WarmupPeriod() int             { return 1 }
func (b buyOnce) Evaluate(_ context.Context, w core.Window) *core.Signal {
	if w.Len() == 0 || !b.fired.CompareAndSwap(false, true) {
		return nil
	}
	return core.NewSignal(core.SideBuy, w.Last().Price(), 0.9, "first bar")
}

func TestEngineOverPaperBroker(t *testing.T) {
	start := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	var b strings.Builder
	for i := 0; i < 30; i++ {
		price := 2000.0
		if i >= 20 {
			price = 2010
		}
		fmt.Fprintf(&b, "%d,%.2f,%.2f,%.2f,%.2f,1\n", start.Add(time.Duration(i)*time.Minute).Unix(), price, price, price, price)
	}
	file := filepath.Join(t.TempDir(), "ethusd.csv")
	require.NoError(t, os.WriteFile(file, []byte(b.String()), 0o600))

	feed, err := exchange.NewCSVFeed("ETHUSD", file, "1m")
	require.NoError(t, err)
	broker := exchange.NewPaperBroker(feed, exchange.WithPaperClock(feed.Now))

	registry := strategy.NewRegistry()
	fired := &atomic.Bool{}
	registry.Register(strategy.Entry{
		ID:          "buy_once",
		Granularity: core.GranularityTick,
		Factory: func(strategy.Options, strategy.Dependencies) (strategy.Strategy, error) {
			return buyOnce{fired: fired}, nil
		},
	})

	cfg := engine.DefaultConfig()
	cfg.Strategy = "buy_once"

	var executed, errs atomic.Int32
	eng, err := engine.New("paper", broker, cfg,
		engine.WithRegistry(registry),
		engine.WithClock(feed.Now),
		engine.WithManualStepping(),
		engine.WithObserver(engine.ObserverFunc(func(e engine.Event) {
			switch e.Kind {
			case engine.KindTradeExecuted:
				executed.Add(1)
			case engine.KindTradeError:
				errs.Add(1)
			}
		})),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	feed.Seek(10)
	report := eng.Step(ctx)
	require.NotNil(t, report.Executed, "diagnostics: %v", report.Diagnostics)
	require.Equal(t, int32(1), executed.Load())
	require.Zero(t, errs.Load())

	trade := *report.Executed
	require.InDelta(t, 2000.1, trade.EntryPrice, 1e-9)
	require.Less(t, trade.StopLoss, trade.EntryPrice)
	require.Greater(t, trade.TakeProfit, trade.EntryPrice)

	status := eng.Status()
	require.Len(t, status.ActiveTrades, 1)

	positions, err := broker.OpenPositions(ctx, "ETHUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, status.Tag, positions[0].Magic)

	feed.Seek(20)
	eng.Step(ctx)

	status = eng.Status()
	require.Empty(t, status.ActiveTrades)
	require.Equal(t, 1, status.Snapshot.TotalTrades)
	require.Equal(t, 1, status.Snapshot.WinningTrades)
	require.Greater(t, status.Snapshot.RealizedProfit, 0.0)

	require.NoError(t, eng.Stop())
}
