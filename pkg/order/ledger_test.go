package order

import (
	"testing"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/storage"
	"github.com/stretchr/testify/require"
)

const testTag int64 = 4242

func TestLedgerGroupsDealsByPosition(t *testing.T) {
	ledger := NewLedger()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.BeginSession(testTag, "TradePulse_bot", start, 1000)

	deals := []core.Deal{
		{PositionID: 1, Entry: core.DealEntryIn, Profit: 5, Magic: testTag},
		{PositionID: 1, Entry: core.DealEntryOut, Profit: -2, Magic: testTag},
		{PositionID: 2, Entry: core.DealEntryOut, Profit: 3, Magic: testTag},
	}

	snapshot := ledger.Refresh(deals, nil, core.Account{Balance: 1006}, start.Add(time.Minute))
	require.Equal(t, 2, snapshot.TotalTrades)
	require.ElementsMatch(t, []float64{3, 3}, snapshot.Profits)
	require.Equal(t, 2, snapshot.WinningTrades)
	require.Equal(t, 0, snapshot.LosingTrades)
	require.Equal(t, 1.0, snapshot.WinRate)
	require.InDelta(t, 6, snapshot.RealizedProfit, 1e-9)
}

func TestLedgerOwnershipAndOpenPositions(t *testing.T) {
	ledger := NewLedger()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.BeginSession(testTag, "TradePulse_bot", start, 1000)

	deals := []core.Deal{
		{PositionID: 1, Entry: core.DealEntryIn, Side: core.SideBuy, Price: 100, Volume: 1, Commission: -0.5, Magic: testTag, Time: start},
		{PositionID: 1, Entry: core.DealEntryOut, Side: core.SideSell, Price: 99, Volume: 1, Profit: -1, Magic: testTag, Time: start.Add(time.Minute)},
		{PositionID: 2, Entry: core.DealEntryIn, Profit: 0, Comment: "TradePulse_bot", Time: start},
		{PositionID: 3, Profit: 50, Magic: 1},
		{PositionID: 4, Entry: core.DealEntryOut, Profit: 0, Magic: testTag},
	}
	positions := []core.Position{
		{Ticket: 2, Profit: 1.25, Comment: "TradePulse_bot"},
		{Ticket: 9, Profit: 100},
	}

	snapshot := ledger.Refresh(deals, positions, core.Account{Balance: 990, Equity: 991.25}, start.Add(2*time.Minute))
	require.Equal(t, 2, snapshot.TotalTrades)
	require.Equal(t, 0, snapshot.WinningTrades)
	require.Equal(t, 1, snapshot.LosingTrades)
	require.Equal(t, 1, snapshot.BreakEvenTrades)
	require.Equal(t, snapshot.TotalTrades, snapshot.WinningTrades+snapshot.LosingTrades+snapshot.BreakEvenTrades)
	require.InDelta(t, -1.5, snapshot.RealizedProfit, 1e-9)
	require.InDelta(t, 1.25, snapshot.UnrealizedProfit, 1e-9)
}

func TestLedgerDrawdownNeverDecreases(t *testing.T) {
	ledger := NewLedger()
	start := time.Now()
	ledger.BeginSession(testTag, "", start, 1000)

	var last float64
	for _, balance := range []float64{1000, 1010, 980, 1020, 1005, 1030, 990} {
		snapshot := ledger.Refresh(nil, nil, core.Account{Balance: balance}, start)
		require.GreaterOrEqual(t, snapshot.MaxDrawdown, last)
		last = snapshot.MaxDrawdown
	}

	snapshot := ledger.Snapshot()
	require.Equal(t, 1030.0, snapshot.PeakBalance)
	require.Equal(t, 40.0, snapshot.Drawdown)
	require.Equal(t, 40.0, snapshot.MaxDrawdown)
}

func TestLedgerActiveTradeLifecycle(t *testing.T) {
	store, err := storage.FromMemory()
	require.NoError(t, err)
	defer store.Close()

	ledger := NewLedger(WithTradeStore(store))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.BeginSession(testTag, "", start, 1000)

	opened := ledger.RecordOpened(ActiveTrade{Ticket: 7, Symbol: "ETHUSD", Side: core.SideBuy, Volume: 0.1, EntryPrice: 2000, EntryTime: start})
	require.NotEmpty(t, opened.ID)
	require.Equal(t, TradeOpen, opened.Status)
	require.Len(t, ledger.ActiveTrades(), 1)

	// still open
	positions := []core.Position{{Ticket: 7, Magic: testTag, Profit: 2}}
	deals := []core.Deal{{PositionID: 7, Entry: core.DealEntryIn, Magic: testTag, Time: start}}
	snapshot := ledger.Refresh(deals, positions, core.Account{Balance: 1000}, start.Add(time.Minute))
	require.Equal(t, 1, snapshot.ActiveTrades)
	require.Zero(t, snapshot.TotalTrades)

	// closed
	deals = append(deals, core.Deal{PositionID: 7, Entry: core.DealEntryOut, Profit: 4, Price: 2040, Magic: testTag, Time: start.Add(2 * time.Minute)})
	snapshot = ledger.Refresh(deals, nil, core.Account{Balance: 1004}, start.Add(3*time.Minute))
	require.Zero(t, snapshot.ActiveTrades)
	require.Equal(t, 1, snapshot.TotalTrades)
	require.Empty(t, ledger.ActiveTrades())
	require.True(t, store.Has(7))

	trades, err := store.Trades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, 2040.0, trades[0].ExitPrice)
}

func TestLedgerKeepsLifetimeAcrossSessions(t *testing.T) {
	ledger := NewLedger()
	start := time.Now()

	ledger.BeginSession(1, "", start, 1000)
	ledger.Refresh([]core.Deal{{PositionID: 1, Entry: core.DealEntryOut, Profit: 10, Magic: 1}, {PositionID: 2, Entry: core.DealEntryOut, Profit: -4, Magic: 1}}, nil, core.Account{Balance: 1006}, start)

	ledger.BeginSession(2, "", start, 1006)
	snapshot := ledger.Snapshot()
	require.Zero(t, snapshot.TotalTrades)
	require.Equal(t, 2, snapshot.LifetimeTrades)

	snapshot = ledger.Refresh([]core.Deal{{PositionID: 3, Entry: core.DealEntryOut, Profit: 1, Magic: 2}, {PositionID: 1, Entry: core.DealEntryOut, Profit: 10, Magic: 1}}, nil, core.Account{Balance: 1007}, start)
	require.Equal(t, 1, snapshot.TotalTrades)
	require.Equal(t, 3, snapshot.LifetimeTrades)
	require.Equal(t, 2, snapshot.LifetimeWinning)
	require.Equal(t, 1, snapshot.LifetimeLosing)
	require.InDelta(t, 7, snapshot.LifetimeRealizedProfit, 1e-9)
}

func TestLedgerKeepsTradeWithoutExitDeal(t *testing.T) {
	store, err := storage.FromMemory()
	require.NoError(t, err)
	defer store.Close()

	ledger := NewLedger(WithTradeStore(store))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.BeginSession(testTag, "", start, 1000)
	ledger.RecordOpened(ActiveTrade{Ticket: 7, Symbol: "ETHUSD", Side: core.SideBuy, Volume: 0.1, EntryPrice: 2000, EntryTime: start})

	// the position is missing from the open list, e.g. after a symbol change
	// or a close between the two broker reads
	deals := []core.Deal{{PositionID: 7, Entry: core.DealEntryIn, Commission: -0.5, Magic: testTag, Time: start}}
	snapshot := ledger.Refresh(deals, nil, core.Account{Balance: 999.5}, start.Add(time.Minute))
	require.Zero(t, snapshot.TotalTrades)
	require.Zero(t, snapshot.LosingTrades)
	require.Zero(t, snapshot.RealizedProfit)
	require.Equal(t, 1, snapshot.ActiveTrades)
	require.Len(t, ledger.ActiveTrades(), 1)
	require.False(t, store.Has(7))

	deals = append(deals, core.Deal{PositionID: 7, Entry: core.DealEntryOut, Profit: 3, Price: 2030, Magic: testTag, Time: start.Add(2 * time.Minute)})
	snapshot = ledger.Refresh(deals, nil, core.Account{Balance: 1002.5}, start.Add(3*time.Minute))
	require.Equal(t, 1, snapshot.TotalTrades)
	require.InDelta(t, 2.5, snapshot.RealizedProfit, 1e-9)
	require.Zero(t, snapshot.ActiveTrades)
	require.True(t, store.Has(7))
}
