package storage

import (
	"testing"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestTradeStore(t *testing.T) {
	store, err := FromMemory()
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := []core.CompletedTrade{
		{PositionID: 3, Symbol: "ETHUSD", Side: core.SideSell, Profit: -1, CloseTime: now.Add(2 * time.Minute)},
		{PositionID: 1, Symbol: "ETHUSD", Side: core.SideBuy, Profit: 5, CloseTime: now},
		{PositionID: 2, Symbol: "BTCUSD", Side: core.SideBuy, Profit: 2, CloseTime: now.Add(time.Minute)},
	}

	for _, trade := range trades {
		created, err := store.Save(trade)
		require.NoError(t, err)
		require.True(t, created)
	}

	created, err := store.Save(trades[0])
	require.NoError(t, err)
	require.False(t, created)

	n, err := store.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, store.Has(2))
	require.False(t, store.Has(4))

	t.Run("ordered by close time", func(t *testing.T) {
		all, err := store.Trades()
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, int64(1), all[0].PositionID)
		require.Equal(t, int64(2), all[1].PositionID)
		require.Equal(t, int64(3), all[2].PositionID)
		require.True(t, all[0].CloseTime.Equal(now))
	})

	t.Run("filters", func(t *testing.T) {
		filtered, err := store.Trades(WithSymbol("ETHUSD"), WithSide(core.SideBuy))
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		require.Equal(t, 5.0, filtered[0].Profit)
	})
}
