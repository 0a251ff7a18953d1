package risk

import (
	"testing"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/stretchr/testify/require"
)

var ethusd = core.SymbolInfo{
	Symbol:           "ETHUSD",
	Point:            0.01,
	Digits:           2,
	MinLot:           0.01,
	MaxLot:           100,
	LotStep:          0.01,
	StopsLevelPoints: 50,
	Tradable:         true,
}

func validCheck() Check {
	return Check{
		Signal:     *core.NewSignal(core.SideBuy, 2000, 0.8, "test"),
		Volume:     0.1,
		Entry:      2000,
		StopLoss:   1990,
		TakeProfit: 2020,
		Account:    core.Account{Balance: 1000, FreeMargin: 1000},
		Symbol:     ethusd,
	}
}

func TestValidator(t *testing.T) {
	validator := NewValidator()

	t.Run("accepts a request meeting every check", func(t *testing.T) {
		result := validator.Validate(validCheck())
		require.True(t, result.OK(), result.Reasons)
		require.NoError(t, result.Err())
	})

	t.Run("lot below minimum", func(t *testing.T) {
		check := validCheck()
		check.Volume = 0.001
		result := validator.Validate(check)
		require.False(t, result.OK())
		require.ErrorIs(t, result.Err(), ErrRejected)
		require.Len(t, result.Reasons, 2)
		require.Contains(t, result.Reasons[0], "minimum lot")
		require.Contains(t, result.Reasons[1], "lot step")
	})

	t.Run("stop inside buffered minimum", func(t *testing.T) {
		// minimum is 100 points * 0.01 * 2 = 2.0
		check := validCheck()
		check.StopLoss = 1999
		result := validator.Validate(check)
		require.Len(t, result.Reasons, 1)
		require.Contains(t, result.Reasons[0], "stop loss distance")
	})

	t.Run("collects all failures", func(t *testing.T) {
		check := validCheck()
		check.Volume = 500
		check.StopLoss = 2001
		check.TakeProfit = 1990
		check.Account = core.Account{Balance: 10}
		check.Symbol.Tradable = false

		result := validator.Validate(check)
		require.Len(t, result.Reasons, 6)
	})

	t.Run("sell stops mirror buy stops", func(t *testing.T) {
		check := validCheck()
		check.Signal.Side = core.SideSell
		check.StopLoss, check.TakeProfit = 2010, 1980
		require.True(t, validator.Validate(check).OK())
	})
}

func TestPlanner(t *testing.T) {
	quote := core.Quote{Symbol: "ETHUSD", Bid: 1999.5, Ask: 2000.5}

	t.Run("pips", func(t *testing.T) {
		planner := Planner{Mode: DistancePips, StopLoss: 15, TakeProfit: 30, AutoAdjust: false}
		stops := planner.Plan(*core.NewSignal(core.SideBuy, 2000, 0.8, ""), quote, ethusd)
		require.Equal(t, 2000.5, stops.Entry)
		require.InDelta(t, 1999.0, stops.StopLoss, 1e-9)
		require.InDelta(t, 2003.5, stops.TakeProfit, 1e-9)
		require.False(t, stops.Widened)
	})

	t.Run("pips widened to the broker minimum", func(t *testing.T) {
		planner := Planner{Mode: DistancePips, StopLoss: 15, TakeProfit: 30, AutoAdjust: true}
		stops := planner.Plan(*core.NewSignal(core.SideSell, 2000, 0.8, ""), quote, ethusd)
		require.Equal(t, 1999.5, stops.Entry)
		require.True(t, stops.Widened)
		require.InDelta(t, 2001.51, stops.StopLoss, 1e-9)
		require.InDelta(t, 1996.5, stops.TakeProfit, 1e-9)

		result := NewValidator().Validate(Check{
			Signal: *core.NewSignal(core.SideSell, 2000, 0.8, ""), Volume: 0.01, Entry: stops.Entry,
			StopLoss: stops.StopLoss, TakeProfit: stops.TakeProfit,
			Account: core.Account{Balance: 1000}, Symbol: ethusd,
		})
		require.True(t, result.OK(), result.Reasons)
	})

	t.Run("percent", func(t *testing.T) {
		planner := Planner{Mode: DistancePercent, StopLoss: 1, TakeProfit: 2}
		stops := planner.Plan(*core.NewSignal(core.SideBuy, 2000, 0.8, ""), core.Quote{Bid: 1999, Ask: 2000}, ethusd)
		require.InDelta(t, 1980, stops.StopLoss, 1e-9)
		require.InDelta(t, 2040, stops.TakeProfit, 1e-9)
	})

	t.Run("signal stops take precedence", func(t *testing.T) {
		signal := core.NewSignal(core.SideBuy, 2000, 0.8, "", core.WithStops(5, 12, core.StopUnitPrice))
		planner := Planner{Mode: DistancePips, StopLoss: 15, TakeProfit: 30}
		stops := planner.Plan(*signal, core.Quote{Bid: 1999, Ask: 2000}, ethusd)
		require.InDelta(t, 1995, stops.StopLoss, 1e-9)
		require.InDelta(t, 2012, stops.TakeProfit, 1e-9)
	})
}

func TestParseDistanceMode(t *testing.T) {
	mode, err := ParseDistanceMode(" Percent ")
	require.NoError(t, err)
	require.Equal(t, DistancePercent, mode)

	_, err = ParseDistanceMode("ticks")
	require.Error(t, err)
}
