package exchange

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/stretchr/testify/require"
)

var feedStart = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

// writeBars writes n one-minute bars starting at start; bar i closes at 100+i
func writeBars(t *testing.T, start time.Time, n int, header string) string {
	t.Helper()

	var b strings.Builder
	if header != "" {
		b.WriteString(header + "\n")
	}
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		fmt.Fprintf(&b, "%d,%.2f,%.2f,%.2f,%.2f,%d\n",
			start.Add(time.Duration(i)*time.Minute).Unix(), price-0.5, price, price-1, price+1, i+1)
	}

	file := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(file, []byte(b.String()), 0o600))
	return file
}

func TestNewCSVFeed(t *testing.T) {
	t.Run("headerless", func(t *testing.T) {
		feed, err := NewCSVFeed("ethusd", writeBars(t, feedStart, 3, ""), "1m")
		require.NoError(t, err)
		require.Equal(t, 3, feed.Len())
		require.Equal(t, "ETHUSD", feed.Symbol())
		require.Equal(t, core.GranularityM1, feed.Granularity())

		bar := feed.Current()
		require.Equal(t, feedStart, bar.Time)
		require.Equal(t, 99.5, bar.Open)
		require.Equal(t, 100.0, bar.Close)
		require.Equal(t, 99.0, bar.Low)
		require.Equal(t, 101.0, bar.High)
		require.Equal(t, 1.0, bar.Volume)
	})

	t.Run("header", func(t *testing.T) {
		feed, err := NewCSVFeed("ETHUSD", writeBars(t, feedStart, 2, "time,open,close,low,high,volume"), "M1")
		require.NoError(t, err)
		require.Equal(t, 2, feed.Len())
	})

	t.Run("quote columns", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "quotes.csv")
		content := fmt.Sprintf("time,open,high,low,close,volume,bid,ask\n%d,1,3,1,2,5,1.95,2.05\n", feedStart.Unix())
		require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

		feed, err := NewCSVFeed("ETHUSD", file, "1m")
		require.NoError(t, err)

		quote, err := feed.Quote(context.Background(), "ETHUSD")
		require.NoError(t, err)
		require.Equal(t, 1.95, quote.Bid)
		require.Equal(t, 2.05, quote.Ask)
		require.Equal(t, 3.0, feed.Current().High)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NewCSVFeed("ETHUSD", writeBars(t, feedStart, 2, ""), "7m")
		require.ErrorIs(t, err, ErrInvalidTimeframe)

		_, err = NewCSVFeed("ETHUSD", filepath.Join(t.TempDir(), "missing.csv"), "1m")
		require.Error(t, err)

		_, err = NewCSVFeed("ETHUSD", writeBars(t, feedStart, 0, "time,open,close,low,high,volume"), "1m")
		require.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestCSVFeedQuoteAndCursor(t *testing.T) {
	feed, err := NewCSVFeed("ETHUSD", writeBars(t, feedStart, 3, ""), "1m")
	require.NoError(t, err)
	ctx := context.Background()

	quote, err := feed.Quote(ctx, "ETHUSD")
	require.NoError(t, err)
	require.InDelta(t, 99.9, quote.Bid, 1e-9)
	require.InDelta(t, 100.1, quote.Ask, 1e-9)
	require.Equal(t, feedStart, quote.Time)

	require.True(t, feed.Advance())
	require.True(t, feed.Advance())
	require.False(t, feed.Advance())
	require.Equal(t, 2, feed.Position())
	require.Equal(t, feedStart.Add(2*time.Minute), feed.Now())

	quote, err = feed.Quote(ctx, "ETHUSD")
	require.NoError(t, err)
	require.InDelta(t, 101.9, quote.Bid, 1e-9)

	feed.Seek(-5)
	require.Equal(t, 0, feed.Position())

	_, err = feed.Quote(ctx, "BTCUSD")
	require.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestCSVFeedWindow(t *testing.T) {
	feed, err := NewCSVFeed("ETHUSD", writeBars(t, feedStart, 12, ""), "1m", WithSpreadPoints(0))
	require.NoError(t, err)
	feed.Seek(11)
	ctx := context.Background()

	t.Run("ticks since", func(t *testing.T) {
		window, err := feed.Window(ctx, core.WindowRequest{
			Symbol: "ETHUSD", Granularity: core.GranularityTick, Since: feed.Now().Add(-2 * time.Minute),
		})
		require.NoError(t, err)
		require.Equal(t, []float64{109, 110, 111}, window.Closes().Values())
	})

	t.Run("bars by count", func(t *testing.T) {
		window, err := feed.Window(ctx, core.WindowRequest{Symbol: "ETHUSD", Granularity: core.GranularityM1, Count: 4})
		require.NoError(t, err)
		require.Equal(t, []float64{108, 109, 110, 111}, window.Closes().Values())
	})

	t.Run("hides future bars", func(t *testing.T) {
		feed.Seek(3)
		defer feed.Seek(11)

		window, err := feed.Window(ctx, core.WindowRequest{Symbol: "ETHUSD", Granularity: core.GranularityM1})
		require.NoError(t, err)
		require.Equal(t, 4, window.Len())
	})

	t.Run("resampled", func(t *testing.T) {
		window, err := feed.Window(ctx, core.WindowRequest{Symbol: "ETHUSD", Granularity: core.GranularityM5})
		require.NoError(t, err)
		require.Equal(t, 2, window.Len())

		first := window[0]
		require.Equal(t, feedStart, first.Time)
		require.Equal(t, 99.5, first.Open)
		require.Equal(t, 104.0, first.Close)
		require.Equal(t, 99.0, first.Low)
		require.Equal(t, 105.0, first.High)
		require.Equal(t, 15.0, first.Volume)
		require.Equal(t, feedStart.Add(5*time.Minute), window[1].Time)
	})

	t.Run("finer than the file", func(t *testing.T) {
		coarse, err := NewCSVFeed("ETHUSD", writeBars(t, feedStart, 2, ""), "5m")
		require.NoError(t, err)

		_, err = coarse.Window(ctx, core.WindowRequest{Symbol: "ETHUSD", Granularity: core.GranularityM1})
		require.ErrorIs(t, err, core.ErrUnavailable)
	})
}

func TestResampleSkipsPartialPeriods(t *testing.T) {
	feed, err := NewCSVFeed("ETHUSD", writeBars(t, feedStart.Add(3*time.Minute), 9, ""), "1m")
	require.NoError(t, err)
	feed.Seek(8)

	window, err := feed.Window(context.Background(), core.WindowRequest{Symbol: "ETHUSD", Granularity: core.GranularityM5})
	require.NoError(t, err)
	require.Equal(t, 1, window.Len())
	require.Equal(t, feedStart.Add(5*time.Minute), window[0].Time)
	require.Equal(t, 106.0, window[0].Close)
}

func TestCSVFeedLimit(t *testing.T) {
	feed, err := NewCSVFeed("ETHUSD", writeBars(t, feedStart, 10, ""), "1m")
	require.NoError(t, err)

	feed.Limit(3 * time.Minute)
	require.Equal(t, 3, feed.Len())
	require.Equal(t, feedStart.Add(7*time.Minute), feed.Now())
}

func TestParseTimeframe(t *testing.T) {
	for input, want := range map[string]core.Granularity{
		"1m": core.GranularityM1, "5m": core.GranularityM5, "15m": core.GranularityM15,
		"1h": core.GranularityH1, "60m": core.GranularityH1, "H1": core.GranularityH1,
	} {
		got, err := ParseTimeframe(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
		require.NotEmpty(t, Timeframe(got))
	}

	_, err := ParseTimeframe("1d")
	require.ErrorIs(t, err, ErrInvalidTimeframe)
	_, err = ParseTimeframe("soon")
	require.ErrorIs(t, err, ErrInvalidTimeframe)
}
