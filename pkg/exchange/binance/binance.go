package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
)

const (
	defaultAttempts = 3
	// maxTrades is the largest recent trades page Binance serves
	maxTrades = 1000
)

// ErrInvalidSymbol is returned for symbols the exchange does not list
var ErrInvalidSymbol = errors.New("invalid symbol")

// ExchangeSymbol maps a terminal style symbol to its Binance spot pair:
// dollar quoted symbols trade against USDT.
func ExchangeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.HasSuffix(symbol, "USD") {
		return symbol + "T"
	}
	return symbol
}

// setupBackoffRetry creates a backoff with sensible defaults
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// retry calls fn until it succeeds, attempts run out or ctx is done
func retry[T any](ctx context.Context, attempts int, log logger.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	b := setupBackoffRetry()

	for {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if int(b.Attempt())+1 >= attempts {
			return zero, err
		}

		wait := b.Duration()
		log.WithError(err).Debugf("binance call failed, retrying in %s", wait)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// symbolInfo converts exchange info filters to trading constraints
func symbolInfo(symbol string, info binance.Symbol) core.SymbolInfo {
	result := core.SymbolInfo{
		Symbol:   symbol,
		Tradable: info.Status == string(binance.SymbolStatusTypeTrading),
	}

	for _, filter := range info.Filters {
		typ, ok := filter["filterType"]
		if !ok {
			continue
		}

		switch typ {
		case string(binance.SymbolFilterTypeLotSize):
			result.MinLot = parseFilter(filter, "minQty")
			result.MaxLot = parseFilter(filter, "maxQty")
			result.LotStep = parseFilter(filter, "stepSize")
		case string(binance.SymbolFilterTypePriceFilter):
			result.Point = parseFilter(filter, "tickSize")
		}
	}

	if result.Point > 0 {
		result.Digits = int(core.NumDecPlaces(result.Point))
	} else {
		result.Point, result.Digits = math.Pow10(-info.QuotePrecision), info.QuotePrecision
	}
	return result
}

func parseFilter(filter map[string]interface{}, key string) float64 {
	s, ok := filter[key].(string)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// convertKline converts a Binance kline to a bar
func convertKline(k binance.Kline) core.Observation {
	bar := core.Observation{Time: time.UnixMilli(k.OpenTime).UTC()}

	bar.Open, _ = strconv.ParseFloat(k.Open, 64)
	bar.Close, _ = strconv.ParseFloat(k.Close, 64)
	bar.High, _ = strconv.ParseFloat(k.High, 64)
	bar.Low, _ = strconv.ParseFloat(k.Low, 64)
	bar.Volume, _ = strconv.ParseFloat(k.Volume, 64)
	bar.Last = bar.Close

	return bar
}

// convertTrade converts a public trade to a tick
func convertTrade(t binance.Trade) core.Observation {
	price, _ := strconv.ParseFloat(t.Price, 64)
	quantity, _ := strconv.ParseFloat(t.Quantity, 64)
	return core.NewTick(time.UnixMilli(t.Time).UTC(), 0, 0, price, quantity)
}

func wrap(op, symbol string, err error) error {
	return fmt.Errorf("binance %s %s: %w", op, symbol, err)
}
