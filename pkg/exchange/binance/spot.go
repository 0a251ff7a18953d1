package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/adshao/go-binance/v2"
	"github.com/samber/lo"
)

// Spot serves Binance spot market data: book ticker quotes, klines, recent
// trades and symbol filters. It places no orders.
type Spot struct {
	client   *binance.Client
	symbols  map[string]string
	attempts int
	log      logger.Logger

	mu    sync.RWMutex
	infos map[string]core.SymbolInfo
}

// SpotOption is a function that configures a Spot client
type SpotOption func(*Spot)

// WithCredentials sets the API credentials for the Spot client
func WithCredentials(key, secret string) SpotOption {
	return func(s *Spot) {
		s.client = binance.NewClient(key, secret)
	}
}

// WithTestNet enables the Binance testnet
func WithTestNet() SpotOption {
	return func(_ *Spot) {
		binance.UseTestnet = true
	}
}

// WithSymbol maps an engine symbol to a Binance pair, overriding
// ExchangeSymbol.
func WithSymbol(symbol, pair string) SpotOption {
	return func(s *Spot) {
		s.symbols[strings.ToUpper(symbol)] = strings.ToUpper(pair)
	}
}

// WithAttempts sets how many times a failed call is tried
func WithAttempts(attempts int) SpotOption {
	return func(s *Spot) {
		s.attempts = max(1, attempts)
	}
}

// WithLogger sets the client logger
func WithLogger(log logger.Logger) SpotOption {
	return func(s *Spot) {
		s.log = log
	}
}

// NewSpot creates a Binance spot market data client and checks connectivity
func NewSpot(ctx context.Context, options ...SpotOption) (*Spot, error) {
	spot := &Spot{
		client:   binance.NewClient("", ""),
		symbols:  make(map[string]string),
		attempts: defaultAttempts,
		log:      logger.Nop(),
		infos:    make(map[string]core.SymbolInfo),
	}
	for _, option := range options {
		option(spot)
	}

	if _, err := retry(ctx, spot.attempts, spot.log, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, spot.client.NewPingService().Do(ctx)
	}); err != nil {
		return nil, fmt.Errorf("binance ping fail: %w", err)
	}

	spot.log.Info("using Binance spot market data")
	return spot, nil
}

func (s *Spot) pair(symbol string) string {
	if pair, ok := s.symbols[strings.ToUpper(symbol)]; ok {
		return pair
	}
	return ExchangeSymbol(symbol)
}

// Quote returns the best bid and ask
func (s *Spot) Quote(ctx context.Context, symbol string) (core.Quote, error) {
	pair := s.pair(symbol)
	tickers, err := retry(ctx, s.attempts, s.log, func(ctx context.Context) ([]*binance.BookTicker, error) {
		return s.client.NewListBookTickersService().Symbol(pair).Do(ctx)
	})
	if err != nil {
		return core.Quote{}, wrap("book ticker", pair, err)
	}
	if len(tickers) == 0 {
		return core.Quote{}, wrap("book ticker", pair, core.ErrUnavailable)
	}

	quote := core.Quote{Symbol: symbol, Time: time.Now()}
	quote.Bid, _ = strconv.ParseFloat(tickers[0].BidPrice, 64)
	quote.Ask, _ = strconv.ParseFloat(tickers[0].AskPrice, 64)
	return quote, nil
}

// SymbolInfo returns the pair's lot and price filters. Results are cached.
func (s *Spot) SymbolInfo(ctx context.Context, symbol string) (core.SymbolInfo, error) {
	pair := s.pair(symbol)

	s.mu.RLock()
	info, ok := s.infos[pair]
	s.mu.RUnlock()
	if ok {
		info.Symbol = symbol
		return info, nil
	}

	exchangeInfo, err := retry(ctx, s.attempts, s.log, func(ctx context.Context) (*binance.ExchangeInfo, error) {
		return s.client.NewExchangeInfoService().Symbol(pair).Do(ctx)
	})
	if err != nil {
		return core.SymbolInfo{}, wrap("exchange info", pair, err)
	}

	found, ok := lo.Find(exchangeInfo.Symbols, func(sym binance.Symbol) bool { return sym.Symbol == pair })
	if !ok {
		return core.SymbolInfo{}, wrap("exchange info", pair, ErrInvalidSymbol)
	}

	info = symbolInfo(symbol, found)
	s.mu.Lock()
	s.infos[pair] = info
	s.mu.Unlock()
	return info, nil
}

// Window returns recent trades as ticks, or the last closed klines
func (s *Spot) Window(ctx context.Context, req core.WindowRequest) (core.Window, error) {
	if req.Granularity == core.GranularityTick {
		return s.ticks(ctx, req)
	}

	timeframe := exchange.Timeframe(req.Granularity)
	if timeframe == "" {
		return nil, fmt.Errorf("%w: %s", exchange.ErrInvalidTimeframe, req.Granularity)
	}

	pair := s.pair(req.Symbol)
	klines, err := retry(ctx, s.attempts, s.log, func(ctx context.Context) ([]*binance.Kline, error) {
		service := s.client.NewKlinesService().Symbol(pair).Interval(timeframe)
		if req.Count > 0 {
			// one more to discard the incomplete kline
			service = service.Limit(req.Count + 1)
		}
		if !req.Since.IsZero() {
			service = service.StartTime(req.Since.UnixMilli())
		}
		return service.Do(ctx)
	})
	if err != nil {
		return nil, wrap("klines", pair, err)
	}

	if len(klines) > 0 {
		klines = klines[:len(klines)-1]
	}
	return lo.Map(klines, func(k *binance.Kline, _ int) core.Observation { return convertKline(*k) }), nil
}

func (s *Spot) ticks(ctx context.Context, req core.WindowRequest) (core.Window, error) {
	pair := s.pair(req.Symbol)
	trades, err := retry(ctx, s.attempts, s.log, func(ctx context.Context) ([]*binance.Trade, error) {
		return s.client.NewRecentTradesService().Symbol(pair).Limit(maxTrades).Do(ctx)
	})
	if err != nil {
		return nil, wrap("recent trades", pair, err)
	}

	window := make(core.Window, 0, len(trades))
	for _, trade := range trades {
		tick := convertTrade(*trade)
		if !req.Since.IsZero() && tick.Time.Before(req.Since) {
			continue
		}
		window = append(window, tick)
	}

	if req.Count > 0 {
		window = window.Tail(req.Count)
	}
	return window, nil
}

// BarsByPeriod returns the klines opened between start and end
func (s *Spot) BarsByPeriod(ctx context.Context, symbol string, granularity core.Granularity,
	start, end time.Time) (core.Window, error) {

	pair := s.pair(symbol)
	klines, err := retry(ctx, s.attempts, s.log, func(ctx context.Context) ([]*binance.Kline, error) {
		return s.client.NewKlinesService().
			Symbol(pair).
			Interval(exchange.Timeframe(granularity)).
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Do(ctx)
	})
	if err != nil {
		return nil, wrap("klines", pair, err)
	}

	return lo.Map(klines, func(k *binance.Kline, _ int) core.Observation { return convertKline(*k) }), nil
}
