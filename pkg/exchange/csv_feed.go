package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/samber/lo"
)

// DefaultSpreadPoints is the synthetic spread of bars without bid/ask columns
const DefaultSpreadPoints = 20

var defaultHeaderMap = map[string]int{
	"time": 0, "open": 1, "close": 2, "low": 3, "high": 4, "volume": 5,
}

// DefaultSymbolInfo describes a freely tradable symbol quoted with two digits
func DefaultSymbolInfo(symbol string) core.SymbolInfo {
	return core.SymbolInfo{
		Symbol:   strings.ToUpper(symbol),
		Point:    0.01,
		Digits:   2,
		MinLot:   0.01,
		MaxLot:   100,
		LotStep:  0.01,
		Tradable: true,
	}
}

// CSVFeed replays the bars of a CSV file. Quotes and windows are served as
// of the current bar; Advance moves to the next one.
type CSVFeed struct {
	mu          sync.RWMutex
	symbol      string
	granularity core.Granularity
	info        core.SymbolInfo
	spread      int
	bars        core.Window
	cursor      int
}

// FeedOption configures a CSVFeed
type FeedOption func(*CSVFeed)

// WithFeedSymbolInfo overrides the trading constraints of the replayed symbol
func WithFeedSymbolInfo(info core.SymbolInfo) FeedOption {
	return func(f *CSVFeed) {
		f.info = info
	}
}

// WithSpreadPoints sets the synthetic spread applied to bars without quotes
func WithSpreadPoints(points int) FeedOption {
	return func(f *CSVFeed) {
		f.spread = points
	}
}

// NewCSVFeed loads the bars of file. The first line may be a header naming
// the columns; otherwise columns follow the time, open, close, low, high,
// volume layout. Optional bid and ask columns are used as quotes.
func NewCSVFeed(symbol, file, timeframe string, options ...FeedOption) (*CSVFeed, error) {
	granularity, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	bars, err := readBars(file)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s has no bars", ErrInsufficientData, file)
	}

	feed := &CSVFeed{
		symbol:      strings.ToUpper(symbol),
		granularity: granularity,
		info:        DefaultSymbolInfo(symbol),
		spread:      DefaultSpreadPoints,
		bars:        bars,
	}
	for _, option := range options {
		option(feed)
	}

	feed.fillQuotes()
	return feed, nil
}

func parseHeaders(headers []string) (headerMap map[string]int, hasHeaders bool) {
	if _, err := strconv.Atoi(headers[0]); err == nil {
		return defaultHeaderMap, false
	}

	headerMap = make(map[string]int, len(headers))
	for index, header := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(header))] = index
	}
	return headerMap, true
}

func readBars(file string) (core.Window, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	headerMap, hasHeaders := parseHeaders(lines[0])
	if hasHeaders {
		lines = lines[1:]
	}

	bars := make(core.Window, 0, len(lines))
	for i, line := range lines {
		bar, err := parseBar(line, headerMap)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", file, i+1, err)
		}
		bars = append(bars, bar)
	}

	slices.SortStableFunc(bars, func(a, b core.Observation) int { return a.Time.Compare(b.Time) })
	return bars, nil
}

func parseBar(line []string, headerMap map[string]int) (core.Observation, error) {
	column := func(name string) (float64, error) {
		index, ok := headerMap[name]
		if !ok || index >= len(line) {
			return 0, fmt.Errorf("missing column %q", name)
		}
		return strconv.ParseFloat(strings.TrimSpace(line[index]), 64)
	}

	timestamp, err := column("time")
	if err != nil {
		return core.Observation{}, err
	}

	bar := core.Observation{Time: time.Unix(int64(timestamp), 0).UTC()}
	for name, target := range map[string]*float64{
		"open": &bar.Open, "close": &bar.Close, "low": &bar.Low, "high": &bar.High, "volume": &bar.Volume,
	} {
		if *target, err = column(name); err != nil {
			return core.Observation{}, err
		}
	}

	// quotes are optional
	for name, target := range map[string]*float64{"bid": &bar.Bid, "ask": &bar.Ask} {
		if _, ok := headerMap[name]; ok {
			if *target, err = column(name); err != nil {
				return core.Observation{}, err
			}
		}
	}
	bar.Last = bar.Close

	return bar, nil
}

// fillQuotes gives every bar without quotes a bid and ask around its close
func (c *CSVFeed) fillQuotes() {
	half := float64(c.spread) * c.info.Point / 2
	for i := range c.bars {
		if c.bars[i].Bid > 0 && c.bars[i].Ask > 0 {
			continue
		}
		c.bars[i].Bid = c.info.NormalizePrice(c.bars[i].Close - half)
		c.bars[i].Ask = c.info.NormalizePrice(c.bars[i].Close + half)
	}
}

// Symbol returns the replayed symbol
func (c *CSVFeed) Symbol() string { return c.symbol }

// Granularity returns the bar granularity of the file
func (c *CSVFeed) Granularity() core.Granularity { return c.granularity }

// Len returns the number of bars
func (c *CSVFeed) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bars)
}

// Position returns the index of the current bar
func (c *CSVFeed) Position() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// Now returns the time of the current bar; replays use it as their clock
func (c *CSVFeed) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bars[c.cursor].Time
}

// Current returns the current bar
func (c *CSVFeed) Current() core.Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bars[c.cursor]
}

// Advance moves to the next bar. It returns false at the end of the file.
func (c *CSVFeed) Advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor+1 >= len(c.bars) {
		return false
	}
	c.cursor++
	return true
}

// Seek moves to bar index i, clamped to the file
func (c *CSVFeed) Seek(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = max(0, min(i, len(c.bars)-1))
}

// Limit keeps only the bars of the last duration of the file
func (c *CSVFeed) Limit(duration time.Duration) *CSVFeed {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.bars[len(c.bars)-1].Time.Add(-duration)
	c.bars = lo.Filter(c.bars, func(bar core.Observation, _ int) bool {
		return bar.Time.After(start)
	})
	c.cursor = 0
	return c
}

func (c *CSVFeed) checkSymbol(symbol string) error {
	if !strings.EqualFold(symbol, c.symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return nil
}

// Quote returns the quote of the current bar
func (c *CSVFeed) Quote(_ context.Context, symbol string) (core.Quote, error) {
	if err := c.checkSymbol(symbol); err != nil {
		return core.Quote{}, err
	}

	bar := c.Current()
	return core.Quote{Symbol: c.symbol, Bid: bar.Bid, Ask: bar.Ask, Time: bar.Time}, nil
}

// SymbolInfo returns the trading constraints of the replayed symbol
func (c *CSVFeed) SymbolInfo(_ context.Context, symbol string) (core.SymbolInfo, error) {
	if err := c.checkSymbol(symbol); err != nil {
		return core.SymbolInfo{}, err
	}
	return c.info, nil
}

// Window returns observations up to the current bar. Bars stand in for
// ticks, and coarser granularities are resampled from the file's bars.
func (c *CSVFeed) Window(_ context.Context, req core.WindowRequest) (core.Window, error) {
	if err := c.checkSymbol(req.Symbol); err != nil {
		return nil, err
	}

	c.mu.RLock()
	visible := c.bars[:c.cursor+1]
	c.mu.RUnlock()

	var window core.Window
	switch {
	case req.Granularity == core.GranularityTick:
		window = lo.Filter(visible, func(bar core.Observation, _ int) bool {
			return req.Since.IsZero() || !bar.Time.Before(req.Since)
		})
	case req.Granularity == c.granularity:
		window = slices.Clone(visible)
	default:
		source, target := c.granularity.Duration(), req.Granularity.Duration()
		if target < source || target%source != 0 {
			return nil, fmt.Errorf("%w: %s bars from %s data", core.ErrUnavailable, req.Granularity, c.granularity)
		}
		window = resample(visible, source, target)
	}

	if req.Count > 0 {
		window = window.Tail(req.Count)
	}
	return window, nil
}

func isFirstBarOfPeriod(t time.Time, target time.Duration) bool {
	return t.Truncate(target).Equal(t)
}

func isLastBarOfPeriod(t time.Time, source, target time.Duration) bool {
	next := t.Add(source)
	return next.Truncate(target).Equal(next)
}

// resample aggregates bars into target sized periods. Leading bars before
// the first period boundary and a trailing incomplete period are dropped.
func resample(bars core.Window, source, target time.Duration) core.Window {
	start := slices.IndexFunc(bars, func(bar core.Observation) bool {
		return isFirstBarOfPeriod(bar.Time, target)
	})
	if start < 0 {
		return core.Window{}
	}

	resampled := make(core.Window, 0, len(bars)/int(target/source)+1)
	var current core.Observation
	inPeriod := false

	for _, bar := range bars[start:] {
		if !inPeriod {
			current = bar
			current.Time = bar.Time.Truncate(target)
			inPeriod = true
		} else {
			current.High = math.Max(current.High, bar.High)
			current.Low = math.Min(current.Low, bar.Low)
			current.Close = bar.Close
			current.Last = bar.Last
			current.Bid, current.Ask = bar.Bid, bar.Ask
			current.Volume += bar.Volume
		}

		if isLastBarOfPeriod(bar.Time, source, target) {
			resampled = append(resampled, current)
			inPeriod = false
		}
	}

	return resampled
}
