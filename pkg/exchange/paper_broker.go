package exchange

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/samber/lo"
)

// Paper account defaults
const (
	DefaultPaperBalance = 10_000.0
	DefaultMarginRate   = 0.01
)

// EquityPoint is the account equity at a point in time
type EquityPoint struct {
	Time  time.Time
	Value float64
}

// PaperBroker is a simulated hedging account trading against a MarketData
// source. Stop loss and take profit levels are checked against the current
// quote whenever the account, deals or positions are read.
type PaperBroker struct {
	mu sync.RWMutex

	market       MarketData
	log          logger.Logger
	clock        func() time.Time
	contractSize float64
	marginRate   float64
	commission   float64
	fillModes    map[core.FillMode]bool
	counter      atomic.Int64

	initialBalance float64
	balance        float64
	positions      map[int64]*core.Position
	deals          []core.Deal
	equity         []EquityPoint
}

// PaperBrokerOption configures a PaperBroker
type PaperBrokerOption func(*PaperBroker)

// WithPaperBalance sets the starting balance
func WithPaperBalance(balance float64) PaperBrokerOption {
	return func(p *PaperBroker) {
		p.balance = balance
	}
}

// WithContractSize sets the units traded per lot
func WithContractSize(size float64) PaperBrokerOption {
	return func(p *PaperBroker) {
		p.contractSize = size
	}
}

// WithMarginRate sets the share of the notional held as margin
func WithMarginRate(rate float64) PaperBrokerOption {
	return func(p *PaperBroker) {
		p.marginRate = rate
	}
}

// WithCommission sets the commission charged per lot on each deal
func WithCommission(perLot float64) PaperBrokerOption {
	return func(p *PaperBroker) {
		p.commission = perLot
	}
}

// WithFillModes restricts the fill modes the broker accepts
func WithFillModes(modes ...core.FillMode) PaperBrokerOption {
	return func(p *PaperBroker) {
		p.fillModes = make(map[core.FillMode]bool, len(modes))
		for _, mode := range modes {
			p.fillModes[mode] = true
		}
	}
}

// WithPaperLogger sets the paper broker logger
func WithPaperLogger(log logger.Logger) PaperBrokerOption {
	return func(p *PaperBroker) {
		p.log = log
	}
}

// WithPaperClock sets the clock stamping deals, e.g. a replay feed's
func WithPaperClock(clock func() time.Time) PaperBrokerOption {
	return func(p *PaperBroker) {
		p.clock = clock
	}
}

// NewPaperBroker creates a simulated account over market
func NewPaperBroker(market MarketData, options ...PaperBrokerOption) *PaperBroker {
	p := &PaperBroker{
		market:       market,
		log:          logger.Nop(),
		clock:        time.Now,
		contractSize: 1,
		marginRate:   DefaultMarginRate,
		balance:      DefaultPaperBalance,
		fillModes:    lo.SliceToMap(core.FillModes, func(m core.FillMode) (core.FillMode, bool) { return m, true }),
		positions:    make(map[int64]*core.Position),
	}
	for _, option := range options {
		option(p)
	}

	p.initialBalance = p.balance
	p.log.Infof("paper account opened with balance %.2f", p.balance)
	return p
}

func (p *PaperBroker) Quote(ctx context.Context, symbol string) (core.Quote, error) {
	return p.market.Quote(ctx, symbol)
}

func (p *PaperBroker) SymbolInfo(ctx context.Context, symbol string) (core.SymbolInfo, error) {
	return p.market.SymbolInfo(ctx, symbol)
}

func (p *PaperBroker) Window(ctx context.Context, req core.WindowRequest) (core.Window, error) {
	return p.market.Window(ctx, req)
}

// InitialBalance returns the balance the account was opened with
func (p *PaperBroker) InitialBalance() float64 {
	return p.initialBalance
}

// Account marks open positions to market and returns the account state
func (p *PaperBroker) Account(ctx context.Context) (core.Account, error) {
	p.Sync(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.accountLocked(), nil
}

func (p *PaperBroker) accountLocked() core.Account {
	var unrealized, margin float64
	for _, position := range p.positions {
		unrealized += position.Profit
		margin += position.Volume * position.OpenPrice * p.contractSize * p.marginRate
	}

	equity := p.balance + unrealized
	return core.Account{
		Balance:    p.balance,
		Equity:     equity,
		Margin:     margin,
		FreeMargin: equity - margin,
		Currency:   "USD",
	}
}

// SubmitOrder fills a market order at the current quote. Rejections are
// reported through the result code the way a trading terminal does.
func (p *PaperBroker) SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderResult, error) {
	quote, err := p.market.Quote(ctx, req.Symbol)
	if err != nil {
		return core.OrderResult{Code: core.RetPriceOff, Comment: err.Error()}, nil
	}
	info, err := p.market.SymbolInfo(ctx, req.Symbol)
	if err != nil {
		return core.OrderResult{Code: core.RetInvalid, Comment: err.Error()}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if code := p.check(req, quote, info); code != core.RetDone {
		p.log.Debugf("paper order rejected: %s", code)
		return core.OrderResult{Code: code, Comment: code.Description()}, nil
	}

	price := quote.EntryPrice(req.Side)
	now := p.clock()
	ticket := p.counter.Add(1)

	position := &core.Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		OpenPrice:  price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
		Comment:    req.Comment,
		OpenTime:   now,
	}
	p.positions[ticket] = position

	deal := core.Deal{
		Ticket:     p.counter.Add(1),
		PositionID: ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Entry:      core.DealEntryIn,
		Volume:     req.Volume,
		Price:      price,
		Commission: -p.commission * req.Volume,
		Magic:      req.Magic,
		Comment:    req.Comment,
		Time:       now,
	}
	p.deals = append(p.deals, deal)
	p.balance += deal.Commission

	p.log.Infof("paper %s %.2f %s @ %.5f (position %d)", req.Side, req.Volume, req.Symbol, price, ticket)
	return core.OrderResult{Code: core.RetDone, Ticket: ticket, Price: price, Volume: req.Volume}, nil
}

// check validates a request against the symbol and account; the caller
// holds the lock.
func (p *PaperBroker) check(req core.OrderRequest, quote core.Quote, info core.SymbolInfo) core.RetCode {
	switch {
	case !info.Tradable:
		return core.RetTradeDisabled
	case !req.Side.IsDirectional():
		return core.RetInvalid
	case req.FillMode != "" && !p.fillModes[req.FillMode]:
		return core.RetInvalidFill
	case req.Volume < info.MinLot || req.Volume > info.MaxLot:
		return core.RetInvalidVolume
	}

	if steps := req.Volume / info.LotStep; info.LotStep > 0 && math.Abs(steps-math.Round(steps)) > 1e-6 {
		return core.RetInvalidVolume
	}

	// stops are measured from the price the position would close at
	closing := quote.EntryPrice(req.Side.Opposite())
	minDistance := info.MinStopDistance()
	direction := lo.Ternary(req.Side == core.SideBuy, 1.0, -1.0)
	if req.StopLoss != 0 && (closing-req.StopLoss)*direction < minDistance {
		return core.RetInvalidStops
	}
	if req.TakeProfit != 0 && (req.TakeProfit-closing)*direction < minDistance {
		return core.RetInvalidStops
	}

	required := req.Volume * quote.EntryPrice(req.Side) * p.contractSize * p.marginRate
	if required > p.accountLocked().FreeMargin {
		return core.RetNoMoney
	}
	return core.RetDone
}

// ClosePosition closes a position at the current quote
func (p *PaperBroker) ClosePosition(ctx context.Context, ticket int64) error {
	p.mu.RLock()
	position, ok := p.positions[ticket]
	p.mu.RUnlock()
	if !ok {
		return &OrderError{Err: ErrUnknownPosition, Ticket: ticket}
	}

	quote, err := p.market.Quote(ctx, position.Symbol)
	if err != nil {
		return &OrderError{Err: err, Symbol: position.Symbol, Ticket: ticket}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.positions[ticket]; !ok {
		return &OrderError{Err: ErrUnknownPosition, Symbol: position.Symbol, Ticket: ticket}
	}
	p.closeLocked(position, quote.EntryPrice(position.Side.Opposite()), "close")
	return nil
}

// Sync marks open positions to the current quotes and closes those whose
// stop loss or take profit was reached. It records an equity point.
func (p *PaperBroker) Sync(ctx context.Context) {
	p.mu.RLock()
	symbols := lo.Uniq(lo.Map(lo.Values(p.positions), func(pos *core.Position, _ int) string { return pos.Symbol }))
	p.mu.RUnlock()

	quotes := make(map[string]core.Quote, len(symbols))
	for _, symbol := range symbols {
		quote, err := p.market.Quote(ctx, symbol)
		if err != nil {
			p.log.WithError(err).Warnf("cannot mark %s positions", symbol)
			continue
		}
		quotes[symbol] = quote
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, position := range p.sortedPositionsLocked("") {
		quote, ok := quotes[position.Symbol]
		if !ok {
			continue
		}

		closing := quote.EntryPrice(position.Side.Opposite())
		switch {
		case hitStopLoss(position, closing):
			p.closeLocked(position, position.StopLoss, "sl")
		case hitTakeProfit(position, closing):
			p.closeLocked(position, position.TakeProfit, "tp")
		default:
			position.Profit = p.profit(position, closing)
		}
	}

	account := p.accountLocked()
	p.equity = append(p.equity, EquityPoint{Time: p.clock(), Value: account.Equity})
}

func hitStopLoss(position *core.Position, closing float64) bool {
	if position.StopLoss == 0 {
		return false
	}
	if position.Side == core.SideBuy {
		return closing <= position.StopLoss
	}
	return closing >= position.StopLoss
}

func hitTakeProfit(position *core.Position, closing float64) bool {
	if position.TakeProfit == 0 {
		return false
	}
	if position.Side == core.SideBuy {
		return closing >= position.TakeProfit
	}
	return closing <= position.TakeProfit
}

func (p *PaperBroker) profit(position *core.Position, closing float64) float64 {
	move := closing - position.OpenPrice
	if position.Side == core.SideSell {
		move = -move
	}
	return move * position.Volume * p.contractSize
}

// closeLocked books the closing deal of a position; the caller holds the lock
func (p *PaperBroker) closeLocked(position *core.Position, price float64, reason string) {
	profit := p.profit(position, price)
	deal := core.Deal{
		Ticket:     p.counter.Add(1),
		PositionID: position.Ticket,
		Symbol:     position.Symbol,
		Side:       position.Side.Opposite(),
		Entry:      core.DealEntryOut,
		Volume:     position.Volume,
		Price:      price,
		Profit:     profit,
		Commission: -p.commission * position.Volume,
		Magic:      position.Magic,
		Comment:    reason,
		Time:       p.clock(),
	}

	p.deals = append(p.deals, deal)
	p.balance += deal.NetProfit()
	delete(p.positions, position.Ticket)

	p.log.Infof("paper position %d closed by %s @ %.5f, profit %.2f", position.Ticket, reason, price, profit)
}

// DealsSince returns the deals executed at or after since
func (p *PaperBroker) DealsSince(ctx context.Context, since time.Time) ([]core.Deal, error) {
	p.Sync(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Filter(p.deals, func(d core.Deal, _ int) bool { return !d.Time.Before(since) }), nil
}

// OpenPositions returns the open positions of symbol, or all when empty
func (p *PaperBroker) OpenPositions(ctx context.Context, symbol string) ([]core.Position, error) {
	p.Sync(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Map(p.sortedPositionsLocked(symbol), func(pos *core.Position, _ int) core.Position { return *pos }), nil
}

func (p *PaperBroker) sortedPositionsLocked(symbol string) []*core.Position {
	positions := lo.Filter(lo.Values(p.positions), func(pos *core.Position, _ int) bool {
		return symbol == "" || pos.Symbol == symbol
	})
	slices.SortFunc(positions, func(a, b *core.Position) int { return cmp.Compare(a.Ticket, b.Ticket) })
	return positions
}

// EquityCurve returns the recorded equity points
func (p *PaperBroker) EquityCurve() []EquityPoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.equity)
}

// MaxDrawdown returns the deepest relative equity decline and the period it
// spans.
func (p *PaperBroker) MaxDrawdown() (float64, time.Time, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.equity) < 1 {
		return 0, time.Time{}, time.Time{}
	}

	localMin := math.MaxFloat64
	localMinBase := p.equity[0].Value
	localMinStart := p.equity[0].Time
	localMinEnd := p.equity[0].Time

	globalMin := localMin
	globalMinBase := localMinBase
	globalMinStart := localMinStart
	globalMinEnd := localMinEnd

	for i := 1; i < len(p.equity); i++ {
		diff := p.equity[i].Value - p.equity[i-1].Value

		if localMin > 0 {
			localMin = diff
			localMinBase = p.equity[i-1].Value
			localMinStart = p.equity[i-1].Time
			localMinEnd = p.equity[i].Time
		} else {
			localMin += diff
			localMinEnd = p.equity[i].Time
		}

		if localMin < globalMin {
			globalMin = localMin
			globalMinBase = localMinBase
			globalMinStart = localMinStart
			globalMinEnd = localMinEnd
		}
	}

	if globalMin > 0 || globalMinBase == 0 {
		return 0, globalMinStart, globalMinEnd
	}
	return globalMin / globalMinBase, globalMinStart, globalMinEnd
}
