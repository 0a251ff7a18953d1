package order

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// PerformanceSnapshot is recomputed from broker history on every ledger
// refresh. Session figures cover the current run; lifetime figures add the
// sessions folded before it.
type PerformanceSnapshot struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	BreakEvenTrades int     `json:"break_even_trades"`
	WinRate         float64 `json:"win_rate"`

	RealizedProfit         float64 `json:"realized_profit"`
	UnrealizedProfit       float64 `json:"unrealized_profit"`
	LifetimeTrades         int     `json:"lifetime_trades"`
	LifetimeWinning        int     `json:"lifetime_winning"`
	LifetimeLosing         int     `json:"lifetime_losing"`
	LifetimeRealizedProfit float64 `json:"lifetime_realized_profit"`

	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	PeakBalance float64 `json:"peak_balance"`
	Drawdown    float64 `json:"drawdown"`
	MaxDrawdown float64 `json:"max_drawdown"`

	ActiveTrades int     `json:"active_trades"`
	Payoff       float64 `json:"payoff"`
	ProfitFactor float64 `json:"profit_factor"`
	SQN          float64 `json:"sqn"`

	Profits   []float64 `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// String formats the snapshot as a text table
func (p PerformanceSnapshot) String() string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	data := [][]string{
		{"Trades", strconv.Itoa(p.TotalTrades)},
		{"Win", strconv.Itoa(p.WinningTrades)},
		{"Loss", strconv.Itoa(p.LosingTrades)},
		{"Even", strconv.Itoa(p.BreakEvenTrades)},
		{"% Win", fmt.Sprintf("%.1f", p.WinRate*100)},
		{"Payoff", fmt.Sprintf("%.2f", p.Payoff)},
		{"Pr.Fact", fmt.Sprintf("%.2f", p.ProfitFactor)},
		{"SQN", fmt.Sprintf("%.2f", p.SQN)},
		{"Realized", fmt.Sprintf("%.2f", p.RealizedProfit)},
		{"Unrealized", fmt.Sprintf("%.2f", p.UnrealizedProfit)},
		{"Lifetime", fmt.Sprintf("%.2f (%d trades)", p.LifetimeRealizedProfit, p.LifetimeTrades)},
		{"Balance", fmt.Sprintf("%.2f", p.Balance)},
		{"Max DD", fmt.Sprintf("%.2f", p.MaxDrawdown)},
		{"Active", strconv.Itoa(p.ActiveTrades)},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return tableString.String()
}

// SaveProfits writes one realized trade profit per line
func (p PerformanceSnapshot) SaveProfits(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, value := range p.Profits {
		if _, err = fmt.Fprintf(file, "%.4f\n", value); err != nil {
			return err
		}
	}

	return nil
}
