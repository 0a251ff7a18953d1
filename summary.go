// Package tradepulse holds the process-wide defaults shared by the command
// line tools: the environment configured logger and the replay report.
package tradepulse

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/backtesting"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/metric"
	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const (
	bootstrapResamples = 10000
	histogramBins      = 15
)

// Summary prints the replay results: the trades table, a histogram of trade
// returns and 95% bootstrap intervals.
func Summary(w io.Writer, result backtesting.Result) {
	snapshot := result.Snapshot

	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Symbol", "Strategy", "Trades", "Win", "Loss", "% Win", "Payoff", "Pr Fact.", "SQN", "Profit"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)
	table.Append([]string{
		result.Symbol,
		result.Strategy,
		strconv.Itoa(snapshot.TotalTrades),
		strconv.Itoa(snapshot.WinningTrades),
		strconv.Itoa(snapshot.LosingTrades),
		fmt.Sprintf("%.1f %%", snapshot.WinRate*100),
		fmt.Sprintf("%.3f", snapshot.Payoff),
		fmt.Sprintf("%.3f", snapshot.ProfitFactor),
		fmt.Sprintf("%.1f", snapshot.SQN),
		fmt.Sprintf("%.2f", snapshot.RealizedProfit),
	})
	table.Render()

	fmt.Fprintln(w, buffer.String())
	fmt.Fprintf(w, "PERIOD:       %s ~ %s (%d bars)\n", result.Start.Format("2006-01-02 15:04"), result.End.Format("2006-01-02 15:04"), result.Bars)
	fmt.Fprintf(w, "SIGNALS:      %d (%d executed)\n", result.Signals, result.Executions)
	fmt.Fprintf(w, "BALANCE:      %.2f -> %.2f\n", result.InitialBalance, result.FinalBalance)
	if result.MaxDrawdown < 0 {
		fmt.Fprintf(w, "MAX DRAWDOWN: %.2f %% (%s ~ %s)\n", result.MaxDrawdown*100,
			result.DrawdownStart.Format("2006-01-02 15:04"), result.DrawdownEnd.Format("2006-01-02 15:04"))
	}

	if len(result.Diagnostics) > 0 {
		fmt.Fprintln(w, "------ DIAGNOSTICS -------")
		codes := lo.Keys(result.Diagnostics)
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "%-24s %d\n", code, result.Diagnostics[code])
		}
	}

	if len(result.Trades) == 0 {
		fmt.Fprintln(w, "No trades.")
		return
	}

	returns := lo.Map(result.Trades, func(t core.CompletedTrade, _ int) float64 { return t.ProfitPercent() })

	// a histogram needs a spread of values to size its bins
	if lo.Min(returns) < lo.Max(returns) {
		fmt.Fprintln(w, "------ RETURN -------")
		hist := histogram.Hist(histogramBins, returns)
		_ = histogram.Fprint(w, hist, histogram.Linear(10))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "------ CONFIDENCE INTERVAL (95%) -------")
	returnsInterval := metric.Bootstrap(returns, metric.Mean, bootstrapResamples, 0.95)
	payoffInterval := metric.Bootstrap(returns, metric.Payoff, bootstrapResamples, 0.95)
	profitFactorInterval := metric.Bootstrap(returns, metric.ProfitFactor, bootstrapResamples, 0.95)

	fmt.Fprintf(w, "RETURN:      %.3f%% (%.3f%% ~ %.3f%%)\n",
		returnsInterval.Mean, returnsInterval.Lower, returnsInterval.Upper)
	fmt.Fprintf(w, "PAYOFF:      %.2f (%.2f ~ %.2f)\n",
		payoffInterval.Mean, payoffInterval.Lower, payoffInterval.Upper)
	fmt.Fprintf(w, "PROF.FACTOR: %.2f (%.2f ~ %.2f)\n",
		profitFactorInterval.Mean, profitFactorInterval.Lower, profitFactorInterval.Upper)
}
