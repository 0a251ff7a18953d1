package optimizer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// SaveResultsToCSV writes ranked results, one column per parameter and metric
func SaveResultsToCSV(results []*Result, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	paramNames := lo.Uniq(lo.FlatMap(results, func(r *Result, _ int) []string { return lo.Keys(r.Parameters) }))
	slices.Sort(paramNames)

	writer := csv.NewWriter(file)
	header := append([]string{"rank", "duration"}, paramNames...)
	for _, metric := range metrics {
		header = append(header, string(metric))
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, result := range results {
		row := []string{strconv.Itoa(i + 1), result.Duration.Round(time.Millisecond).String()}
		for _, name := range paramNames {
			value, ok := result.Parameters[name]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(value))
		}
		for _, metric := range metrics {
			row = append(row, strconv.FormatFloat(result.Metrics[metric], 'f', 4, 64))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// PrintResults renders the top results as a table
func PrintResults(w io.Writer, results []*Result, target MetricName, topN int) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results to display")
		return
	}
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Parameters", string(target), "Trades", "% Win", "Profit", "Drawdown"})
	table.SetAutoWrapText(false)
	for i, result := range results {
		table.Append([]string{
			strconv.Itoa(i + 1),
			result.Parameters.String(),
			fmt.Sprintf("%.4f", result.Metrics[target]),
			strconv.Itoa(int(result.Metrics[MetricTradeCount])),
			fmt.Sprintf("%.1f %%", result.Metrics[MetricWinRate]*100),
			fmt.Sprintf("%.2f", result.Metrics[MetricProfit]),
			fmt.Sprintf("%.2f %%", result.Metrics[MetricDrawdown]*100),
		})
	}
	table.Render()
}
