package main

import (
	"fmt"
	"time"

	tradepulse "github.com/MLOpsArtisan/TradePulse-ver1.2"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/backtesting"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange/binance"
	"github.com/spf13/cobra"
)

// Download command flags
var (
	symbol     string
	pair       string
	days       int
	startDate  string
	endDate    string
	timeframe  string
	outputFile string
	testNet    bool
)

func buildDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical data",
		RunE:  runDownload,
	}

	downloadCmd.Flags().StringVarP(&symbol, "symbol", "p", "", "Trading symbol (e.g. ETHUSD)")
	downloadCmd.Flags().StringVar(&pair, "pair", "", "Exchange pair of the symbol (default derived, e.g. ETHUSDT)")
	downloadCmd.Flags().IntVarP(&days, "days", "d", 0, "Number of days to download (default 30 days)")
	downloadCmd.Flags().StringVarP(&startDate, "start", "s", "", "Start date (e.g. 2021-12-01)")
	downloadCmd.Flags().StringVarP(&endDate, "end", "e", "", "End date (e.g. 2020-12-31)")
	downloadCmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "Timeframe (e.g. 1m)")
	downloadCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (e.g. ./eth-1m.csv)")
	downloadCmd.Flags().BoolVar(&testNet, "testnet", false, "Use the Binance testnet")

	downloadCmd.MarkFlagRequired("symbol")
	downloadCmd.MarkFlagRequired("timeframe")
	downloadCmd.MarkFlagRequired("output")

	return downloadCmd
}

func runDownload(cmd *cobra.Command, _ []string) error {
	log := tradepulse.DefaultLog

	options := []binance.SpotOption{binance.WithLogger(log)}
	if pair != "" {
		options = append(options, binance.WithSymbol(symbol, pair))
	}
	if testNet {
		options = append(options, binance.WithTestNet())
	}

	spot, err := binance.NewSpot(cmd.Context(), options...)
	if err != nil {
		return err
	}

	downloadOptions, err := buildDownloadOptions()
	if err != nil {
		return err
	}

	return backtesting.NewDownloader(spot, backtesting.WithDownloadLogger(log)).Download(
		cmd.Context(),
		symbol,
		timeframe,
		outputFile,
		downloadOptions...,
	)
}

func buildDownloadOptions() ([]backtesting.Option, error) {
	var options []backtesting.Option

	if days > 0 {
		options = append(options, backtesting.WithDays(days))
	}

	if startDate != "" || endDate != "" {
		// both must be provided together
		if startDate == "" || endDate == "" {
			return nil, fmt.Errorf("START and END dates must be provided together")
		}

		start, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date format: %w", err)
		}

		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date format: %w", err)
		}

		options = append(options, backtesting.WithInterval(start, end))
	}

	return options, nil
}
