package main

import (
	"os"

	tradepulse "github.com/MLOpsArtisan/TradePulse-ver1.2"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/backtesting"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/spf13/cobra"
)

// Replay command flags
var (
	replayFile      string
	replayStrategy  string
	replaySymbol    string
	replayTimeframe string
	replayConfig    string
	replayBalance   float64
)

func buildReplayCmd() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a strategy over a CSV file",
		RunE:  runReplay,
	}

	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "CSV file with bars (e.g. ./eth-1m.csv)")
	replayCmd.Flags().StringVarP(&replayStrategy, "strategy", "s", "", "Strategy id or alias (e.g. rsi)")
	replayCmd.Flags().StringVarP(&replaySymbol, "symbol", "p", "ETHUSD", "Symbol of the file")
	replayCmd.Flags().StringVarP(&replayTimeframe, "timeframe", "t", "1m", "Timeframe of the file bars")
	replayCmd.Flags().StringVarP(&replayConfig, "config", "c", "", "Config file for the engine settings")
	replayCmd.Flags().Float64Var(&replayBalance, "balance", 0, "Initial paper balance (default from config)")

	replayCmd.MarkFlagRequired("file")
	replayCmd.MarkFlagRequired("strategy")

	return replayCmd
}

func runReplay(cmd *cobra.Command, _ []string) error {
	log := tradepulse.DefaultLog

	_, cfg, err := loadConfig(replayConfig)
	if err != nil {
		return err
	}
	cfg.Engine.Strategy = replayStrategy
	if replayBalance > 0 {
		cfg.Paper.Balance = replayBalance
	}

	feed, err := exchange.NewCSVFeed(replaySymbol, replayFile, replayTimeframe,
		exchange.WithSpreadPoints(cfg.Paper.SpreadPoints))
	if err != nil {
		return err
	}

	result, err := backtesting.NewReplay(feed, cfg.Engine,
		backtesting.WithRegistry(strategy.NewRegistry(strategy.WithLogger(log))),
		backtesting.WithBrokerOptions(
			exchange.WithPaperBalance(cfg.Paper.Balance),
			exchange.WithContractSize(cfg.Paper.ContractSize),
			exchange.WithCommission(cfg.Paper.Commission),
		),
		backtesting.WithReplayLogger(log),
		backtesting.WithReplayProgress(os.Stderr),
	).Run(cmd.Context())
	if err != nil {
		return err
	}

	tradepulse.Summary(cmd.OutOrStdout(), result)
	return nil
}
