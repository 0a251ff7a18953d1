package main

import (
	"fmt"
	"runtime"

	tradepulse "github.com/MLOpsArtisan/TradePulse-ver1.2"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/optimizer"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/spf13/cobra"
)

// Optimize command flags
var (
	optimizeParams      []string
	optimizeIterations  int
	optimizeParallelism int
	optimizeMetric      string
	optimizeMinimize    bool
	optimizeSeed        int64
	optimizeTop         int
	optimizeOutput      string
)

func buildOptimizeCmd() *cobra.Command {
	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search strategy options over a CSV file",
		Example: "  tradepulse optimize -f eth-1m.csv -s rsi " +
			"--param period=int:4:20 --param oversold=float:20:45 --metric profit_factor",
		RunE: runOptimize,
	}

	optimizeCmd.Flags().StringVarP(&replayFile, "file", "f", "", "CSV file with bars (e.g. ./eth-1m.csv)")
	optimizeCmd.Flags().StringVarP(&replayStrategy, "strategy", "s", "", "Strategy id or alias (e.g. rsi)")
	optimizeCmd.Flags().StringVarP(&replaySymbol, "symbol", "p", "ETHUSD", "Symbol of the file")
	optimizeCmd.Flags().StringVarP(&replayTimeframe, "timeframe", "t", "1m", "Timeframe of the file bars")
	optimizeCmd.Flags().StringVarP(&replayConfig, "config", "c", "", "Config file for the engine settings")
	optimizeCmd.Flags().StringArrayVar(&optimizeParams, "param", nil, "Parameter to search (e.g. period=int:5:30, ma_type=ema|sma)")
	optimizeCmd.Flags().IntVarP(&optimizeIterations, "iterations", "n", 50, "Number of parameter sets to sample")
	optimizeCmd.Flags().IntVar(&optimizeParallelism, "parallel", runtime.NumCPU(), "Concurrent replays")
	optimizeCmd.Flags().StringVarP(&optimizeMetric, "metric", "m", string(optimizer.MetricProfit), "Metric to optimize")
	optimizeCmd.Flags().BoolVar(&optimizeMinimize, "minimize", false, "Minimize the metric instead of maximizing it")
	optimizeCmd.Flags().Int64Var(&optimizeSeed, "seed", 0, "Sampling seed (default random)")
	optimizeCmd.Flags().IntVar(&optimizeTop, "top", 10, "Results to print")
	optimizeCmd.Flags().StringVarP(&optimizeOutput, "output", "o", "", "Save every result to a CSV file")

	optimizeCmd.MarkFlagRequired("file")
	optimizeCmd.MarkFlagRequired("strategy")
	optimizeCmd.MarkFlagRequired("param")

	return optimizeCmd
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	log := tradepulse.DefaultLog

	_, cfg, err := loadConfig(replayConfig)
	if err != nil {
		return err
	}

	id, ok := strategy.NewRegistry().Normalize(replayStrategy)
	if !ok {
		return fmt.Errorf("unknown strategy %q", replayStrategy)
	}
	cfg.Engine.Strategy = id

	metric, err := optimizer.ParseMetric(optimizeMetric)
	if err != nil {
		return err
	}

	config := optimizer.NewConfig().
		WithIterations(optimizeIterations).
		WithParallelism(optimizeParallelism).
		WithSeed(optimizeSeed).
		WithTarget(metric, !optimizeMinimize).
		WithLogger(log)
	for _, definition := range optimizeParams {
		param, err := optimizer.ParseParameter(definition)
		if err != nil {
			return err
		}
		config.WithParameters(param)
	}

	search, err := optimizer.NewRandomSearch(config)
	if err != nil {
		return err
	}

	evaluator := optimizer.NewReplayEvaluator(replayFile, replaySymbol, replayTimeframe, cfg.Engine,
		optimizer.WithFeedOptions(exchange.WithSpreadPoints(cfg.Paper.SpreadPoints)),
		optimizer.WithBrokerOptions(
			exchange.WithPaperBalance(cfg.Paper.Balance),
			exchange.WithContractSize(cfg.Paper.ContractSize),
			exchange.WithCommission(cfg.Paper.Commission),
		),
	)

	results, err := search.Optimize(cmd.Context(), evaluator)
	if err != nil {
		return err
	}

	optimizer.PrintResults(cmd.OutOrStdout(), results, metric, optimizeTop)
	if optimizeOutput != "" {
		if err := optimizer.SaveResultsToCSV(results, optimizeOutput); err != nil {
			return err
		}
		log.Infof("results saved to %s", optimizeOutput)
	}
	return nil
}
