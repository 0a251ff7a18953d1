package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	dateLayout = "2006-01-02"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tradepulse",
		Short:         "Signal driven trading bot",
		Version:       "1.2.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildReplayCmd(),
		buildOptimizeCmd(),
		buildStrategiesCmd(),
		buildDownloadCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
