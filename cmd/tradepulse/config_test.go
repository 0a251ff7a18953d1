package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
engine:
  bot_id: desk1
  symbol: btcusd
  strategy: macd
  lot_size: 0.05
  poll_interval: 2s
  spread_limits:
    ETHUSD: 500
  strategy_options:
    fast_period: 8
paper:
  source: csv
  file: ./eth.csv
  balance: 2500
telegram:
  enabled: true
  token: secret
  users: [10, 20]
kafka:
  brokers: [localhost:9092]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradepulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	_, cfg, err := loadConfig("")
	require.NoError(t, err)

	require.Equal(t, engine.DefaultConfig(), cfg.Engine)
	require.Equal(t, "binance", cfg.Paper.Source)
	require.Equal(t, 10000.0, cfg.Paper.Balance)
	require.Equal(t, time.Second, cfg.Paper.BarInterval)
	require.Equal(t, 3, cfg.Predictor.Attempts)
	require.Equal(t, "tradepulse.events", cfg.Kafka.Topic)
	require.Equal(t, 587, cfg.Mail.Port)
	require.False(t, cfg.Telegram.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	v, cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NotEmpty(t, v.ConfigFileUsed())

	require.Equal(t, "desk1", cfg.Engine.BotID)
	require.Equal(t, "BTCUSD", cfg.Engine.Symbol)
	require.Equal(t, "macd", cfg.Engine.Strategy)
	require.Equal(t, 0.05, cfg.Engine.LotSize)
	require.Equal(t, 2*time.Second, cfg.Engine.PollInterval)
	require.Equal(t, 2*time.Second, cfg.Engine.Cooldown)
	require.Equal(t, 500, cfg.Engine.SpreadLimits["ETHUSD"])
	require.Equal(t, 2000, cfg.Engine.SpreadLimits["BTCUSD"])
	require.EqualValues(t, 8, cfg.Engine.Options["fast_period"])

	require.Equal(t, "csv", cfg.Paper.Source)
	require.Equal(t, 2500.0, cfg.Paper.Balance)
	require.Equal(t, []int64{10, 20}, cfg.Telegram.Users)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("TRADEPULSE_ENGINE_SYMBOL", "xauusd")
	t.Setenv("TRADEPULSE_TELEGRAM_TOKEN", "from-env")

	_, cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "XAUUSD", cfg.Engine.Symbol)
	require.Equal(t, "from-env", cfg.Telegram.Token)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		engine  bool
	}{
		{name: "paper source", content: "paper:\n  source: ftp\n"},
		{name: "csv without file", content: "paper:\n  source: csv\n"},
		{name: "telegram without token", content: "telegram:\n  enabled: true\n"},
		{name: "lot size", content: "engine:\n  lot_size: 0\n", engine: true},
		{name: "confidence", content: "engine:\n  min_signal_confidence: 2\n", engine: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := loadConfig(writeConfig(t, tt.content))
			require.Error(t, err)

			var configErr *engine.ConfigError
			require.Equal(t, tt.engine, errors.As(err, &configErr))
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnginePartialRoundTrip(t *testing.T) {
	cfg := engine.DefaultConfig()

	update, err := engine.ApplyUpdate(cfg, enginePartial(cfg))
	require.NoError(t, err)
	require.Empty(t, update.Changed)
	require.Empty(t, update.Rejected)
}

func TestEnginePartialChanges(t *testing.T) {
	cfg := engine.DefaultConfig()
	next := cfg.Clone()
	next.LotSize = 0.02
	next.PollInterval = 1500 * time.Millisecond
	next.Strategy = "macd"
	next.SpreadLimits["ETHUSD"] = 700

	update, err := engine.ApplyUpdate(cfg, enginePartial(next))
	require.NoError(t, err)
	require.Empty(t, update.Rejected)
	require.ElementsMatch(t, []string{"LotSize", "PollInterval", "SpreadLimits", "Strategy"}, update.Changed)
	require.Equal(t, 1500*time.Millisecond, update.Config.PollInterval)
	require.Equal(t, 700, update.Config.SpreadLimits["ETHUSD"])
}

type fakeUpdater struct {
	partials []map[string]any
}

func (f *fakeUpdater) UpdateConfig(partial map[string]any) (engine.Update, error) {
	f.partials = append(f.partials, partial)
	return engine.Update{}, nil
}

func TestReload(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	v, _, err := loadConfig(path)
	require.NoError(t, err)

	target := &fakeUpdater{}
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  lot_size: 0.3\n  cooldown: 500ms\n"), 0o600))
	require.NoError(t, v.ReadInConfig())
	reload(v, target, logger.Nop())

	require.Len(t, target.partials, 1)
	require.Equal(t, 0.3, target.partials[0]["lot_size"])
	require.Equal(t, 0.5, target.partials[0]["cooldown_seconds"])

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  lot_size: -1\n"), 0o600))
	require.NoError(t, v.ReadInConfig())
	reload(v, target, logger.Nop())
	require.Len(t, target.partials, 1)
}

func TestPrintStrategies(t *testing.T) {
	buffer := bytes.NewBuffer(nil)
	cmd := &cobra.Command{}
	cmd.SetOut(buffer)

	printStrategies(cmd, strategy.NewRegistry())

	out := buffer.String()
	for _, id := range []string{"bollinger", "composite", "ma_crossover", "ml", "vwap"} {
		require.Contains(t, out, id)
	}
	require.Contains(t, out, "bb, bollinger_bands, bollinger_tick")
}

func TestBuildDownloadOptions(t *testing.T) {
	defer func() { days, startDate, endDate = 0, "", "" }()

	days, startDate, endDate = 0, "2024-01-01", ""
	_, err := buildDownloadOptions()
	require.Error(t, err)

	startDate, endDate = "2024-01-01", "01/02/2024"
	_, err = buildDownloadOptions()
	require.Error(t, err)

	days, startDate, endDate = 7, "2024-01-01", "2024-02-01"
	options, err := buildDownloadOptions()
	require.NoError(t, err)
	require.Len(t, options, 2)
}
