package main

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/notification"
	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const envPrefix = "TRADEPULSE"

var validate = validator.New()

// AppConfig is the configuration file of the run command
type AppConfig struct {
	Engine    engine.BotConfig `mapstructure:"engine" validate:"-"`
	Paper     PaperConfig      `mapstructure:"paper"`
	Binance   BinanceConfig    `mapstructure:"binance"`
	Predictor PredictorConfig  `mapstructure:"predictor"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Telegram  TelegramConfig   `mapstructure:"telegram"`
	Mail      MailConfig       `mapstructure:"mail"`
	Kafka     KafkaConfig      `mapstructure:"kafka"`
}

// PaperConfig sets up the simulated account and where its prices come from
type PaperConfig struct {
	Source       string        `mapstructure:"source" default:"binance" validate:"oneof=binance csv"`
	File         string        `mapstructure:"file" validate:"required_if=Source csv"`
	Timeframe    string        `mapstructure:"timeframe" default:"1m"`
	BarInterval  time.Duration `mapstructure:"bar_interval" default:"1s" validate:"gt=0"`
	Balance      float64       `mapstructure:"balance" default:"10000" validate:"gt=0"`
	SpreadPoints int           `mapstructure:"spread_points" default:"20" validate:"gte=0"`
	ContractSize float64       `mapstructure:"contract_size" default:"1" validate:"gt=0"`
	Commission   float64       `mapstructure:"commission" validate:"gte=0"`
}

type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	TestNet   bool   `mapstructure:"testnet"`
	Pair      string `mapstructure:"pair"`
	Attempts  int    `mapstructure:"attempts" default:"3" validate:"gte=1"`
}

type PredictorConfig struct {
	URL      string        `mapstructure:"url" validate:"omitempty,url"`
	Attempts int           `mapstructure:"attempts" default:"3" validate:"gte=1"`
	Timeout  time.Duration `mapstructure:"timeout" default:"5s" validate:"gt=0"`
}

// StorageConfig locates the trade history; an empty path keeps it in memory
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelegramConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Token   string  `mapstructure:"token" validate:"required_if=Enabled true"`
	Users   []int64 `mapstructure:"users"`
}

type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port" default:"587"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic" default:"tradepulse.events"`
	BotUpdates bool     `mapstructure:"bot_updates"`
}

// MailParams adapts the mail section to the notifier parameters
func (m MailConfig) MailParams() notification.MailParams {
	return notification.MailParams{
		SMTPServerAddress: m.Host,
		SMTPServerPort:    m.Port,
		From:              m.From,
		To:                m.To,
		Password:          m.Password,
	}
}

// keys readable from the environment even when the file leaves them out
var envKeys = []string{
	"engine.bot_id",
	"engine.symbol",
	"engine.strategy",
	"engine.lot_size",
	"engine.auto_trading_enabled",
	"paper.source",
	"paper.file",
	"paper.balance",
	"binance.api_key",
	"binance.api_secret",
	"binance.testnet",
	"predictor.url",
	"storage.path",
	"metrics.addr",
	"telegram.enabled",
	"telegram.token",
	"mail.enabled",
	"mail.password",
	"kafka.brokers",
	"kafka.topic",
}

// newViper prepares a viper instance reading path, when given, and the
// TRADEPULSE_ environment
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// decodeConfig overlays the values held by v on the defaults and checks them
func decodeConfig(v *viper.Viper) (AppConfig, error) {
	var cfg AppConfig
	if err := defaults.Set(&cfg); err != nil {
		return cfg, err
	}
	cfg.Engine = engine.DefaultConfig()
	cfg.Engine.SpreadLimits = nil

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	// viper lowercases map keys
	limits := maps.Clone(engine.DefaultSpreadLimits)
	for name, limit := range cfg.Engine.SpreadLimits {
		limits[strings.ToUpper(name)] = limit
	}
	cfg.Engine.SpreadLimits = limits
	cfg.Engine.Symbol = strings.ToUpper(cfg.Engine.Symbol)

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfig(path string) (*viper.Viper, AppConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, AppConfig{}, err
	}
	cfg, err := decodeConfig(v)
	return v, cfg, err
}

// enginePartial expresses the hot reloadable part of a config as an update
// map. Intervals are sent as seconds.
func enginePartial(cfg engine.BotConfig) map[string]any {
	return map[string]any{
		"symbol":                    cfg.Symbol,
		"strategy":                  cfg.Strategy,
		"strategy_options":          cfg.Options,
		"lot_size":                  cfg.LotSize,
		"use_stop_loss_take_profit": cfg.UseStopLossTakeProfit,
		"stop_loss":                 cfg.StopLoss,
		"take_profit":               cfg.TakeProfit,
		"distance_mode":             string(cfg.DistanceMode),
		"auto_adjust_stops":         cfg.AutoAdjustStops,
		"auto_trading_enabled":      cfg.AutoTradingEnabled,
		"override_enabled":          cfg.OverrideEnabled,
		"override_min_confidence":   cfg.OverrideMinConfidence,
		"min_signal_confidence":     cfg.MinSignalConfidence,
		"poll_interval_seconds":     cfg.PollInterval.Seconds(),
		"cooldown_seconds":          cfg.Cooldown.Seconds(),
		"lookback_seconds":          cfg.LookbackSeconds,
		"lookback_bars":             cfg.LookbackBars,
		"max_orders_per_minute":     cfg.MaxOrdersPerMinute,
		"spread_filter_enabled":     cfg.SpreadFilterEnabled,
		"spread_limits":             lo.MapValues(cfg.SpreadLimits, func(limit int, _ string) any { return limit }),
	}
}

// updater receives hot config updates
type updater interface {
	UpdateConfig(partial map[string]any) (engine.Update, error)
}

// reload decodes the current content of v and applies its engine section
func reload(v *viper.Viper, target updater, log logger.Logger) {
	cfg, err := decodeConfig(v)
	if err != nil {
		log.WithError(err).Warn("ignoring config change")
		return
	}

	// the engine logs what changed and what it rejected
	_, _ = target.UpdateConfig(enginePartial(cfg.Engine))
}

// watchConfig applies every change of the config file to the engine
func watchConfig(v *viper.Viper, target updater, log logger.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Debugf("config file %s: %s", e.Name, e.Op)
		reload(v, target, log)
	})
	v.WatchConfig()
}
