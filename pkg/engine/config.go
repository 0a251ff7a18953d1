package engine

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/risk"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DefaultSpreadLimits are the maximum spreads, in points, tolerated per symbol
var DefaultSpreadLimits = map[string]int{
	"ETHUSD": 1000,
	"BTCUSD": 2000,
	"EURUSD": 10,
	"GBPUSD": 20,
	"USDJPY": 20,
	"XAUUSD": 100,
}

// BotConfig is the full engine configuration. The engine never mutates a
// config in place: updates build a new value and swap it.
type BotConfig struct {
	BotID    string         `mapstructure:"bot_id" default:"tradepulse" validate:"required"`
	Symbol   string         `mapstructure:"symbol" default:"ETHUSD" validate:"required"`
	Strategy string         `mapstructure:"strategy" default:"rsi" validate:"required"`
	Options  map[string]any `mapstructure:"strategy_options"`

	LotSize               float64           `mapstructure:"lot_size" default:"0.01" validate:"gt=0"`
	UseStopLossTakeProfit bool              `mapstructure:"use_stop_loss_take_profit" default:"true"`
	StopLoss              float64           `mapstructure:"stop_loss" default:"15" validate:"gte=0"`
	TakeProfit            float64           `mapstructure:"take_profit" default:"30" validate:"gte=0"`
	DistanceMode          risk.DistanceMode `mapstructure:"distance_mode" default:"pips" validate:"oneof=pips percent"`
	AutoAdjustStops       bool              `mapstructure:"auto_adjust_stops" default:"true"`
	MarginFactor          float64           `mapstructure:"margin_factor" default:"0.1" validate:"gt=0"`
	StopBuffer            float64           `mapstructure:"stop_buffer" default:"2" validate:"gte=1"`

	AutoTradingEnabled    bool    `mapstructure:"auto_trading_enabled" default:"true"`
	OverrideEnabled       bool    `mapstructure:"override_enabled" default:"true"`
	OverrideMinConfidence float64 `mapstructure:"override_min_confidence" default:"0.8" validate:"gte=0,lte=1"`
	MinSignalConfidence   float64 `mapstructure:"min_signal_confidence" default:"0.4" validate:"gte=0,lte=1"`

	PollInterval    time.Duration `mapstructure:"poll_interval" default:"5s" validate:"gt=0"`
	LookbackSeconds int           `mapstructure:"lookback_seconds" default:"60" validate:"gt=0"`
	LookbackBars    int           `mapstructure:"lookback_bars" default:"100" validate:"gt=0"`
	MinWindow       int           `mapstructure:"min_window" default:"10" validate:"gte=1"`

	MaxOrdersPerMinute int           `mapstructure:"max_orders_per_minute" default:"10" validate:"gte=0"`
	Cooldown           time.Duration `mapstructure:"cooldown" default:"2s" validate:"gte=0"`

	SpreadFilterEnabled bool           `mapstructure:"spread_filter_enabled"`
	SpreadLimits        map[string]int `mapstructure:"spread_limits"`

	LedgerRefresh time.Duration `mapstructure:"ledger_refresh" default:"5s" validate:"gt=0"`
	CallTimeout   time.Duration `mapstructure:"call_timeout" default:"10s" validate:"gt=0"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout" default:"5s" validate:"gt=0"`
	ErrorBackoff  time.Duration `mapstructure:"error_backoff" default:"1s" validate:"gt=0"`
}

// DefaultConfig returns a config with every default applied
func DefaultConfig() BotConfig {
	var cfg BotConfig
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("engine: invalid config defaults: %v", err))
	}
	cfg.Options = map[string]any{}
	cfg.SpreadLimits = maps.Clone(DefaultSpreadLimits)
	return cfg
}

// Clone returns a copy that shares no maps with c
func (c BotConfig) Clone() BotConfig {
	clone := c
	clone.Options = maps.Clone(c.Options)
	if clone.Options == nil {
		clone.Options = map[string]any{}
	}
	clone.SpreadLimits = maps.Clone(c.SpreadLimits)
	return clone
}

// SpreadLimit returns the configured spread limit for the symbol, in points
func (c BotConfig) SpreadLimit(symbol string) (int, bool) {
	limit, ok := c.SpreadLimits[strings.ToUpper(symbol)]
	return limit, ok && limit > 0
}

// CommentPrefix is the order comment identifying this bot
func (c BotConfig) CommentPrefix() string {
	return "TradePulse_" + c.BotID
}

// FieldError is one failed config constraint
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigError lists every failed constraint of a config
type ConfigError struct {
	Fields []FieldError
}

func (e *ConfigError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Message)
	}
	return "invalid config: " + strings.Join(messages, "; ")
}

// Validate checks the config constraints
func (c BotConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ConfigError{Fields: []FieldError{{Code: "ERR_UNKNOWN", Message: err.Error()}}}
	}

	fields := make([]FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fields = append(fields, FieldError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return &ConfigError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
