package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/risk"
	"github.com/spf13/cast"
)

// maxDerivedOrdersPerMinute caps the rate derived from a daily trade count
const maxDerivedOrdersPerMinute = 20

// Rejection is a requested field change that was refused
type Rejection struct {
	Field  string `json:"field"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Update is the outcome of applying a partial config
type Update struct {
	Config          BotConfig   `json:"config"`
	Changed         []string    `json:"changed"`
	Rejected        []Rejection `json:"rejected,omitempty"`
	StrategyChanged bool        `json:"strategy_changed"`
}

// entry is one value of a partial update with where it came from
type entry struct {
	key      string
	value    any
	topLevel bool
}

// field applies one recognized key to a config. It returns the field name
// and whether the value changed.
type field func(cfg *BotConfig, e entry) (string, bool, error)

var fields = map[string]field{
	"symbol": stringField("Symbol", func(c *BotConfig) *string { return &c.Symbol }, strings.ToUpper),

	"strategy":     stringField("Strategy", func(c *BotConfig) *string { return &c.Strategy }, strings.TrimSpace),
	"strategyid":   stringField("Strategy", func(c *BotConfig) *string { return &c.Strategy }, strings.TrimSpace),
	"strategyname": stringField("Strategy", func(c *BotConfig) *string { return &c.Strategy }, strings.TrimSpace),

	"lotsize":        floatField("LotSize", func(c *BotConfig) *float64 { return &c.LotSize }),
	"stoploss":       floatField("StopLoss", func(c *BotConfig) *float64 { return &c.StopLoss }),
	"stoplosspips":   floatField("StopLoss", func(c *BotConfig) *float64 { return &c.StopLoss }),
	"takeprofit":     floatField("TakeProfit", func(c *BotConfig) *float64 { return &c.TakeProfit }),
	"takeprofitpips": floatField("TakeProfit", func(c *BotConfig) *float64 { return &c.TakeProfit }),

	"usestoplosstakeprofit": boolField("UseStopLossTakeProfit", func(c *BotConfig) *bool { return &c.UseStopLossTakeProfit }),
	"usemanualsltp":         boolField("UseStopLossTakeProfit", func(c *BotConfig) *bool { return &c.UseStopLossTakeProfit }),
	"autoadjuststops":       boolField("AutoAdjustStops", func(c *BotConfig) *bool { return &c.AutoAdjustStops }),

	"distancemode": distanceModeField,
	"sltpmode":     distanceModeField,

	"autotradingenabled": autoTradingField(true),
	"autotrading":        autoTradingField(false),

	"pollintervalseconds": secondsField("PollInterval", func(c *BotConfig) *time.Duration { return &c.PollInterval }),
	"analysisinterval":    secondsField("PollInterval", func(c *BotConfig) *time.Duration { return &c.PollInterval }),
	"cooldownseconds":     secondsField("Cooldown", func(c *BotConfig) *time.Duration { return &c.Cooldown }),

	"lookbackseconds":     intField("LookbackSeconds", func(c *BotConfig) *int { return &c.LookbackSeconds }),
	"ticklookbackseconds": intField("LookbackSeconds", func(c *BotConfig) *int { return &c.LookbackSeconds }),
	"lookbackbars":        intField("LookbackBars", func(c *BotConfig) *int { return &c.LookbackBars }),

	"minsignalconfidence": floatField("MinSignalConfidence", func(c *BotConfig) *float64 { return &c.MinSignalConfidence }),
	"minconfidence":       floatField("MinSignalConfidence", func(c *BotConfig) *float64 { return &c.MinSignalConfidence }),

	"maxordersperminute": intField("MaxOrdersPerMinute", func(c *BotConfig) *int { return &c.MaxOrdersPerMinute }),
	"maxdailytrades":     dailyTradesField,

	"spreadfilterenabled": boolField("SpreadFilterEnabled", func(c *BotConfig) *bool { return &c.SpreadFilterEnabled }),
	"spreadlimits":        spreadLimitsField,

	"overrideenabled":       boolField("OverrideEnabled", func(c *BotConfig) *bool { return &c.OverrideEnabled }),
	"overrideminconfidence": floatField("OverrideMinConfidence", func(c *BotConfig) *float64 { return &c.OverrideMinConfidence }),

	"strategyoptions":   optionsField,
	"indicatorsettings": optionsField,
}

// nested maps merged below the top-level keys
var nestedKeys = []string{"config", "settings"}

// ApplyUpdate merges a loosely typed partial update into cfg and returns the
// resulting config. Unrecognized keys become strategy options. A false
// auto trading flag is only honored as an explicit top-level
// autoTradingEnabled key; any other path that would disable auto trading is
// rejected and reported. When the merged config is invalid nothing is
// applied and a *ConfigError is returned.
func ApplyUpdate(cfg BotConfig, partial map[string]any) (Update, error) {
	next := cfg.Clone()
	update := Update{Config: cfg}

	changed := make(map[string]bool)
	for _, e := range flatten(partial) {
		apply, ok := fields[squash(e.key)]
		if !ok {
			if !equal(next.Options[e.key], e.value) {
				next.Options[e.key] = e.value
				changed["Options"] = true
			}
			continue
		}

		name, didChange, err := apply(&next, e)
		if err != nil {
			update.Rejected = append(update.Rejected, rejection(e.key, err))
			continue
		}
		if didChange {
			changed[name] = true
		}
	}

	if err := next.Validate(); err != nil {
		return update, err
	}

	update.Config = next
	update.Changed = slices.Sorted(maps.Keys(changed))
	update.StrategyChanged = changed["Strategy"] || changed["Options"]
	return update, nil
}

// flatten orders entries so that top-level keys are applied after, and so
// win over, keys from nested config maps.
func flatten(partial map[string]any) []entry {
	var entries []entry
	for _, nested := range nestedKeys {
		for key, value := range partial {
			if squash(key) != nested {
				continue
			}
			if m, err := cast.ToStringMapE(value); err == nil {
				for _, k := range slices.Sorted(maps.Keys(m)) {
					entries = append(entries, entry{key: k, value: m[k]})
				}
			}
		}
	}

	for _, key := range slices.Sorted(maps.Keys(partial)) {
		if slices.Contains(nestedKeys, squash(key)) {
			continue
		}
		entries = append(entries, entry{key: key, value: partial[key], topLevel: true})
	}
	return entries
}

func squash(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(key)))
}

// rejectionError carries a machine-readable code
type rejectionError struct {
	code string
	msg  string
}

func (e *rejectionError) Error() string { return e.msg }

func rejection(key string, err error) Rejection {
	code := CodeConfigInvalidValue
	if re, ok := err.(*rejectionError); ok {
		code = re.code
	}
	return Rejection{Field: key, Code: code, Reason: err.Error()}
}

func invalid(e entry, err error) error {
	return fmt.Errorf("invalid value %v for %s: %w", e.value, e.key, err)
}

func stringField(name string, target func(*BotConfig) *string, normalize func(string) string) field {
	return func(cfg *BotConfig, e entry) (string, bool, error) {
		s, err := cast.ToStringE(e.value)
		if err != nil {
			return name, false, invalid(e, err)
		}
		s = normalize(s)
		ptr := target(cfg)
		if *ptr == s {
			return name, false, nil
		}
		*ptr = s
		return name, true, nil
	}
}

func floatField(name string, target func(*BotConfig) *float64) field {
	return func(cfg *BotConfig, e entry) (string, bool, error) {
		f, err := cast.ToFloat64E(e.value)
		if err != nil {
			return name, false, invalid(e, err)
		}
		ptr := target(cfg)
		if *ptr == f {
			return name, false, nil
		}
		*ptr = f
		return name, true, nil
	}
}

func intField(name string, target func(*BotConfig) *int) field {
	return func(cfg *BotConfig, e entry) (string, bool, error) {
		i, err := cast.ToIntE(e.value)
		if err != nil {
			return name, false, invalid(e, err)
		}
		ptr := target(cfg)
		if *ptr == i {
			return name, false, nil
		}
		*ptr = i
		return name, true, nil
	}
}

func boolField(name string, target func(*BotConfig) *bool) field {
	return func(cfg *BotConfig, e entry) (string, bool, error) {
		b, err := cast.ToBoolE(e.value)
		if err != nil {
			return name, false, invalid(e, err)
		}
		ptr := target(cfg)
		if *ptr == b {
			return name, false, nil
		}
		*ptr = b
		return name, true, nil
	}
}

// secondsField accepts a number of seconds or a duration string
func secondsField(name string, target func(*BotConfig) *time.Duration) field {
	return func(cfg *BotConfig, e entry) (string, bool, error) {
		var d time.Duration
		if s, ok := e.value.(string); ok {
			if parsed, err := time.ParseDuration(s); err == nil {
				d = parsed
			}
		}
		if d == 0 {
			seconds, err := cast.ToFloat64E(e.value)
			if err != nil {
				return name, false, invalid(e, err)
			}
			d = time.Duration(seconds * float64(time.Second))
		}

		ptr := target(cfg)
		if *ptr == d {
			return name, false, nil
		}
		*ptr = d
		return name, true, nil
	}
}

func distanceModeField(cfg *BotConfig, e entry) (string, bool, error) {
	s, err := cast.ToStringE(e.value)
	if err != nil {
		return "DistanceMode", false, invalid(e, err)
	}
	mode, err := risk.ParseDistanceMode(s)
	if err != nil {
		return "DistanceMode", false, invalid(e, err)
	}
	if cfg.DistanceMode == mode {
		return "DistanceMode", false, nil
	}
	cfg.DistanceMode = mode
	return "DistanceMode", true, nil
}

// autoTradingField enables auto trading from any key, but disables it only
// from an explicit top-level request on the canonical key.
func autoTradingField(canonical bool) field {
	return func(cfg *BotConfig, e entry) (string, bool, error) {
		enabled, err := cast.ToBoolE(e.value)
		if err != nil {
			return "AutoTradingEnabled", false, invalid(e, err)
		}
		if cfg.AutoTradingEnabled == enabled {
			return "AutoTradingEnabled", false, nil
		}
		if !enabled && !(canonical && e.topLevel) {
			return "AutoTradingEnabled", false, &rejectionError{
				code: CodeConfigRejectedField,
				msg:  fmt.Sprintf("%s=false would disable auto trading implicitly; send a top-level autoTradingEnabled=false to disable it", e.key),
			}
		}
		cfg.AutoTradingEnabled = enabled
		return "AutoTradingEnabled", true, nil
	}
}

// dailyTradesField converts a daily trade count into a per-minute rate
func dailyTradesField(cfg *BotConfig, e entry) (string, bool, error) {
	daily, err := cast.ToIntE(e.value)
	if err != nil {
		return "MaxOrdersPerMinute", false, invalid(e, err)
	}

	perMinute := 0
	if daily > 0 {
		perMinute = min(int(math.Ceil(float64(daily)/60)), maxDerivedOrdersPerMinute)
	}
	if cfg.MaxOrdersPerMinute == perMinute {
		return "MaxOrdersPerMinute", false, nil
	}
	cfg.MaxOrdersPerMinute = perMinute
	return "MaxOrdersPerMinute", true, nil
}

func spreadLimitsField(cfg *BotConfig, e entry) (string, bool, error) {
	m, err := cast.ToStringMapE(e.value)
	if err != nil {
		return "SpreadLimits", false, invalid(e, err)
	}

	limits := maps.Clone(cfg.SpreadLimits)
	if limits == nil {
		limits = make(map[string]int)
	}
	for symbol, value := range m {
		limit, err := cast.ToIntE(value)
		if err != nil {
			return "SpreadLimits", false, invalid(e, err)
		}
		limits[strings.ToUpper(symbol)] = limit
	}

	if maps.Equal(limits, cfg.SpreadLimits) {
		return "SpreadLimits", false, nil
	}
	cfg.SpreadLimits = limits
	return "SpreadLimits", true, nil
}

func optionsField(cfg *BotConfig, e entry) (string, bool, error) {
	m, err := cast.ToStringMapE(e.value)
	if err != nil {
		return "Options", false, invalid(e, err)
	}

	var changed bool
	for key, value := range m {
		if !equal(cfg.Options[key], value) {
			cfg.Options[key] = value
			changed = true
		}
	}
	return "Options", changed, nil
}

// equal compares loosely typed option values by their printed form
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
