package models

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionMode selects the Coordinator's clock source.
type SessionMode string

const (
	ModeLive     SessionMode = "live"
	ModeBacktest SessionMode = "backtest"
)

// Duration wraps time.Duration so it decodes from a JSON string ("30s",
// "1m0s") rather than the raw nanosecond integer encoding/json would
// otherwise expect.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// SessionConfig is the top-level JSON document loaded at Coordinator.Start.
// Unknown keys are rejected by DecodeSessionConfig via
// json.Decoder.DisallowUnknownFields.
type SessionConfig struct {
	SessionName       string            `json:"session_name"`
	Mode              SessionMode       `json:"mode"`
	ExchangeGroup     string            `json:"exchange_group"`
	AssetClass        string            `json:"asset_class"`
	SessionDataConfig SessionDataConfig `json:"session_data_config"`
	BacktestConfig    *BacktestConfig   `json:"backtest_config,omitempty"`
}

// SessionDataConfig is the session_data_config sub-block.
type SessionDataConfig struct {
	Symbols           []string          `json:"symbols"`
	Streams           []string          `json:"streams"`
	BaseInterval      string            `json:"base_interval"`
	DerivedIntervals  []string          `json:"derived_intervals"`
	Historical        HistoricalConfig  `json:"historical"`
	GapFiller         GapFillerConfig   `json:"gap_filler"`
	Streaming         StreamingConfig   `json:"streaming"`
	Indicators        []IndicatorConfig `json:"indicators"`
	Strategies        []StrategyConfig  `json:"strategies"`
	Scanners          []ScannerConfig   `json:"scanners"`
}

// HistoricalConfig governs the warmup backfill performed at Start and the
// historical/warmup depth the provisioning protocol applies to new symbols
// (spec.md §4.5: full adds use TrailingDays, adhoc adds use WarmupDays).
type HistoricalConfig struct {
	LookbackDays            int  `json:"lookback_days"`
	Enabled                 bool `json:"enabled"`
	TrailingDays            int  `json:"trailing_days"`
	WarmupDays              int  `json:"warmup_days"`
	CatchupThresholdSeconds int  `json:"catchup_threshold_seconds"`
}

// GapFillerConfig governs the DataQualityManager's live gap-repair sweep.
type GapFillerConfig struct {
	Enabled       bool     `json:"enabled"`
	MaxRetries    int      `json:"max_retries"`
	RetryInterval Duration `json:"retry_interval"`
	SweepInterval Duration `json:"sweep_interval"`
}

// StreamingConfig governs StreamSubscription ready-gate behavior.
type StreamingConfig struct {
	ReadyTimeout Duration `json:"ready_timeout"`
	BufferSize   int      `json:"buffer_size"`
}

// IndicatorConfig requests one catalog entry be computed for a symbol.
type IndicatorConfig struct {
	Name     string `json:"name"`
	Period   int    `json:"period"`
	Interval string `json:"interval"`
	Adhoc    bool   `json:"adhoc,omitempty"`
}

// StrategyConfig names a strategy to register with the AnalysisEngine, plus
// an optional raw YAML schedule document (see domain stack note on
// embedded YAML sub-configs). ScheduleYAML reads more naturally as YAML
// than JSON (a list of windows versus deeply nested JSON arrays-of-objects)
// and is decoded a second pass by DecodeSchedule.
type StrategyConfig struct {
	Name         string          `json:"name"`
	Symbols      []string        `json:"symbols,omitempty"`
	RequiresFull bool            `json:"requires_full_session_config"`
	ScheduleYAML string          `json:"schedule_yaml,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
}

// ScheduleWindow is one {start, end, interval} window decoded from a
// StrategyConfig's ScheduleYAML, offsets measured from session open (e.g.
// "0s", "1h30m").
type ScheduleWindow struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Interval string `yaml:"interval"`
}

// DecodeSchedule parses ScheduleYAML into its windows. An empty
// ScheduleYAML decodes to a nil slice and no error — the strategy simply
// has no config-declared schedule DSL and runs on whatever schedule its Go
// implementation supplies.
func (s StrategyConfig) DecodeSchedule() ([]ScheduleWindow, error) {
	if s.ScheduleYAML == "" {
		return nil, nil
	}
	var windows []ScheduleWindow
	if err := yaml.Unmarshal([]byte(s.ScheduleYAML), &windows); err != nil {
		return nil, NewError(KindConfig, "decode_schedule", fmt.Errorf("%s: schedule_yaml: %w", s.Name, err))
	}
	return windows, nil
}

// ScannerConfig names a scanner to register with the AnalysisEngine.
type ScannerConfig struct {
	Name          string          `json:"name"`
	Universe      []string        `json:"universe,omitempty"`
	RequiresFull  bool            `json:"requires_full_session_config"`
	ConditionYAML string          `json:"condition_yaml,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// DecodeCondition parses ConditionYAML into a generic document — the
// scanner match-condition DSL (e.g. nested and/or/threshold clauses) reads
// more naturally as YAML than as an equivalent JSON tree. An empty
// ConditionYAML decodes to a nil map and no error.
func (s ScannerConfig) DecodeCondition() (map[string]any, error) {
	if s.ConditionYAML == "" {
		return nil, nil
	}
	var cond map[string]any
	if err := yaml.Unmarshal([]byte(s.ConditionYAML), &cond); err != nil {
		return nil, NewError(KindConfig, "decode_condition", fmt.Errorf("%s: condition_yaml: %w", s.Name, err))
	}
	return cond, nil
}

// BacktestConfig is required when Mode == ModeBacktest.
type BacktestConfig struct {
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	PrefetchDays    int     `json:"prefetch_days"`
}

// DecodeSessionConfig decodes and validates a SessionConfig from r,
// rejecting unknown keys per the strict-validation rule of §6.
func DecodeSessionConfig(r io.Reader) (*SessionConfig, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var cfg SessionConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, NewError(KindConfig, "decode_session_config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the required-key and consistency rules of §6:
// base must be the smallest interval, derived intervals must be integer
// multiples of base, dates must parse, streams must include "1m".
func (c *SessionConfig) Validate() error {
	if c.SessionName == "" {
		return NewError(KindConfig, "validate", fmt.Errorf("session_name is required"))
	}
	if c.Mode != ModeLive && c.Mode != ModeBacktest {
		return NewError(KindConfig, "validate", fmt.Errorf("mode must be \"live\" or \"backtest\", got %q", c.Mode))
	}
	if c.ExchangeGroup == "" || c.AssetClass == "" {
		return NewError(KindConfig, "validate", fmt.Errorf("exchange_group and asset_class are required"))
	}

	sdc := c.SessionDataConfig
	if len(sdc.Symbols) == 0 {
		return NewError(KindConfig, "validate", fmt.Errorf("session_data_config.symbols must be non-empty"))
	}
	hasOneMinute := false
	for _, s := range sdc.Streams {
		if s == "1m" {
			hasOneMinute = true
		}
	}
	if !hasOneMinute {
		return NewError(KindConfig, "validate", fmt.Errorf("session_data_config.streams must include \"1m\""))
	}

	base, err := ParseInterval(sdc.BaseInterval)
	if err != nil {
		return NewError(KindConfig, "validate", fmt.Errorf("base_interval: %w", err))
	}
	for _, d := range sdc.DerivedIntervals {
		di, err := ParseInterval(d)
		if err != nil {
			return NewError(KindConfig, "validate", fmt.Errorf("derived_intervals: %w", err))
		}
		if di.Seconds <= base.Seconds {
			return NewError(KindConfig, "validate", fmt.Errorf("derived interval %q must be larger than base_interval %q", d, sdc.BaseInterval))
		}
		if di.Seconds%base.Seconds != 0 {
			return NewError(KindConfig, "validate", fmt.Errorf("derived interval %q is not an integer multiple of base_interval %q", d, sdc.BaseInterval))
		}
	}

	for _, sc := range sdc.Strategies {
		if _, err := sc.DecodeSchedule(); err != nil {
			return err
		}
	}
	for _, sc := range sdc.Scanners {
		if _, err := sc.DecodeCondition(); err != nil {
			return err
		}
	}

	if c.Mode == ModeBacktest {
		if c.BacktestConfig == nil {
			return NewError(KindConfig, "validate", fmt.Errorf("backtest_config is required when mode is \"backtest\""))
		}
		bc := c.BacktestConfig
		start, err := time.Parse("2006-01-02", bc.StartDate)
		if err != nil {
			return NewError(KindConfig, "validate", fmt.Errorf("backtest_config.start_date: %w", err))
		}
		end, err := time.Parse("2006-01-02", bc.EndDate)
		if err != nil {
			return NewError(KindConfig, "validate", fmt.Errorf("backtest_config.end_date: %w", err))
		}
		if !end.After(start) && !end.Equal(start) {
			return NewError(KindConfig, "validate", fmt.Errorf("backtest_config.end_date must not precede start_date"))
		}
		if bc.SpeedMultiplier < 0 {
			return NewError(KindConfig, "validate", fmt.Errorf("backtest_config.speed_multiplier must be >= 0 (0 selects data-driven pacing)"))
		}
	}

	return nil
}
