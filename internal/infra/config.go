package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"crypto_backtest/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// CostConfig is the commission schedule of one asset class.
type CostConfig struct {
	CommissionRate decimal.Decimal `yaml:"commission_rate"`
	MinCommission  decimal.Decimal `yaml:"min_commission"`
}

// StrategyConfig selects and parameterizes the strategy run by cmd/app.
type StrategyConfig struct {
	Name          string          `yaml:"name"`
	ShortPeriod   int             `yaml:"short_period"`
	LongPeriod    int             `yaml:"long_period"`
	TargetPercent decimal.Decimal `yaml:"target_percent"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 경로와 로그 레벨을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Data struct {
		Path        string `yaml:"path"`
		Instruments string `yaml:"instruments"`
	} `yaml:"data"`

	Calendar struct {
		Start domain.Date `yaml:"start"`
		End   domain.Date `yaml:"end"`
	} `yaml:"calendar"`

	Cost struct {
		Spot   CostConfig `yaml:"crypto_spot"`
		Future CostConfig `yaml:"crypto_future"`
	} `yaml:"cost"`

	Accounts struct {
		StartingCash         decimal.Decimal `yaml:"starting_cash"`
		AutoSwitchOrderValue bool            `yaml:"auto_switch_order_value"`
		AllowSentinelPrice   bool            `yaml:"allow_sentinel_price"`
	} `yaml:"accounts"`

	Backtest struct {
		Start     domain.Date    `yaml:"start"`
		End       domain.Date    `yaml:"end"`
		Symbols   []string       `yaml:"symbols"`
		Frequency string         `yaml:"frequency"`
		Strategy  StrategyConfig `yaml:"strategy"`
	} `yaml:"backtest"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration that passes Validate without a file.
func DefaultConfig() *Config {
	var cfg Config
	overrideWithEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// 환경 변수 오버라이드 지원
	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	// 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "crypto_backtest"
	}
	if cfg.Data.Path == "" {
		cfg.Data.Path = "bundle"
	}
	if cfg.Data.Instruments == "" {
		cfg.Data.Instruments = filepath.Join(cfg.Data.Path, "instruments.yaml")
	}
	if cfg.Calendar.Start == 0 {
		cfg.Calendar.Start = domain.NewDate(2017, 1, 1)
	}
	if cfg.Calendar.End == 0 {
		cfg.Calendar.End = domain.NewDate(2030, 12, 31)
	}
	if cfg.Cost.Spot.CommissionRate.IsZero() {
		cfg.Cost.Spot.CommissionRate = decimal.RequireFromString("0.001")
	}
	if cfg.Cost.Future.CommissionRate.IsZero() {
		cfg.Cost.Future.CommissionRate = decimal.RequireFromString("0.0004")
	}
	if cfg.Backtest.Frequency == "" {
		cfg.Backtest.Frequency = "1d"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join("logs", "app.log")
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Data.Path == "" {
		return &domain.ConfigError{Field: "data.path", Err: errors.New("required")}
	}
	if !c.Calendar.Start.Valid() || !c.Calendar.End.Valid() || c.Calendar.End < c.Calendar.Start {
		return &domain.ConfigError{Field: "calendar", Err: fmt.Errorf("invalid range %d..%d", c.Calendar.Start, c.Calendar.End)}
	}

	for name, cc := range map[string]CostConfig{"cost.crypto_spot": c.Cost.Spot, "cost.crypto_future": c.Cost.Future} {
		if cc.CommissionRate.IsNegative() || cc.MinCommission.IsNegative() {
			return &domain.ConfigError{Field: name, Err: errors.New("commission must not be negative")}
		}
	}

	if c.Accounts.StartingCash.IsNegative() {
		return &domain.ConfigError{Field: "accounts.starting_cash", Err: errors.New("must not be negative")}
	}

	if c.Backtest.Start != 0 || c.Backtest.End != 0 {
		if !c.Backtest.Start.Valid() || !c.Backtest.End.Valid() || c.Backtest.End < c.Backtest.Start {
			return &domain.ConfigError{Field: "backtest", Err: fmt.Errorf("invalid range %d..%d", c.Backtest.Start, c.Backtest.End)}
		}
	}
	switch c.Backtest.Frequency {
	case "1d", "1w":
	default:
		return &domain.ConfigError{Field: "backtest.frequency", Err: fmt.Errorf("%w: %q", domain.ErrNotSupported, c.Backtest.Frequency)}
	}
	if s := c.Backtest.Strategy; s.Name != "" && (s.ShortPeriod <= 0 || s.LongPeriod <= s.ShortPeriod) {
		return &domain.ConfigError{Field: "backtest.strategy", Err: fmt.Errorf("periods %d/%d", s.ShortPeriod, s.LongPeriod)}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("CRYPTO_BT_DATA_PATH"); path != "" {
		cfg.Data.Path = path
	}
	if file := os.Getenv("CRYPTO_BT_INSTRUMENTS"); file != "" {
		cfg.Data.Instruments = file
	}
	if level := os.Getenv("CRYPTO_BT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
