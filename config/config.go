// Package config loads and validates the fund engine configuration.
// The fund list is immutable after load and passed explicitly to every
// engine; nothing reads it as ambient global state.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/basket/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen             = ":8080"
	defaultQuoteCurrency      = "USDT"
	defaultWALDir             = "./wal"
	defaultVIXThreshold       = "25"
	defaultRebalanceThreshold = "0.05"
	defaultFillAttempts       = 10
	defaultFillInterval       = 5 * time.Second
	defaultNAVInterval        = 1 * time.Hour
	defaultRebalanceInterval  = 6 * time.Hour
	defaultSIPInterval        = 1 * time.Minute
	defaultVolatilitySymbol   = "BTC"
	defaultVolatilityWindow   = 14
)

// Config is the full engine configuration.
type Config struct {
	// Platform selects real ("binance") or simulated ("simulate") collaborators.
	Platform      string
	Listen        string
	QuoteCurrency string
	WALDir        string

	// VIXThreshold volatility reading above which the volatile weight
	// table is selected.
	VIXThreshold decimal.Decimal
	// RebalanceThreshold max absolute drift that triggers a rebalance.
	RebalanceThreshold decimal.Decimal

	// FillAttempts and FillInterval bound the wait for exchange fills.
	FillAttempts int
	FillInterval time.Duration

	NAVInterval       time.Duration
	RebalanceInterval time.Duration
	SIPInterval       time.Duration

	Volatility VolatilityConfig
	Redis      RedisConfig
	Funds      []domain.Fund
}

// VolatilityConfig configures the kline-derived volatility index.
type VolatilityConfig struct {
	Symbol string
	Window int
}

// RedisConfig configures the balance/schedule store connection.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type configTmp struct {
	Platform              string        `yaml:"platform"`
	Listen                string        `yaml:"listen,omitempty"`
	QuoteCurrency         string        `yaml:"quote_currency,omitempty"`
	WALDir                string        `yaml:"wal_dir,omitempty"`
	VIXThresholdStr       string        `yaml:"vix_threshold,omitempty"`
	RebalanceThresholdStr string        `yaml:"rebalance_threshold,omitempty"`
	FillAttempts          int           `yaml:"fill_attempts,omitempty"`
	FillInterval          time.Duration `yaml:"fill_interval,omitempty"`
	NAVInterval           time.Duration `yaml:"nav_interval,omitempty"`
	RebalanceInterval     time.Duration `yaml:"rebalance_interval,omitempty"`
	SIPInterval           time.Duration `yaml:"sip_interval,omitempty"`
	Volatility            struct {
		Symbol string `yaml:"symbol,omitempty"`
		Window int    `yaml:"window,omitempty"`
	} `yaml:"volatility,omitempty"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password,omitempty"`
		DB        int    `yaml:"db,omitempty"`
		KeyPrefix string `yaml:"key_prefix,omitempty"`
	} `yaml:"redis"`
	Funds []fundTmp `yaml:"funds"`
}

type fundTmp struct {
	ID              string     `yaml:"id"`
	Name            string     `yaml:"name"`
	Vault           string     `yaml:"vault"`
	RedemptionVault string     `yaml:"redemption_vault"`
	Assets          []assetTmp `yaml:"assets"`
}

type assetTmp struct {
	Symbol            string `yaml:"symbol"`
	NormalWeightStr   string `yaml:"normal_weight"`
	VolatileWeightStr string `yaml:"volatile_weight"`
}

// Get loads the configuration from the path given by the --config flag.
func Get() (*Config, error) {
	path := flag.String("config", "config/config.yaml", "path to yaml config")
	flag.Parse()
	return Load(*path)
}

// Load reads, parses and validates the yaml configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg, err := fromTmp(&tmp)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func fromTmp(tmp *configTmp) (*Config, error) {
	cfg := &Config{
		Platform:          tmp.Platform,
		Listen:            tmp.Listen,
		QuoteCurrency:     tmp.QuoteCurrency,
		WALDir:            tmp.WALDir,
		FillAttempts:      tmp.FillAttempts,
		FillInterval:      tmp.FillInterval,
		NAVInterval:       tmp.NAVInterval,
		RebalanceInterval: tmp.RebalanceInterval,
		SIPInterval:       tmp.SIPInterval,
		Volatility: VolatilityConfig{
			Symbol: tmp.Volatility.Symbol,
			Window: tmp.Volatility.Window,
		},
		Redis: RedisConfig{
			Addr:      tmp.Redis.Addr,
			Password:  tmp.Redis.Password,
			DB:        tmp.Redis.DB,
			KeyPrefix: tmp.Redis.KeyPrefix,
		},
	}

	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = defaultQuoteCurrency
	}
	if cfg.WALDir == "" {
		cfg.WALDir = defaultWALDir
	}
	if cfg.FillAttempts == 0 {
		cfg.FillAttempts = defaultFillAttempts
	}
	if cfg.FillInterval == 0 {
		cfg.FillInterval = defaultFillInterval
	}
	if cfg.NAVInterval == 0 {
		cfg.NAVInterval = defaultNAVInterval
	}
	if cfg.RebalanceInterval == 0 {
		cfg.RebalanceInterval = defaultRebalanceInterval
	}
	if cfg.SIPInterval == 0 {
		cfg.SIPInterval = defaultSIPInterval
	}
	if cfg.Volatility.Symbol == "" {
		cfg.Volatility.Symbol = defaultVolatilitySymbol
	}
	if cfg.Volatility.Window == 0 {
		cfg.Volatility.Window = defaultVolatilityWindow
	}

	vixStr := tmp.VIXThresholdStr
	if vixStr == "" {
		vixStr = defaultVIXThreshold
	}
	vix, err := decimal.NewFromString(vixStr)
	if err != nil {
		return nil, fmt.Errorf("incorrect 'vix_threshold' param in yaml config (must be a decimal): %w", err)
	}
	cfg.VIXThreshold = vix

	rebStr := tmp.RebalanceThresholdStr
	if rebStr == "" {
		rebStr = defaultRebalanceThreshold
	}
	reb, err := decimal.NewFromString(rebStr)
	if err != nil {
		return nil, fmt.Errorf("incorrect 'rebalance_threshold' param in yaml config (must be a decimal): %w", err)
	}
	cfg.RebalanceThreshold = reb

	for _, ft := range tmp.Funds {
		fund := domain.Fund{
			ID:              ft.ID,
			Name:            ft.Name,
			Vault:           ft.Vault,
			RedemptionVault: ft.RedemptionVault,
		}
		for _, at := range ft.Assets {
			normal, err := decimal.NewFromString(at.NormalWeightStr)
			if err != nil {
				return nil, fmt.Errorf("fund %s asset %s: incorrect 'normal_weight' (must be a decimal): %w", ft.ID, at.Symbol, err)
			}
			volatile, err := decimal.NewFromString(at.VolatileWeightStr)
			if err != nil {
				return nil, fmt.Errorf("fund %s asset %s: incorrect 'volatile_weight' (must be a decimal): %w", ft.ID, at.Symbol, err)
			}
			fund.Assets = append(fund.Assets, domain.AssetAllocation{
				Symbol:         at.Symbol,
				NormalWeight:   normal,
				VolatileWeight: volatile,
			})
		}
		cfg.Funds = append(cfg.Funds, fund)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Platform {
	case "binance", "simulate":
	default:
		return fmt.Errorf("unsupported platform %q", c.Platform)
	}

	if !c.RebalanceThreshold.IsPositive() {
		return fmt.Errorf("rebalance_threshold must be positive, got %s", c.RebalanceThreshold.String())
	}
	if !c.VIXThreshold.IsPositive() {
		return fmt.Errorf("vix_threshold must be positive, got %s", c.VIXThreshold.String())
	}
	if c.FillAttempts < 1 {
		return fmt.Errorf("fill_attempts must be at least 1, got %d", c.FillAttempts)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if len(c.Funds) == 0 {
		return fmt.Errorf("at least one fund is required")
	}

	seen := make(map[string]struct{}, len(c.Funds))
	for i := range c.Funds {
		fund := &c.Funds[i]
		if _, ok := seen[fund.ID]; ok {
			return fmt.Errorf("duplicate fund id %s", fund.ID)
		}
		seen[fund.ID] = struct{}{}
		if err := fund.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// FundByID returns the configured fund with the given id.
func (c *Config) FundByID(id string) (*domain.Fund, error) {
	for i := range c.Funds {
		if c.Funds[i].ID == id {
			return &c.Funds[i], nil
		}
	}
	return nil, fmt.Errorf("fund %s: %w", id, domain.ErrUnknownFund)
}
