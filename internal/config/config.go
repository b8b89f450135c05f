// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Pools     []PoolConfig    `mapstructure:"pools"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	HTTPURL        string        `mapstructure:"http_url"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	RequestsPerMin int           `mapstructure:"requests_per_min"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// PoolConfig describes one on-chain constant-product pool to watch.
type PoolConfig struct {
	Name          string  `mapstructure:"name"`
	Address       string  `mapstructure:"address"`
	QuoteToken    string  `mapstructure:"quote_token"`
	BaseSymbol    string  `mapstructure:"base_symbol"`
	QuoteSymbol   string  `mapstructure:"quote_symbol"`
	BaseDecimals  int32   `mapstructure:"base_decimals"`
	QuoteDecimals int32   `mapstructure:"quote_decimals"`
	FeeRate       float64 `mapstructure:"fee_rate"`
}

// AddressHex returns the pool address as common.Address.
func (p *PoolConfig) AddressHex() common.Address {
	return common.HexToAddress(p.Address)
}

// QuoteTokenHex returns the quote token contract address as common.Address.
func (p *PoolConfig) QuoteTokenHex() common.Address {
	return common.HexToAddress(p.QuoteToken)
}

// FeeRateDecimal returns the pool swap fee as decimal.Decimal.
func (p *PoolConfig) FeeRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.FeeRate)
}

// ExchangesConfig holds off-chain exchange API configuration.
type ExchangesConfig struct {
	Enabled        []string      `mapstructure:"enabled"`
	Pair           string        `mapstructure:"pair"`
	RequestsPerMin int           `mapstructure:"requests_per_min"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BinanceURL     string        `mapstructure:"binance_url"`
	KrakenURL      string        `mapstructure:"kraken_url"`
	CoingeckoURL   string        `mapstructure:"coingecko_url"`
	StreamURL      string        `mapstructure:"stream_url"`
	StreamEnabled  bool          `mapstructure:"stream_enabled"`
	StaleTimeout   time.Duration `mapstructure:"stale_timeout"`
}

// RetryConfig controls per-source fetch retries.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// ScannerConfig holds spread detection and scheduling configuration.
type ScannerConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	BlockDriven    bool          `mapstructure:"block_driven"`
	SpreadBps      float64       `mapstructure:"spread_bps"`
	TradeSizeMin   float64       `mapstructure:"trade_size_min"`
	TradeSizeMax   float64       `mapstructure:"trade_size_max"`
	TradeSizeSteps int           `mapstructure:"trade_size_steps"`
	GasUnits       int64         `mapstructure:"gas_units"`
	GasPriceGwei   float64       `mapstructure:"gas_price_gwei"`
	FlashFeeRate   float64       `mapstructure:"flash_fee_rate"`
	Sink           string        `mapstructure:"sink"`
	CSVPath        string        `mapstructure:"csv_path"`
	PostgresDSN    string        `mapstructure:"postgres_dsn"`
}

// SpreadThreshold returns the minimum spread as a percentage decimal.
func (c *ScannerConfig) SpreadThreshold() decimal.Decimal {
	return decimal.NewFromFloat(c.SpreadBps).Div(decimal.NewFromInt(100))
}

// TradeSizeRange returns the trade size search bounds as decimals.
func (c *ScannerConfig) TradeSizeRange() (min, max decimal.Decimal) {
	return decimal.NewFromFloat(c.TradeSizeMin), decimal.NewFromFloat(c.TradeSizeMax)
}

// FlashFeeRateDecimal returns the flash loan fee rate as decimal.Decimal.
func (c *ScannerConfig) FlashFeeRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.FlashFeeRate)
}

// GasPriceGweiDecimal returns the fallback gas price as decimal.Decimal.
func (c *ScannerConfig) GasPriceGweiDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.GasPriceGwei)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceExporter  string `mapstructure:"trace_exporter"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("SCAN")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "SCAN_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "SCAN_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "SCAN_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.http_url", "SCAN_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.websocket_url", "SCAN_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.chain_id", "SCAN_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Exchanges
	v.BindEnv("exchanges.pair", "SCAN_PAIR")
	v.BindEnv("exchanges.stream_enabled", "SCAN_STREAM_ENABLED")

	// Scanner
	v.BindEnv("scanner.interval", "SCAN_INTERVAL")
	v.BindEnv("scanner.block_driven", "SCAN_BLOCK_DRIVEN")
	v.BindEnv("scanner.spread_bps", "SCAN_SPREAD_BPS")
	v.BindEnv("scanner.sink", "SCAN_SINK")
	v.BindEnv("scanner.csv_path", "SCAN_CSV_PATH")
	v.BindEnv("scanner.postgres_dsn", "SCAN_POSTGRES_DSN", "DATABASE_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "SCAN_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "SCAN_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "SCAN_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "spread-scanner")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")
	v.SetDefault("ethereum.requests_per_min", 120)

	// Exchange defaults
	v.SetDefault("exchanges.enabled", []string{"binance", "kraken"})
	v.SetDefault("exchanges.pair", "ETH-USDC")
	v.SetDefault("exchanges.requests_per_min", 60)
	v.SetDefault("exchanges.request_timeout", "10s")
	v.SetDefault("exchanges.binance_url", "https://api.binance.com")
	v.SetDefault("exchanges.kraken_url", "https://api.kraken.com")
	v.SetDefault("exchanges.coingecko_url", "https://api.coingecko.com")
	v.SetDefault("exchanges.stream_url", "wss://stream.binance.com:9443")
	v.SetDefault("exchanges.stream_enabled", false)
	v.SetDefault("exchanges.stale_timeout", "5s")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.attempt_timeout", "5s")

	// Scanner defaults
	v.SetDefault("scanner.interval", "30s")
	v.SetDefault("scanner.block_driven", false)
	v.SetDefault("scanner.spread_bps", 50) // 0.5%
	v.SetDefault("scanner.trade_size_min", 0.1)
	v.SetDefault("scanner.trade_size_max", 10.0)
	v.SetDefault("scanner.trade_size_steps", 20)
	v.SetDefault("scanner.gas_units", 250000)
	v.SetDefault("scanner.gas_price_gwei", 30)
	v.SetDefault("scanner.flash_fee_rate", 0.0009) // Aave flash loan premium
	v.SetDefault("scanner.sink", "console")
	v.SetDefault("scanner.csv_path", "opportunities.csv")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "spread-scanner")
	v.SetDefault("telemetry.trace_exporter", "otlp-grpc")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" && len(c.Pools) > 0 {
		return fmt.Errorf("ethereum.http_url is required when pools are configured")
	}
	for i, p := range c.Pools {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("invalid pools[%d].address: %s", i, p.Address)
		}
		if !common.IsHexAddress(p.QuoteToken) {
			return fmt.Errorf("invalid pools[%d].quote_token: %s", i, p.QuoteToken)
		}
		if p.BaseSymbol == "" || p.QuoteSymbol == "" {
			return fmt.Errorf("pools[%d] must set base_symbol and quote_symbol", i)
		}
		if p.FeeRate < 0 || p.FeeRate >= 1 {
			return fmt.Errorf("pools[%d].fee_rate must be in [0, 1): %f", i, p.FeeRate)
		}
	}
	if len(c.Exchanges.Enabled) == 0 && len(c.Pools) == 0 {
		return fmt.Errorf("at least one price source (pool or exchange) is required")
	}
	if c.Exchanges.Pair == "" {
		return fmt.Errorf("exchanges.pair is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Scanner.SpreadBps < 0 {
		return fmt.Errorf("scanner.spread_bps cannot be negative")
	}
	if c.Scanner.TradeSizeMin <= 0 || c.Scanner.TradeSizeMax < c.Scanner.TradeSizeMin {
		return fmt.Errorf("scanner trade size range is invalid: [%f, %f]",
			c.Scanner.TradeSizeMin, c.Scanner.TradeSizeMax)
	}
	switch c.Scanner.Sink {
	case "console", "csv", "postgres", "multi":
	default:
		return fmt.Errorf("unknown scanner.sink: %s", c.Scanner.Sink)
	}
	if c.Scanner.Sink == "postgres" && c.Scanner.PostgresDSN == "" {
		return fmt.Errorf("scanner.postgres_dsn is required for the postgres sink")
	}
	return nil
}
