package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Log       LogConfig
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Exchange  ExchangeConfig  `envPrefix:"EXCHANGE_"`
	Postgres  PostgresConfig  `envPrefix:"POSTGRES_"`
	Report    ReportConfig    `envPrefix:"REPORT_"`
}

type AppConfig struct {
	Port                   string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaintenanceMode        bool          `env:"MAINTENANCE_MODE" envDefault:"false"`
	MaxConcurrentRequests  int64         `env:"MAX_CONCURRENT_REQUESTS" envDefault:"0"`
	RequestLoggingDisabled bool          `env:"REQUEST_LOGGING_DISABLED" envDefault:"false"`
	MetricsMaxLatencies    int           `env:"METRICS_MAX_LATENCIES" envDefault:"10000"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	File   string `env:"LOG_FILE"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type RateLimitConfig struct {
	Disabled    bool          `env:"DISABLED" envDefault:"false"`
	MaxRequests int           `env:"MAX" envDefault:"100"`
	Window      time.Duration `env:"WINDOW" envDefault:"1s"`
}

type ExchangeConfig struct {
	BaseURL           string        `env:"BASE_URL" envDefault:"https://api.binance.com"`
	APIKey            string        `env:"API_KEY"`
	APISecret         string        `env:"API_SECRET"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
	Burst             int           `env:"BURST" envDefault:"5"`
	PageLimit         int           `env:"PAGE_LIMIT" envDefault:"1000"`
	RecvWindow        time.Duration `env:"RECV_WINDOW" envDefault:"5s"`
}

type PostgresConfig struct {
	// DSN empty means trades are read straight from the exchange.
	DSN      string `env:"DSN"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

type ReportConfig struct {
	Instruments     []string      `env:"INSTRUMENTS" envSeparator:"," envDefault:"BTC/EUR"`
	FeeAsset        string        `env:"FEE_ASSET" envDefault:"BNB"`
	CrossAsset      string        `env:"CROSS_ASSET" envDefault:"USDT"`
	LookbackDays    int           `env:"LOOKBACK_DAYS" envDefault:"90"`
	MaxLookbackDays int           `env:"MAX_LOOKBACK_DAYS" envDefault:"365"`
	Timezone        string        `env:"TIMEZONE" envDefault:"UTC"`
	RateTimeout     time.Duration `env:"RATE_TIMEOUT" envDefault:"5s"`
	// FixedFeeRate pins the fee asset rate instead of asking the exchange.
	FixedFeeRate string `env:"FIXED_FEE_RATE"`
}

func (c Config) HasExchangeCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Report.Instruments) == 0 {
		return fmt.Errorf("REPORT_INSTRUMENTS must list at least one BASE/QUOTE pair")
	}
	for _, inst := range c.Report.Instruments {
		if parts := strings.Split(inst, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("REPORT_INSTRUMENTS entry %q is not BASE/QUOTE", inst)
		}
	}
	if c.Report.LookbackDays <= 0 {
		return fmt.Errorf("REPORT_LOOKBACK_DAYS must be positive")
	}
	if c.Report.MaxLookbackDays < c.Report.LookbackDays {
		return fmt.Errorf("REPORT_MAX_LOOKBACK_DAYS must be >= REPORT_LOOKBACK_DAYS")
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}
	if c.Exchange.PageLimit <= 0 || c.Exchange.PageLimit > 1000 {
		return fmt.Errorf("EXCHANGE_PAGE_LIMIT must be within 1..1000")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}
