// Package config internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the parser service.
type Config struct {
	HTTPPort string

	RatesFile  string
	HistoryDir string

	BaseCurrency     string
	FiatCurrencies   []string
	CryptoCurrencies []string
	// CryptoIDMap maps crypto codes to CoinGecko asset ids.
	CryptoIDMap map[string]string

	CoinGeckoURL       string
	ExchangeRateAPIURL string
	ExchangeRateAPIKey string

	FetchTimeout       time.Duration
	RatesTTL           time.Duration
	StalenessThreshold time.Duration
	QuoteCacheTTL      time.Duration

	SchedulerEnabled bool
	UpdateInterval   time.Duration

	HistoryRetention time.Duration
	HistoryLimit     int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")

	v.SetDefault("data.rates_file", "data/rates.json")
	v.SetDefault("data.history_dir", "data/history")

	v.SetDefault("parser.base_currency", "USD")
	v.SetDefault("parser.fiat_currencies", []string{"EUR", "GBP", "RUB", "JPY", "CNY"})
	v.SetDefault("parser.crypto_currencies", []string{"BTC", "ETH", "SOL", "BNB", "ADA"})
	v.SetDefault("parser.crypto_id_map", map[string]string{
		"BTC": "bitcoin",
		"ETH": "ethereum",
		"SOL": "solana",
		"BNB": "binancecoin",
		"ADA": "cardano",
	})

	v.SetDefault("fetchers.coingecko_url", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("fetchers.exchangerate_url", "https://v6.exchangerate-api.com/v6")
	v.SetDefault("fetchers.exchangerate_api_key", "")

	v.SetDefault("parser.fetch_timeout", "10s")
	v.SetDefault("parser.rates_ttl", "5m")
	v.SetDefault("parser.staleness_threshold", "24h")
	v.SetDefault("parser.quote_cache_ttl", "1m")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "5m")

	v.SetDefault("history.retention", "168h")
	v.SetDefault("history.limit", 50)
}

// Load reads configuration from an optional config file, with
// RATEPARSER_* environment variables overriding file values and
// defaults filling the rest.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RATEPARSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTPPort: v.GetString("http.port"),

		RatesFile:  v.GetString("data.rates_file"),
		HistoryDir: v.GetString("data.history_dir"),

		BaseCurrency:     v.GetString("parser.base_currency"),
		FiatCurrencies:   v.GetStringSlice("parser.fiat_currencies"),
		CryptoCurrencies: v.GetStringSlice("parser.crypto_currencies"),
		CryptoIDMap:      v.GetStringMapString("parser.crypto_id_map"),

		CoinGeckoURL:       v.GetString("fetchers.coingecko_url"),
		ExchangeRateAPIURL: v.GetString("fetchers.exchangerate_url"),
		ExchangeRateAPIKey: v.GetString("fetchers.exchangerate_api_key"),

		FetchTimeout:       v.GetDuration("parser.fetch_timeout"),
		RatesTTL:           v.GetDuration("parser.rates_ttl"),
		StalenessThreshold: v.GetDuration("parser.staleness_threshold"),
		QuoteCacheTTL:      v.GetDuration("parser.quote_cache_ttl"),

		SchedulerEnabled: v.GetBool("scheduler.enabled"),
		UpdateInterval:   v.GetDuration("scheduler.interval"),

		HistoryRetention: v.GetDuration("history.retention"),
		HistoryLimit:     v.GetInt("history.limit"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.RatesFile == "" {
		return fmt.Errorf("data.rates_file must not be empty")
	}
	if c.BaseCurrency == "" {
		return fmt.Errorf("parser.base_currency must not be empty")
	}
	for _, code := range c.CryptoCurrencies {
		if _, ok := c.CryptoIDMap[code]; !ok {
			if _, ok := c.CryptoIDMap[strings.ToLower(code)]; !ok {
				return fmt.Errorf("crypto currency %s has no entry in parser.crypto_id_map", code)
			}
		}
	}
	if c.SchedulerEnabled && c.UpdateInterval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive when the scheduler is enabled")
	}
	return nil
}
