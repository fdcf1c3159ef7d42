// Package config loads the service settings from YAML with environment
// overrides for anything deploy-specific: credentials, the Redis address,
// and the screening knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full service configuration.
type Settings struct {
	Redis     RedisConfig     `yaml:"redis"`
	KIS       KISConfig       `yaml:"kis"`
	Providers ProvidersConfig `yaml:"providers"`
	Screening ScreeningConfig `yaml:"screening"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RedisConfig locates the shared remote tier. An empty Addr runs the
// process on the local tier alone.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
	TLS  bool   `yaml:"tls"`
}

// KISConfig carries the broker credentials and endpoint.
type KISConfig struct {
	BaseURL   string `yaml:"base_url"`
	AppKey    string `yaml:"app_key"`
	AppSecret string `yaml:"app_secret"`
}

// ProvidersConfig holds the unauthenticated upstream endpoints.
type ProvidersConfig struct {
	KRXBaseURL       string `yaml:"krx_base_url"`
	UpbitBaseURL     string `yaml:"upbit_base_url"`
	YahooBaseURL     string `yaml:"yahoo_base_url"`
	CoingeckoBaseURL string `yaml:"coingecko_base_url"`
	NaverBaseURL     string `yaml:"naver_base_url"`
}

// ScreeningConfig tunes the pipeline.
type ScreeningConfig struct {
	EnrichConcurrency    int     `yaml:"enrich_concurrency"`
	EnrichTimeoutSeconds int     `yaml:"enrich_timeout_seconds"`
	CryptoTopByVolume    int     `yaml:"crypto_top_by_volume"`
	DropThreshold        float64 `yaml:"drop_threshold"`
	MarketPanic          float64 `yaml:"market_panic"`
}

func (s ScreeningConfig) EnrichTimeout() time.Duration {
	return time.Duration(s.EnrichTimeoutSeconds) * time.Second
}

// CacheConfig sets the bulk-data TTLs.
type CacheConfig struct {
	BulkTTLSeconds  int `yaml:"bulk_ttl_seconds"`
	LocalTTLSeconds int `yaml:"local_ttl_seconds"`
}

func (c CacheConfig) BulkTTL() time.Duration {
	return time.Duration(c.BulkTTLSeconds) * time.Second
}

func (c CacheConfig) LocalTTL() time.Duration {
	return time.Duration(c.LocalTTLSeconds) * time.Second
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML settings file and applies environment overrides.
// A missing file yields defaults plus environment, so a bare process
// still starts.
func Load(path string) (*Settings, error) {
	s := defaults()
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	s.applyEnv()
	return s, nil
}

func defaults() *Settings {
	return &Settings{
		Providers: ProvidersConfig{
			KRXBaseURL:       "http://data.krx.co.kr",
			UpbitBaseURL:     "https://api.upbit.com",
			YahooBaseURL:     "https://query1.finance.yahoo.com",
			CoingeckoBaseURL: "https://api.coingecko.com",
			NaverBaseURL:     "https://finance.naver.com",
		},
		KIS: KISConfig{BaseURL: "https://openapi.koreainvestment.com:9443"},
		Screening: ScreeningConfig{
			EnrichConcurrency:    10,
			EnrichTimeoutSeconds: 30,
			CryptoTopByVolume:    100,
			DropThreshold:        -0.30,
			MarketPanic:          -0.10,
		},
		Cache:   CacheConfig{BulkTTLSeconds: 300, LocalTTLSeconds: 300},
		Logging: LoggingConfig{Level: "info"},
	}
}

func (s *Settings) applyEnv() {
	envStr("REDIS_ADDR", &s.Redis.Addr)
	envInt("REDIS_DB", &s.Redis.DB)
	envStr("KIS_APP_KEY", &s.KIS.AppKey)
	envStr("KIS_APP_SECRET", &s.KIS.AppSecret)
	envStr("KIS_BASE_URL", &s.KIS.BaseURL)
	envInt("ENRICH_CONCURRENCY", &s.Screening.EnrichConcurrency)
	envInt("ENRICH_TIMEOUT", &s.Screening.EnrichTimeoutSeconds)
	envInt("CRYPTO_TOP_BY_VOLUME", &s.Screening.CryptoTopByVolume)
	envFloat("DROP_THRESHOLD", &s.Screening.DropThreshold)
	envFloat("MARKET_PANIC", &s.Screening.MarketPanic)
	envStr("LOG_LEVEL", &s.Logging.Level)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
