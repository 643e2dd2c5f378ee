package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port                   string `mapstructure:"PORT"`
	AllowedOrigin          string `mapstructure:"ALLOWED_ORIGIN"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisAddr              string `mapstructure:"REDIS_ADDR"`
	RedisPassword          string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                int    `mapstructure:"REDIS_DB"`
	AuthSecret             string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes  int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	AccountCacheTTLSeconds int    `mapstructure:"ACCOUNT_CACHE_TTL_SECONDS"`
	NotificationChannel    string `mapstructure:"NOTIFICATION_CHANNEL"`
	LogLevel               string `mapstructure:"LOG_LEVEL"`
	LogEncoding            string `mapstructure:"LOG_ENCODING"`
	DebtCeilingRaw         string `mapstructure:"DEBT_CEILING"`

	DebtCeiling decimal.Decimal `mapstructure:"-"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"ALLOWED_ORIGIN":            "http://127.0.0.1:3000",
	"DATABASE_URL":              "",
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"AUTH_SECRET":               "",
	"ACCESS_TOKEN_TTL_MINUTES":  480,
	"ACCOUNT_CACHE_TTL_SECONDS": 30,
	"NOTIFICATION_CHANNEL":      "cantina:notifications",
	"LOG_LEVEL":                 "info",
	"LOG_ENCODING":              "json",
	"DEBT_CEILING":              "10.00",
}

// Load reads configuration from the environment. Unset or empty variables take
// their defaults; a malformed debt ceiling is an error.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = defaults["ACCESS_TOKEN_TTL_MINUTES"].(int)
	}
	if cfg.AccountCacheTTLSeconds < 0 {
		cfg.AccountCacheTTLSeconds = 0
	}

	ceiling, err := decimal.NewFromString(strings.TrimSpace(cfg.DebtCeilingRaw))
	if err != nil {
		return Config{}, fmt.Errorf("DEBT_CEILING: %w", err)
	}
	if !ceiling.IsPositive() {
		return Config{}, fmt.Errorf("DEBT_CEILING must be positive, got %s", ceiling)
	}
	cfg.DebtCeiling = ceiling

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) AccountCacheTTL() time.Duration {
	return time.Duration(c.AccountCacheTTLSeconds) * time.Second
}
