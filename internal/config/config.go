// Package config provides configuration management for the dutching bot.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Exchange  ExchangeConfig  `mapstructure:"exchange" validate:"required"`
	Strategy  StrategyConfig  `mapstructure:"strategy" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics" validate:"required"`
	Health    HealthConfig    `mapstructure:"health" validate:"required"`
	Features  FeaturesConfig  `mapstructure:"features"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// ExchangeConfig represents the betting exchange API configuration.
// Mode selects the client implementation: "dummy" serves canned fixtures,
// "live" talks to the real exchange.
type ExchangeConfig struct {
	Mode              string  `mapstructure:"mode" validate:"required,oneof=dummy live"`
	APIURL            string  `mapstructure:"api_url" validate:"required,url"`
	StreamURL         string  `mapstructure:"stream_url"`
	AppKey            string  `mapstructure:"app_key"`
	Username          string  `mapstructure:"username"`
	Password          string  `mapstructure:"password"`
	CertFile          string  `mapstructure:"cert_file"`
	KeyFile           string  `mapstructure:"key_file"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=0"`
	RateLimit         float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
	PriceCacheSeconds int     `mapstructure:"price_cache_seconds" validate:"gte=0"`
}

// StrategyConfig represents the dutching strategy parameters
type StrategyConfig struct {
	MinFavouriteOdds float64 `mapstructure:"min_favourite_odds" validate:"required,gt=1"`
	MaxFavouriteOdds float64 `mapstructure:"max_favourite_odds" validate:"required,gt=1"`
	TargetProfit     float64 `mapstructure:"target_profit" validate:"required,gt=0"`
	MaxDailyLoss     float64 `mapstructure:"max_daily_loss" validate:"required,gt=0"`
	StakePercent     float64 `mapstructure:"stake_percent" validate:"gte=0,lte=100"`
	StartingBank     float64 `mapstructure:"starting_bank" validate:"required,gt=0"`
}

// SchedulerConfig represents race timing configuration
type SchedulerConfig struct {
	SecondsBeforeOff         int    `mapstructure:"seconds_before_off" validate:"required,gt=0"`
	TickIntervalSeconds      int    `mapstructure:"tick_interval_seconds" validate:"required,gt=0"`
	SettlementTimeoutMinutes int    `mapstructure:"settlement_timeout_minutes" validate:"required,gt=0"`
	DailyCron                string `mapstructure:"daily_cron" validate:"required"`
}

// DatabaseConfig represents optional history persistence. When disabled the
// session history lives in memory only.
type DatabaseConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"omitempty,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the health endpoint configuration
type HealthConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// FeaturesConfig represents feature flags
type FeaturesConfig struct {
	LiveBettingEnabled  bool `mapstructure:"live_betting_enabled"`
	StreamPricesEnabled bool `mapstructure:"stream_prices_enabled"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsLive checks if the exchange client should talk to the real exchange
func (c *Config) IsLive() bool {
	return c.Exchange.Mode == "live"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// ExchangeTimeout returns the exchange HTTP timeout as a duration
func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.Exchange.TimeoutSeconds) * time.Second
}

// TickInterval returns the settlement polling interval as a duration
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalSeconds) * time.Second
}

// SettlementTimeout returns the settlement polling budget as a duration
func (c *Config) SettlementTimeout() time.Duration {
	return time.Duration(c.Scheduler.SettlementTimeoutMinutes) * time.Minute
}
