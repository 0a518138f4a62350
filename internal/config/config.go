/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	AccountEventQueue          string `mapstructure:"ACCOUNT_EVENT_QUEUE"`
	JWKSURL                    string `mapstructure:"JWKS_URL"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	ReconcileSchedule          string `mapstructure:"RECONCILE_SCHEDULE"`
	FlexQueryPageSize          int    `mapstructure:"FLEX_QUERY_PAGE_SIZE"`
	FlexQueryPageDelayMillis   int    `mapstructure:"FLEX_QUERY_PAGE_DELAY_MILLIS"`
	LiveViewPageLimit          int    `mapstructure:"LIVE_VIEW_PAGE_LIMIT"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ACCOUNT_EVENT_QUEUE", "ledger_service.account_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "ledger:rate_limit")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("RECONCILE_SCHEDULE", "0 3 * * *")
	viper.SetDefault("FLEX_QUERY_PAGE_SIZE", 500)
	viper.SetDefault("FLEX_QUERY_PAGE_DELAY_MILLIS", 50)
	viper.SetDefault("LIVE_VIEW_PAGE_LIMIT", 0)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ACCOUNT_EVENT_QUEUE")
	_ = viper.BindEnv("JWKS_URL", "JWKS_URL", "LEDGER_JWKS_URL")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("FLEX_QUERY_PAGE_SIZE")
	_ = viper.BindEnv("FLEX_QUERY_PAGE_DELAY_MILLIS")
	_ = viper.BindEnv("LIVE_VIEW_PAGE_LIMIT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "ledger:rate_limit"
	}
	config.ReconcileSchedule = strings.TrimSpace(config.ReconcileSchedule)
	if config.ReconcileSchedule == "" {
		config.ReconcileSchedule = "0 3 * * *"
	}

	if config.TransferRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative transfer rate limit configured; coercing to zero\" limit=%d", config.TransferRateLimitPerMinute)
		config.TransferRateLimitPerMinute = 0
	}
	if config.FlexQueryPageSize <= 0 {
		config.FlexQueryPageSize = 500
	}
	if config.FlexQueryPageDelayMillis < 0 {
		config.FlexQueryPageDelayMillis = 0
	}
	if config.LiveViewPageLimit < 0 {
		config.LiveViewPageLimit = 0
	}

	return
}
