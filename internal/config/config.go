package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Clinic   ClinicConfig   `mapstructure:"clinic"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type ClinicConfig struct {
	// Timezone is the clinic's local time zone; all schedule and
	// conflict arithmetic is interpreted in it.
	Timezone          string        `mapstructure:"timezone"`
	DirectoryCacheTTL time.Duration `mapstructure:"directory_cache_ttl"`
}

type BillingConfig struct {
	DueDays int `mapstructure:"due_days"`
}

type WorkerConfig struct {
	OverdueInterval time.Duration `mapstructure:"overdue_interval"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)
	viper.SetDefault("clinic.timezone", "Asia/Kolkata")
	viper.SetDefault("clinic.directory_cache_ttl", 5*time.Minute)
	viper.SetDefault("billing.due_days", 14)
	viper.SetDefault("worker.overdue_interval", time.Hour)
	viper.SetDefault("redis.lock_ttl", 10*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
