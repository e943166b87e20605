package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode                   string        `mapstructure:"mode"`
	Port                   int           `mapstructure:"port"`
	LogLevel               string        `mapstructure:"log_level"`
	ReadLimit              int64         `mapstructure:"read_limit"`
	PingPeriod             time.Duration `mapstructure:"ping_period"`
	SendBuffer             int           `mapstructure:"send_buffer"`
	PublishLimit           int           `mapstructure:"publish_limit"`
	PublishWindow          time.Duration `mapstructure:"publish_window"`
	TransientDetachTimeout time.Duration `mapstructure:"transient_detach_timeout"`
	RetryInterval          time.Duration `mapstructure:"retry_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("publish_limit", 50)
	v.SetDefault("publish_window", "10s")
	v.SetDefault("transient_detach_timeout", "5s")
	v.SetDefault("retry_interval", "250ms")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
