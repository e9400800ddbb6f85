package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DBURL             string        `mapstructure:"DB_URL"`
	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
	GithubToken       string        `mapstructure:"GITHUB_TOKEN"`
	BackfillRepos     []string      `mapstructure:"BACKFILL_REPOS"`
	BackfillPageLimit int           `mapstructure:"BACKFILL_PAGE_LIMIT"`
	StreamMaxLifetime time.Duration `mapstructure:"STREAM_MAX_LIFETIME"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("BACKFILL_PAGE_LIMIT", 3)
	viper.SetDefault("STREAM_MAX_LIFETIME", "5m")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if len(cfg.BackfillRepos) > 0 && cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is required when BACKFILL_REPOS is set")
	}
	if cfg.StreamMaxLifetime <= 0 {
		return nil, errors.New("STREAM_MAX_LIFETIME must be a positive duration")
	}

	return &cfg, nil
}
