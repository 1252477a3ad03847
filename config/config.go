package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        int    `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	Version     string `mapstructure:"VERSION"`
	RateLimit   int    `mapstructure:"RATE_LIMIT"`

	// Identity tokens: anonymous signed tokens carrying the opaque user hash
	IdentitySecret string `mapstructure:"IDENTITY_SECRET"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`

	// Override authorization: bcrypt hash the admin secret is checked against.
	// Generate with `retroctl hash-secret`.
	AdminSecretHash string `mapstructure:"ADMIN_SECRET_HASH"`

	IdentityTokenDuration time.Duration

	// CORS Configuration
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`

	// Board archive storage (S3-compatible). Archiving is disabled when the
	// bucket is empty.
	ArchiveBucket   string `mapstructure:"ARCHIVE_BUCKET"`
	ArchiveRegion   string `mapstructure:"ARCHIVE_REGION"`
	ArchiveEndpoint string `mapstructure:"ARCHIVE_ENDPOINT"`
	ArchiveKey      string `mapstructure:"ARCHIVE_KEY"`
	ArchiveSecret   string `mapstructure:"ARCHIVE_SECRET"`
}

// LoadConfig loads the configuration from environment variables and config files
func LoadConfig(configPath string) (*Config, error) {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Set default values
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	viper.SetDefault("VERSION", "1.0.0")
	viper.SetDefault("RATE_LIMIT", 100) // 100 requests per minute per IP

	// Read environment variables
	viper.AutomaticEnv()
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("IDENTITY_SECRET")
	_ = viper.BindEnv("ADMIN_SECRET_HASH")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Set derived values
	config.IdentityTokenDuration = 30 * 24 * time.Hour

	return &config, nil
}
