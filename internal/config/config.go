package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. Values come from config.yaml
// when present, overridden by QUIZCORE_-prefixed environment variables.
type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	DBDriver string `mapstructure:"DB_DRIVER"` // sqlite|postgres
	DBDSN    string `mapstructure:"DB_DSN"`

	JWTSecret     string `mapstructure:"JWT_SECRET"`
	AdminUser     string `mapstructure:"ADMIN_USER"`
	AdminPassHash string `mapstructure:"ADMIN_PASS_HASH"` // bcrypt

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("DB_DRIVER", "sqlite")
	viper.SetDefault("DB_DSN", "")
	viper.SetDefault("JWT_SECRET", "supersecret-dev-key")
	viper.SetDefault("ADMIN_USER", "admin")
	// dev-only placeholder; replace in any real deployment
	viper.SetDefault("ADMIN_PASS_HASH", "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
	viper.SetDefault("CORS_ORIGINS", []string{"http://localhost:3000"})
	viper.SetDefault("SWEEP_INTERVAL", "60s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("QUIZCORE")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
