// Package config provides environment-based configuration for the caregate
// auth service.
//
// Configuration is loaded from environment variables using Viper, with
// development defaults.
//
// # Environment Variables
//
//   - PORT: HTTP server port. Default: 8080
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - STORE_BACKEND: Where auth state lives (memory, sqlite, redis).
//     Default: memory. With "redis", token stores go to Redis and accounts
//     to the SQL database.
//   - DB_TYPE: Database type for the sqlite backend. Default: sqlite
//   - DSN: Database connection string. Default: caregate.db
//   - SKIP_AUTO_MIGRATE: Skip automatic database migrations. Default: false
//   - REDIS_ADDR: Redis address for the redis backend. Default: localhost:6379
//   - SECURE_COOKIES: Mark auth cookies Secure. Default: true (disable only
//     for plain-HTTP development)
//   - DEBUG: Development mode. Exposes raw reset tokens and internal error
//     text in responses and seeds a demo account. Never enable in
//     production. Default: false
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port            int    `mapstructure:"PORT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	StoreBackend    string `mapstructure:"STORE_BACKEND"` // memory, sqlite, redis
	DBType          string `mapstructure:"DB_TYPE"`
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	SecureCookies   bool   `mapstructure:"SECURE_COOKIES"`
	Debug           bool   `mapstructure:"DEBUG"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORE_BACKEND", "memory")
	viper.SetDefault("DB_TYPE", "sqlite")
	viper.SetDefault("DSN", "caregate.db")
	viper.SetDefault("SKIP_AUTO_MIGRATE", false)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("SECURE_COOKIES", true)
	viper.SetDefault("DEBUG", false)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
