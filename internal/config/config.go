package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	MySQLDSN      string `mapstructure:"MYSQL_DSN"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	DBMaxConns    int    `mapstructure:"DB_MAX_CONNS"`
	DBIdleConns   int    `mapstructure:"DB_IDLE_CONNS"`
	RedisPoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/pharmacy?parseTime=true")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("DB_MAX_CONNS", 50)
	v.SetDefault("DB_IDLE_CONNS", 25)
	v.SetDefault("REDIS_POOL_SIZE", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "MYSQL_DSN", "REDIS_ADDR",
		"DB_MAX_CONNS", "DB_IDLE_CONNS", "REDIS_POOL_SIZE",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
