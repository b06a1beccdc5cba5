package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Log           LogConfig
	Lottery       LotteryConfig
	RedrawQueue   RedrawQueueConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LotteryConfig tunes the selection draw engine.
// Seed 0 means the engine seeds itself from the clock; tests inject a
// fixed seed to make draw outcomes reproducible.
type LotteryConfig struct {
	Seed int64
}

// RedrawQueueConfig configures the worker pool that consumes
// cancellation events and runs replacement draws.
type RedrawQueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NotificationsConfig governs channel-resolution caching and the bulk
// read chunk size for identifier-keyed queries.
type NotificationsConfig struct {
	ChannelCacheTTL time.Duration
	QueryBatchSize  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lottery = LotteryConfig{
		Seed: v.GetInt64("LOTTERY_SEED"),
	}

	cfg.RedrawQueue = RedrawQueueConfig{
		Workers:    v.GetInt("REDRAW_WORKERS"),
		BufferSize: v.GetInt("REDRAW_BUFFER_SIZE"),
		MaxRetries: v.GetInt("REDRAW_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("REDRAW_RETRY_DELAY"), time.Second),
	}

	cfg.Notifications = NotificationsConfig{
		ChannelCacheTTL: parseDuration(v.GetString("CHANNEL_CACHE_TTL"), time.Minute),
		QueryBatchSize:  v.GetInt("NOTIFICATION_QUERY_BATCH_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "evently")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LOTTERY_SEED", 0)

	v.SetDefault("REDRAW_WORKERS", 1)
	v.SetDefault("REDRAW_BUFFER_SIZE", 16)
	v.SetDefault("REDRAW_MAX_RETRIES", 3)
	v.SetDefault("REDRAW_RETRY_DELAY", "1s")

	v.SetDefault("CHANNEL_CACHE_TTL", "1m")
	// Chunk size for identifier-keyed bulk reads. Mirrors the
	// 30-identifier limit the source platform imposed on whereIn
	// queries so bulk reads behave the same against either backend.
	v.SetDefault("NOTIFICATION_QUERY_BATCH_SIZE", 30)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
