package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Env        string           `json:"env"`
	Http       HttpConfig       `json:"http"`
	Storage    StorageConfig    `json:"storage"`
	Postgres   PostgresConfig   `json:"postgres"`
	Mongo      MongoConfig      `json:"mongo"`
	Redis      RedisConfig      `json:"redis"`
	Enrichment EnrichmentConfig `json:"enrichment"`
	Realtime   RealtimeConfig   `json:"realtime"`
	Expiry     ExpiryConfig     `json:"expiry"`
	APIKey     string           `json:"api_key,omitempty"`
	Webhook    WebhookConfig    `json:"webhook"`
}

type HttpConfig struct {
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver string `json:"driver"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"ssl_mode"`

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type MongoConfig struct {
	URI        string `json:"uri,omitempty"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type RedisConfig struct {
	Enabled        bool          `json:"enabled"`
	Addr           string        `json:"addr"`
	Password       string        `json:"password,omitempty"`
	DB             int           `json:"db"`
	RecentCacheTTL time.Duration `json:"recent_cache_ttl"`
	RelayChannel   string        `json:"relay_channel"`
}

type EnrichmentConfig struct {
	GeoapifyKey    string        `json:"-"`
	OpenWeatherKey string        `json:"-"`
	Timeout        time.Duration `json:"timeout"`
	CacheSize      int           `json:"cache_size"`
	AddressTTL     time.Duration `json:"address_ttl"`
	WeatherTTL     time.Duration `json:"weather_ttl"`
}

type RealtimeConfig struct {
	SessionBuffer int           `json:"session_buffer"`
	PingInterval  time.Duration `json:"ping_interval"`
}

type ExpiryConfig struct {
	TTL           time.Duration `json:"ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

type WebhookConfig struct {
	URL      string `json:"url"`
	Disabled bool   `json:"disabled"`
}

func Load() (*Config, error) {

	stdLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		stdLogger.Warn(".env load warning", slog.Any("error", err))
	}

	cfg := &Config{
		Env: getEnv("ENV", "local"),
		Http: HttpConfig{
			Port:            getEnv("HTTP_PORT", ":3001"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", DriverPostgres),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnvInt("POSTGRES_PORT", 5432),
			Database:        getEnv("POSTGRES_DB", "incident_reporting"),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
			MaxConns:        int32(getEnvInt("POSTGRES_MAX_CONNS", 20)),
			MinConns:        1,
			MaxConnLifetime: 1 * time.Hour,
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGODB_DATABASE", "incident-reporting"),
			Collection: getEnv("MONGODB_COLLECTION", "incidents"),
		},
		Redis: RedisConfig{
			Enabled:        getEnvBool("REDIS_ENABLED", false),
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvInt("REDIS_DB", 0),
			RecentCacheTTL: getEnvDuration("RECENT_CACHE_TTL", 5*time.Second),
			RelayChannel:   getEnv("REDIS_RELAY_CHANNEL", "incidents:events"),
		},
		Enrichment: EnrichmentConfig{
			GeoapifyKey:    getEnv("GEOAPIFY_API_KEY", ""),
			OpenWeatherKey: getEnv("OPENWEATHER_API_KEY", ""),
			Timeout:        getEnvDuration("ENRICHMENT_TIMEOUT", 3*time.Second),
			CacheSize:      getEnvInt("ENRICHMENT_CACHE_SIZE", 1000),
			AddressTTL:     getEnvDuration("ENRICHMENT_ADDRESS_TTL", time.Hour),
			WeatherTTL:     getEnvDuration("ENRICHMENT_WEATHER_TTL", 10*time.Minute),
		},
		Realtime: RealtimeConfig{
			SessionBuffer: getEnvInt("REALTIME_SESSION_BUFFER", 32),
			PingInterval:  getEnvDuration("REALTIME_PING_INTERVAL", 25*time.Second),
		},
		Expiry: ExpiryConfig{
			TTL:           getEnvDuration("INCIDENT_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
		},
		APIKey: getEnv("API_KEY", ""),
		Webhook: WebhookConfig{
			URL:      getEnv("WEBHOOK_URL", ""),
			Disabled: getEnvBool("WEBHOOK_DISABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stdLogger.Info("Config loaded successfully",
		slog.String("env", cfg.Env),
		slog.String("http_port", cfg.Http.Port),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.Bool("redis_enabled", cfg.Redis.Enabled),
		slog.Bool("geocoding_enabled", cfg.Enrichment.GeoapifyKey != ""),
		slog.Bool("weather_enabled", cfg.Enrichment.OpenWeatherKey != ""))

	return cfg, nil
}

func (c *Config) Validate() error {

	if c.Http.Port == "" || (len(c.Http.Port) > 0 && c.Http.Port[0] != ':') {
		return errors.New("HTTP_PORT must start with ':' like ':3001'")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Postgres.Host == "" {
			return errors.New("POSTGRES_HOST required")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return errors.New("MONGODB_URI required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not one of postgres, mongo, memory", c.Storage.Driver)
	}

	if c.Enrichment.Timeout <= 0 {
		return errors.New("ENRICHMENT_TIMEOUT must be positive")
	}
	if c.Enrichment.CacheSize <= 0 {
		return errors.New("ENRICHMENT_CACHE_SIZE must be positive")
	}
	if c.Expiry.TTL <= 0 {
		return errors.New("INCIDENT_TTL must be positive")
	}
	if c.Expiry.SweepInterval <= 0 {
		return errors.New("EXPIRY_SWEEP_INTERVAL must be positive")
	}
	if c.Realtime.SessionBuffer <= 0 {
		return errors.New("REALTIME_SESSION_BUFFER must be positive")
	}
	if c.Redis.Enabled && c.Redis.RecentCacheTTL < time.Millisecond {
		return errors.New("RECENT_CACHE_TTL must be at least 1ms")
	}

	return nil
}

// WebhookEnabled reports whether incident events should be forwarded.
func (c *Config) WebhookEnabled() bool {
	return c.Webhook.URL != "" && !c.Webhook.Disabled && c.Redis.Enabled
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
