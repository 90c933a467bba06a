package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Mode       ModeConfig
	Store      StoreConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	MinIO      MinIOConfig
	Simulation SimulationConfig
	RateLimit  RateLimitConfig
	LogLevel   string
	LogFormat  string // json|console
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ModeConfig selects between the local simulators and the external backend.
// It is read once at startup and never changes afterwards.
type ModeConfig struct {
	Mock       bool
	APIBaseURL string
}

type StoreConfig struct {
	Backend string // memory|none|redis|mongo|sqlite
	Path    string // sqlite database file
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type SimulationConfig struct {
	IndexingDelay   time.Duration
	AuditMaxEntries int
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5020")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORE_BACKEND", "memory")
	v.SetDefault("STORE_PATH", "clearpolicy.db")
	v.SetDefault("MONGODB_DATABASE", "clearpolicy")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MINIO_BUCKET", "clearpolicy")
	v.SetDefault("INDEXING_DELAY_MS", 2000)
	v.SetDefault("AUDIT_MAX_ENTRIES", 20)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Mode: ModeConfig{
			// only the exact string "true" enables mock mode
			Mock:       v.GetString("MOCK_MODE") == "true",
			APIBaseURL: strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
			Path:    v.GetString("STORE_PATH"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetString("MINIO_USE_SSL") == "true",
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		Simulation: SimulationConfig{
			IndexingDelay:   time.Duration(v.GetInt("INDEXING_DELAY_MS")) * time.Millisecond,
			AuditMaxEntries: v.GetInt("AUDIT_MAX_ENTRIES"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
	}

	if cfg.Simulation.AuditMaxEntries <= 0 {
		cfg.Simulation.AuditMaxEntries = 20
	}
	if cfg.Simulation.IndexingDelay < 0 {
		cfg.Simulation.IndexingDelay = 0
	}

	return cfg, nil
}
