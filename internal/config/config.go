package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from a .env file or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Auth      AuthConfig      `mapstructure:"auth"`
	AI        AIConfig        `mapstructure:"ai"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Clamd     ClamdConfig     `mapstructure:"clamd"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig points at the RSA key pair used to sign tokens.
type AuthConfig struct {
	PrivateKeyPath     string        `mapstructure:"private_key_path"`
	PublicKeyPath      string        `mapstructure:"public_key_path"`
	AccessTokenTTL     time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	LoginLockThreshold int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL       time.Duration `mapstructure:"login_lock_ttl"`
	CookieDomain       string        `mapstructure:"cookie_domain"`
}

// AIConfig selects and configures the resume scoring model.
type AIConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	ProjectID   string        `mapstructure:"project_id"`
	Location    string        `mapstructure:"location"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	Backend string        `mapstructure:"backend"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// BroadcastConfig bounds each realtime publish.
type BroadcastConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ClamdConfig enables virus scanning of uploaded resumes when Addr is set.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// QuotaConfig holds the default AI analysis allotment for new users.
type QuotaConfig struct {
	DefaultAllotment int `mapstructure:"default_allotment"`
}

// WorkerConfig configures the asynq consumer.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
	MetricsPort int `mapstructure:"metrics_port"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads an optional .env file and then configuration from environment variables (with defaults).
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// loadDotEnv loads ENV_FILE (default .env) when present; variables already set win.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{})
	v.SetDefault("api.max_upload_bytes", 10<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "hirelane")
	v.SetDefault("database.user", "hirelane")
	v.SetDefault("database.password", "hirelane")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.slow_query", "500ms")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "resumes")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.location", "us-central1")
	v.SetDefault("ai.max_duration", 60*time.Second)
	v.SetDefault("ratelimit.backend", "redis")
	v.SetDefault("ratelimit.limit", 20)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("broadcast.timeout", 5*time.Second)
	v.SetDefault("quota.default_allotment", 50)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.max_retry", 5)
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                   "API_PORT",
		"api.allowed_origins":        "API_ALLOWED_ORIGINS",
		"api.max_upload_bytes":       "API_MAX_UPLOAD_BYTES",
		"database.host":              "DATABASE_HOST",
		"database.port":              "DATABASE_PORT",
		"database.name":              "POSTGRES_DB",
		"database.user":              "POSTGRES_USER",
		"database.password":          "POSTGRES_PASSWORD",
		"database.sslmode":           "DATABASE_SSLMODE",
		"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
		"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",
		"database.slow_query":        "DATABASE_SLOW_QUERY",
		"redis.host":                 "REDIS_HOST",
		"redis.port":                 "REDIS_PORT",
		"redis.password":             "REDIS_PASSWORD",
		"redis.db":                   "REDIS_DB",
		"minio.endpoint":             "MINIO_ENDPOINT",
		"minio.public_endpoint":      "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":        "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":    "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":              "MINIO_USE_SSL",
		"minio.bucket":               "MINIO_BUCKET",
		"minio.region":               "MINIO_REGION",
		"minio.bucket_lookup":        "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":   "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_path":      "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":       "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":      "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":     "JWT_REFRESH_TOKEN_TTL",
		"auth.login_lock_threshold":  "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":        "LOGIN_LOCK_TTL",
		"auth.cookie_domain":         "COOKIE_DOMAIN",
		"ai.provider":                "AI_PROVIDER",
		"ai.api_key":                 "GEMINI_API_KEY",
		"ai.model":                   "AI_MODEL",
		"ai.project_id":              "GOOGLE_CLOUD_PROJECT",
		"ai.location":                "GOOGLE_CLOUD_LOCATION",
		"ai.max_duration":            "AI_MAX_DURATION",
		"ratelimit.backend":          "RATE_LIMIT_BACKEND",
		"ratelimit.limit":            "RATE_LIMIT_LIMIT",
		"ratelimit.window":           "RATE_LIMIT_WINDOW",
		"broadcast.timeout":          "BROADCAST_TIMEOUT",
		"clamd.addr":                 "CLAMD_ADDR",
		"quota.default_allotment":    "QUOTA_DEFAULT_ALLOTMENT",
		"worker.concurrency":         "WORKER_CONCURRENCY",
		"worker.max_retry":           "WORKER_MAX_RETRY",
		"worker.metrics_port":        "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList 兼容 "a,b" 形式的环境变量。
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.MaxUploadBytes <= 0 {
		return errors.New("api max upload bytes must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.APIKey == "" {
			return errors.New("ai api key is required for gemini provider")
		}
	case "vertex":
		if cfg.AI.ProjectID == "" {
			return errors.New("ai project id is required for vertex provider")
		}
	case "none":
	default:
		return fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
	switch cfg.RateLimit.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.Limit <= 0 || cfg.RateLimit.Window <= 0 {
		return errors.New("rate limit and window must be positive")
	}
	if cfg.Broadcast.Timeout <= 0 {
		return errors.New("broadcast timeout must be positive")
	}
	if cfg.Quota.DefaultAllotment < 0 {
		return errors.New("quota default allotment must not be negative")
	}
	return nil
}
