package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Console   ConsoleConfig   `mapstructure:"console"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// SimulatedLatency 为每个请求注入的固定延迟，模拟控制台原有的 mock 网络耗时。
	SimulatedLatency time.Duration `mapstructure:"simulated_latency"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	Seed             bool          `mapstructure:"seed"`
}

// DatabaseConfig contains connection options for PostgreSQL or SQLite.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Name       string `mapstructure:"name"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
	// ExportRetention 导出文件在 Bucket 中保留的时长，随日志保留任务一起清理。
	ExportRetention time.Duration `mapstructure:"export_retention"`
}

// AuthConfig 描述令牌、验证码与登录保护相关参数。
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	RememberMeTTL         time.Duration `mapstructure:"remember_me_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	CaptchaRequired       bool          `mapstructure:"captcha_required"`
	CaptchaTTL            time.Duration `mapstructure:"captcha_ttl"`
}

// WorkerConfig 控制后台任务的执行方式与进度推进节奏。
type WorkerConfig struct {
	// Mode 为 asynq 时任务经 Redis 队列交给 worker 进程；inline 时在 API 进程内执行。
	Mode           string        `mapstructure:"mode"`
	Concurrency    int           `mapstructure:"concurrency"`
	TickerInterval time.Duration `mapstructure:"ticker_interval"`
	MinStep        int           `mapstructure:"min_step"`
	MaxStep        int           `mapstructure:"max_step"`
}

// SchedulerConfig controls cron-driven sync and log retention.
type SchedulerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RetentionSpec string `mapstructure:"retention_spec"`
}

// LogConfig 描述 slog 输出。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ConsoleConfig holds settings for the terminal console client.
type ConsoleConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UseMock   bool          `mapstructure:"use_mock"`
	StateFile string        `mapstructure:"state_file"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	WorkerModeAsynq  = "asynq"
	WorkerModeInline = "inline"
)

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.SQLitePath
	}
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

// Load reads configuration from an optional .env file and environment variables (with defaults).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
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

// Default returns the built-in defaults without reading .env or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unmarshal default config: %w", err))
	}
	return &cfg
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8001)
	v.SetDefault("api.simulated_latency", 300*time.Millisecond)
	v.SetDefault("api.allowed_origins", []string{})
	v.SetDefault("api.seed", true)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "vectoradmin")
	v.SetDefault("database.user", "vectoradmin")
	v.SetDefault("database.password", "vectoradmin")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "file::memory:?cache=shared")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "vector-exports")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("minio.export_retention", 24*time.Hour)
	v.SetDefault("auth.access_token_ttl", 2*time.Hour)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.remember_me_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("auth.captcha_required", true)
	v.SetDefault("auth.captcha_ttl", 2*time.Minute)
	v.SetDefault("worker.mode", WorkerModeInline)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.ticker_interval", 1500*time.Millisecond)
	v.SetDefault("worker.min_step", 5)
	v.SetDefault("worker.max_step", 15)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.retention_spec", "0 3 * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("console.base_url", "http://localhost:8001/api")
	v.SetDefault("console.timeout", 15*time.Second)
	v.SetDefault("console.use_mock", true)
	v.SetDefault("console.state_file", ".vectoradmin/state.json")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.simulated_latency":          "API_SIMULATED_LATENCY",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"api.seed":                       "API_SEED",
		"database.driver":                "DATABASE_DRIVER",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.sqlite_path":           "SQLITE_PATH",
		"redis.enabled":                  "REDIS_ENABLED",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.enabled":                  "MINIO_ENABLED",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"minio.export_retention":         "MINIO_EXPORT_RETENTION",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":          "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "JWT_REFRESH_TOKEN_TTL",
		"auth.remember_me_ttl":           "AUTH_REMEMBER_ME_TTL",
		"auth.login_rate_limit_per_hour": "AUTH_LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "AUTH_LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "AUTH_LOGIN_LOCK_TTL",
		"auth.captcha_required":          "AUTH_CAPTCHA_REQUIRED",
		"auth.captcha_ttl":               "AUTH_CAPTCHA_TTL",
		"worker.mode":                    "WORKER_MODE",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.ticker_interval":         "WORKER_TICKER_INTERVAL",
		"worker.min_step":                "WORKER_MIN_STEP",
		"worker.max_step":                "WORKER_MAX_STEP",
		"scheduler.enabled":              "SCHEDULER_ENABLED",
		"scheduler.retention_spec":       "SCHEDULER_RETENTION_SPEC",
		"log.level":                      "LOG_LEVEL",
		"log.format":                     "LOG_FORMAT",
		"log.file":                       "LOG_FILE",
		"log.max_size_mb":                "LOG_MAX_SIZE_MB",
		"log.max_backups":                "LOG_MAX_BACKUPS",
		"log.max_age_days":               "LOG_MAX_AGE_DAYS",
		"console.base_url":               "CONSOLE_BASE_URL",
		"console.timeout":                "CONSOLE_TIMEOUT",
		"console.use_mock":               "CONSOLE_USE_MOCK",
		"console.state_file":             "CONSOLE_STATE_FILE",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// 环境变量里的列表以逗号分隔，viper 只会给出单个元素。
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
	if cfg.API.SimulatedLatency < 0 {
		return errors.New("api simulated latency must not be negative")
	}
	switch cfg.Database.Driver {
	case DriverSQLite:
		if cfg.Database.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	case DriverPostgres:
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
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Redis.Enabled {
		if cfg.Redis.Host == "" {
			return errors.New("redis host is required")
		}
		if cfg.Redis.Port <= 0 {
			return errors.New("redis port must be positive")
		}
	}
	if cfg.MinIO.Enabled {
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
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	switch cfg.Worker.Mode {
	case WorkerModeInline:
	case WorkerModeAsynq:
		if !cfg.Redis.Enabled {
			return errors.New("worker mode asynq requires redis")
		}
	default:
		return fmt.Errorf("unsupported worker mode %q", cfg.Worker.Mode)
	}
	if cfg.Worker.TickerInterval <= 0 {
		return errors.New("worker ticker interval must be positive")
	}
	if cfg.Worker.MinStep <= 0 || cfg.Worker.MaxStep < cfg.Worker.MinStep {
		return errors.New("worker step range is invalid")
	}
	return nil
}
