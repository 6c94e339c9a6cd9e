package config

import (
	"errors"
	"io/fs"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Planner   PlannerConfig
	Scheduler SchedulerConfig
	Oracle    OracleConfig
	Notify    NotifyConfig
	Export    ExportConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify tokens minted by the auth service.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PlannerConfig describes the weekly grid and planning defaults.
type PlannerConfig struct {
	DayStartHour        int
	DayEndHour          int
	MinWeek             string
	ActiveTerm          string
	DefaultCreditPoints int
	PreferenceWeight    float64
}

// SchedulerConfig toggles the periodic weekly generation job.
type SchedulerConfig struct {
	Enabled bool
	Cron    string
	Workers int
	LockTTL time.Duration
	Timeout time.Duration
}

// OracleConfig points at the OpenAI-compatible slot optimisation endpoint.
type OracleConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NotifyConfig tunes the asynchronous notification queue.
type NotifyConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ExportConfig controls stored plan exports and their signed download links.
type ExportConfig struct {
	Dir         string
	Secret      string
	LinkTTL     time.Duration
	CleanupCron string
	Timezone    string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Planner = PlannerConfig{
		DayStartHour:        v.GetInt("PLANNER_DAY_START_HOUR"),
		DayEndHour:          v.GetInt("PLANNER_DAY_END_HOUR"),
		MinWeek:             v.GetString("PLANNER_MIN_WEEK"),
		ActiveTerm:          v.GetString("PLANNER_ACTIVE_TERM"),
		DefaultCreditPoints: v.GetInt("PLANNER_DEFAULT_CREDIT_POINTS"),
		PreferenceWeight:    v.GetFloat64("PLANNER_PREFERENCE_WEIGHT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled: v.GetBool("ENABLE_SCHEDULER"),
		Cron:    v.GetString("SCHEDULER_CRON"),
		Workers: v.GetInt("SCHEDULER_WORKERS"),
		LockTTL: parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 30*time.Minute),
		Timeout: parseDuration(v.GetString("SCHEDULER_RUN_TIMEOUT"), 25*time.Minute),
	}

	cfg.Oracle = OracleConfig{
		Enabled: v.GetBool("ORACLE_ENABLED"),
		BaseURL: v.GetString("ORACLE_BASE_URL"),
		APIKey:  v.GetString("ORACLE_API_KEY"),
		Model:   v.GetString("ORACLE_MODEL"),
		Timeout: parseDuration(v.GetString("ORACLE_TIMEOUT"), 20*time.Second),
	}

	cfg.Notify = NotifyConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Export = ExportConfig{
		Dir:         v.GetString("EXPORT_DIR"),
		Secret:      v.GetString("EXPORT_SIGNING_SECRET"),
		LinkTTL:     parseDuration(v.GetString("EXPORT_LINK_TTL"), 24*time.Hour),
		CleanupCron: v.GetString("EXPORT_CLEANUP_CRON"),
		Timezone:    v.GetString("EXPORT_TIMEZONE"),
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
	v.SetDefault("DB_NAME", "study_planner")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PLANNER_DAY_START_HOUR", 8)
	v.SetDefault("PLANNER_DAY_END_HOUR", 21)
	v.SetDefault("PLANNER_MIN_WEEK", "2026-05-01")
	v.SetDefault("PLANNER_ACTIVE_TERM", "")
	v.SetDefault("PLANNER_DEFAULT_CREDIT_POINTS", 3)
	v.SetDefault("PLANNER_PREFERENCE_WEIGHT", 0.8)

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("SCHEDULER_CRON", "0 3 * * 6")
	v.SetDefault("SCHEDULER_WORKERS", 4)
	v.SetDefault("SCHEDULER_LOCK_TTL", "30m")
	v.SetDefault("SCHEDULER_RUN_TIMEOUT", "25m")

	v.SetDefault("ORACLE_ENABLED", false)
	v.SetDefault("ORACLE_BASE_URL", "https://api.llmod.ai/v1")
	v.SetDefault("ORACLE_API_KEY", "")
	v.SetDefault("ORACLE_MODEL", "gpt-3.5-turbo")
	v.SetDefault("ORACLE_TIMEOUT", "20s")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER", 64)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_SIGNING_SECRET", "dev_export_secret")
	v.SetDefault("EXPORT_LINK_TTL", "24h")
	v.SetDefault("EXPORT_CLEANUP_CRON", "30 * * * *")
	v.SetDefault("EXPORT_TIMEZONE", "UTC")
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
