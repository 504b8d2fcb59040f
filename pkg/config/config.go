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

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Booking     BookingConfig
	Pricing     PricingConfig
	Leaderboard LeaderboardConfig
	Statements  StatementsConfig
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

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BookingConfig tunes the availability grid and commit checks.
// LeadDays is a business rule: learners must book with at least that
// many full days of notice. GridStepMinutes is the candidate start-time
// granularity and is deliberately independent of the pricing duration
// step; collapsing the two would change which start times are offered.
type BookingConfig struct {
	LeadDays        int
	GridStepMinutes int
	GridCacheTTL    time.Duration
}

// PricingConfig holds the quantisation steps applied to client input.
type PricingConfig struct {
	DurationStepMinutes int
	DiscountStepPercent int
}

// LeaderboardConfig governs leaderboard caching and paging.
type LeaderboardConfig struct {
	CacheTTL        time.Duration
	DefaultPageSize int
}

// StatementsConfig controls receipt statement exports.
type StatementsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
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

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Booking = BookingConfig{
		LeadDays:        v.GetInt("BOOKING_LEAD_DAYS"),
		GridStepMinutes: v.GetInt("BOOKING_GRID_STEP_MINUTES"),
		GridCacheTTL:    parseDuration(v.GetString("BOOKING_GRID_CACHE_TTL"), time.Minute),
	}

	cfg.Pricing = PricingConfig{
		DurationStepMinutes: v.GetInt("PRICING_DURATION_STEP_MINUTES"),
		DiscountStepPercent: v.GetInt("PRICING_DISCOUNT_STEP_PERCENT"),
	}

	cfg.Leaderboard = LeaderboardConfig{
		CacheTTL:        parseDuration(v.GetString("LEADERBOARD_CACHE_TTL"), 5*time.Minute),
		DefaultPageSize: v.GetInt("LEADERBOARD_PAGE_SIZE"),
	}

	cfg.Statements = StatementsConfig{
		Enabled:           v.GetBool("ENABLE_STATEMENTS"),
		StorageDir:        v.GetString("STATEMENTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("STATEMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("STATEMENTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("STATEMENTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("STATEMENTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("STATEMENTS_WORKER_RETRIES"),
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
	v.SetDefault("DB_NAME", "tutorhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BOOKING_LEAD_DAYS", 2)
	v.SetDefault("BOOKING_GRID_STEP_MINUTES", 30)
	v.SetDefault("BOOKING_GRID_CACHE_TTL", "1m")

	v.SetDefault("PRICING_DURATION_STEP_MINUTES", 30)
	v.SetDefault("PRICING_DISCOUNT_STEP_PERCENT", 10)

	v.SetDefault("LEADERBOARD_CACHE_TTL", "5m")
	v.SetDefault("LEADERBOARD_PAGE_SIZE", 20)

	v.SetDefault("ENABLE_STATEMENTS", false)
	v.SetDefault("STATEMENTS_STORAGE_DIR", "./statements")
	v.SetDefault("STATEMENTS_SIGNED_URL_SECRET", "dev_statements_secret")
	v.SetDefault("STATEMENTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("STATEMENTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("STATEMENTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("STATEMENTS_WORKER_RETRIES", 3)
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
