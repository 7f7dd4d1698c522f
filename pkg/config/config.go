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

// Fallback strategies understood by the allocation engine.
const (
	FallbackDeterministic = "deterministic"
	FallbackShuffle       = "shuffle"
)

// Storage drivers for exported reports.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Cache      CacheConfig
	Allocation AllocationConfig
	Proposals  ProposalsConfig
	Exports    ExportsConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig carries what is needed to verify access tokens issued elsewhere.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles the Redis mirror used for recommendation results.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AllocationConfig tunes the recommendation engine.
type AllocationConfig struct {
	FallbackStrategy  string
	FallbackSeed      int64
	RecommendationTTL time.Duration
}

// ProposalsConfig governs the side-effect retry sweep.
type ProposalsConfig struct {
	SweepEnabled  bool
	SweepSchedule string
	SweepBatch    int
	WorkerCount   int
	WorkerRetries int
}

// ExportsConfig selects where rendered allocation reports are stored.
type ExportsConfig struct {
	Driver          string
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	S3              S3Config
}

// S3Config configures the S3-compatible export bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 30*time.Minute),
	}

	strategy := strings.ToLower(strings.TrimSpace(v.GetString("ALLOCATION_FALLBACK_STRATEGY")))
	if strategy != FallbackShuffle {
		strategy = FallbackDeterministic
	}
	cfg.Allocation = AllocationConfig{
		FallbackStrategy:  strategy,
		FallbackSeed:      v.GetInt64("ALLOCATION_FALLBACK_SEED"),
		RecommendationTTL: parseDuration(v.GetString("ALLOCATION_RECOMMENDATION_TTL"), 30*time.Minute),
	}

	cfg.Proposals = ProposalsConfig{
		SweepEnabled:  v.GetBool("ENABLE_PROPOSAL_SWEEP"),
		SweepSchedule: v.GetString("PROPOSAL_SWEEP_SCHEDULE"),
		SweepBatch:    v.GetInt("PROPOSAL_SWEEP_BATCH"),
		WorkerCount:   v.GetInt("PROPOSAL_WORKER_CONCURRENCY"),
		WorkerRetries: v.GetInt("PROPOSAL_WORKER_RETRIES"),
	}

	driver := strings.ToLower(strings.TrimSpace(v.GetString("EXPORTS_STORAGE_DRIVER")))
	if driver != StorageDriverS3 {
		driver = StorageDriverLocal
	}
	cfg.Exports = ExportsConfig{
		Driver:          driver,
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		S3: S3Config{
			Bucket:    v.GetString("EXPORTS_S3_BUCKET"),
			Region:    v.GetString("EXPORTS_S3_REGION"),
			Endpoint:  v.GetString("EXPORTS_S3_ENDPOINT"),
			PathStyle: v.GetBool("EXPORTS_S3_PATH_STYLE"),
		},
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "capstone")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "30m")

	v.SetDefault("ALLOCATION_FALLBACK_STRATEGY", FallbackDeterministic)
	v.SetDefault("ALLOCATION_FALLBACK_SEED", 0)
	v.SetDefault("ALLOCATION_RECOMMENDATION_TTL", "30m")

	v.SetDefault("ENABLE_PROPOSAL_SWEEP", true)
	v.SetDefault("PROPOSAL_SWEEP_SCHEDULE", "0 */5 * * * *")
	v.SetDefault("PROPOSAL_SWEEP_BATCH", 50)
	v.SetDefault("PROPOSAL_WORKER_CONCURRENCY", 1)
	v.SetDefault("PROPOSAL_WORKER_RETRIES", 3)

	v.SetDefault("EXPORTS_STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_S3_BUCKET", "")
	v.SetDefault("EXPORTS_S3_REGION", "us-east-1")
	v.SetDefault("EXPORTS_S3_ENDPOINT", "")
	v.SetDefault("EXPORTS_S3_PATH_STYLE", false)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
