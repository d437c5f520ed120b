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

	defaultSessionSecret = "dev_session_secret"
)

// ErrInsecureSessionSecret is returned when production runs without its own signing secret.
var ErrInsecureSessionSecret = errors.New("SESSION_SECRET must be set to a non-default value in production")

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     CacheConfig
	Work      WorkConfig
	Ingestion IngestionConfig
	Audit     AuditConfig
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

// SessionConfig governs signed session tokens and initial admin provisioning.
type SessionConfig struct {
	Secret               string
	TTL                  time.Duration
	Issuer               string
	BootstrapAdminEmails []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig controls Redis-backed caching of lookups and stats.
type CacheConfig struct {
	Enabled  bool
	TTL      time.Duration
	UserTTL  time.Duration
	StatsTTL time.Duration
}

// WorkConfig tunes the work-item claim behaviour.
type WorkConfig struct {
	ClaimTTL             time.Duration
	ReviewExcludeOwnWork bool
}

// IngestionConfig bounds bulk uploads.
type IngestionConfig struct {
	MaxUploadBytes   int64
	ArchiveDir       string
	ArchiveRetention time.Duration
	BatchSize        int
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	Workers    int
	Retries    int
	BufferSize int
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

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that are unsafe for the configured environment.
func (c *Config) Validate() error {
	if c.Env == EnvProduction {
		secret := strings.TrimSpace(c.Session.Secret)
		if secret == "" || secret == defaultSessionSecret {
			return ErrInsecureSessionSecret
		}
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = strings.TrimRight(v.GetString("API_PREFIX"), "/")

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

	cfg.Session = SessionConfig{
		Secret:               v.GetString("SESSION_SECRET"),
		TTL:                  parseDuration(v.GetString("SESSION_TTL"), 24*time.Hour),
		Issuer:               v.GetString("SESSION_ISSUER"),
		BootstrapAdminEmails: splitAndTrim(v.GetString("BOOTSTRAP_ADMIN_EMAILS")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:  v.GetBool("ENABLE_CACHE"),
		TTL:      parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
		UserTTL:  parseDuration(v.GetString("USER_CACHE_TTL"), time.Minute),
		StatsTTL: parseDuration(v.GetString("STATS_CACHE_TTL"), 30*time.Second),
	}

	cfg.Work = WorkConfig{
		ClaimTTL:             parseDuration(v.GetString("WORK_CLAIM_TTL"), 15*time.Minute),
		ReviewExcludeOwnWork: v.GetBool("REVIEW_EXCLUDE_OWN_WORK"),
	}

	maxUpload := v.GetInt64("INGEST_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	cfg.Ingestion = IngestionConfig{
		MaxUploadBytes:   maxUpload,
		ArchiveDir:       v.GetString("INGEST_ARCHIVE_DIR"),
		ArchiveRetention: parseDuration(v.GetString("INGEST_ARCHIVE_RETENTION"), 0),
		BatchSize:        v.GetInt("INGEST_BATCH_SIZE"),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		Retries:    v.GetInt("AUDIT_RETRIES"),
		BufferSize: v.GetInt("AUDIT_BUFFER_SIZE"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "transcript_review")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SESSION_SECRET", defaultSessionSecret)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_ISSUER", "transcript-review-api")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAILS", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("USER_CACHE_TTL", "1m")
	v.SetDefault("STATS_CACHE_TTL", "30s")

	v.SetDefault("WORK_CLAIM_TTL", "15m")
	v.SetDefault("REVIEW_EXCLUDE_OWN_WORK", false)

	v.SetDefault("INGEST_MAX_UPLOAD_BYTES", 10*1024*1024)
	v.SetDefault("INGEST_ARCHIVE_DIR", "./uploads")
	v.SetDefault("INGEST_ARCHIVE_RETENTION", "720h")
	v.SetDefault("INGEST_BATCH_SIZE", 500)

	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_RETRIES", 3)
	v.SetDefault("AUDIT_BUFFER_SIZE", 64)
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
