package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Recorder RecorderConfig
	Preview  PreviewConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// RecorderConfig points at the R58 appliance's control API and status feed.
type RecorderConfig struct {
	BaseURL       string // e.g. http://r58.local:8000
	StatusFeedURL string // ws:// URL of the out-of-band status push channel
	StartRetries  int    // attempts for record start/stop before giving up
	RetryBackoff  time.Duration
}

// PreviewConfig holds WHEP signaling and preview lifecycle tuning.
type PreviewConfig struct {
	// WHEPURLTemplate builds the per-input signaling endpoint; %s is the
	// input id (e.g. http://r58.local:8889/%s/whep).
	WHEPURLTemplate string
	ICEUrls         []string // comma-separated in env; multiple for redundancy
	// SettleDelay is the pause before reopening previews after recording
	// starts, so the appliance can rebuild its output tee.
	SettleDelay    time.Duration
	SignalTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings for take history.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AuthConfig holds the operator panel credential (bcrypt hash).
type AuthConfig struct {
	OperatorPasswordHash string
}

// AWSConfig holds AWS credentials and the archive bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ArchiveBucket   string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Recorder: RecorderConfig{
			BaseURL:       getEnv("RECORDER_BASE_URL", "http://localhost:8000"),
			StatusFeedURL: getEnv("RECORDER_STATUS_FEED_URL", "ws://localhost:8000/ws/status"),
			StartRetries:  getEnvInt("RECORDER_START_RETRIES", 4),
			RetryBackoff:  getEnvDuration("RECORDER_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Preview: PreviewConfig{
			WHEPURLTemplate: getEnv("PREVIEW_WHEP_URL_TEMPLATE", "http://localhost:8889/%s/whep"),
			ICEUrls:         splitTrim(getEnv("PREVIEW_ICE_URLS", "stun:stun.l.google.com:19302,stun:stun.cloudflare.com:3478"), ","),
			SettleDelay:     getEnvDuration("PREVIEW_SETTLE_DELAY", 3*time.Second),
			SignalTimeout:   getEnvDuration("PREVIEW_SIGNAL_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "r58"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Auth: AuthConfig{
			OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:   getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
