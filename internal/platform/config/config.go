package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	strutil "shareledger/pkg/platform/strings"
)

const devSecret = "dev-secret-key-change-in-production"

// Config is the full process configuration.
type Config struct {
	Server       Server
	Auth         Auth
	Audit        Audit
	RateLimit    RateLimit
	Postgres     PostgresConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Security     Security
	Users        Users
	Certificates Certificates
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Env             string
	TrustProxy      bool
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Auth configures token issuance and credential checks.
type Auth struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	MFASecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	MFATTL        time.Duration
	ResetTTL      time.Duration
	TOTPIssuer    string
	BcryptCost    int
	// LoginPerMinute is the coarse per-IP limit on the login endpoints.
	LoginPerMinute int
}

// Audit configures the publisher and the retention sweep.
type Audit struct {
	Buffer          int
	Workers         int
	WriteTimeout    time.Duration
	Retention       time.Duration
	RetainedHorizon time.Duration
	SweepInterval   time.Duration
	// BreakerFailures consecutive store errors open the write breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type RateLimit struct {
	Disabled      bool
	SweepInterval time.Duration
}

type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig is consumed by internal/platform/redis. An empty URL disables
// the redis-backed stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Security holds operator credentials.
type Security struct {
	// MetricsToken guards /metrics. Empty leaves the endpoint unmounted.
	MetricsToken string
}

type Users struct {
	TombstoneRetention time.Duration
	PurgeInterval      time.Duration
}

type Certificates struct {
	MaxSize int64
}

// IsProduction reports whether the server runs with production defaults.
func (s Server) IsProduction() bool { return s.Env == "production" }

// FromEnv builds a Config from environment variables so main stays lean. A
// .env file in the working directory is loaded first when present.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := Config{
		Server: Server{
			Addr:            getEnv("SHARELEDGER_ADDR", ":8080"),
			Env:             getEnv("SHARELEDGER_ENV", "development"),
			TrustProxy:      getBool("TRUST_PROXY", false),
			CORSOrigins:     getList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: Auth{
			Issuer:         getEnv("JWT_ISSUER", "shareledger"),
			AccessSecret:   getEnv("JWT_ACCESS_SECRET", devSecret),
			RefreshSecret:  getEnv("JWT_REFRESH_SECRET", devSecret+"-refresh"),
			MFASecret:      getEnv("JWT_MFA_SECRET", devSecret+"-mfa"),
			AccessTTL:      getDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:     getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			MFATTL:         getDuration("JWT_MFA_TTL", 5*time.Minute),
			ResetTTL:       getDuration("PASSWORD_RESET_TTL", time.Hour),
			TOTPIssuer:     getEnv("TOTP_ISSUER", "ShareLedger"),
			BcryptCost:     getInt("BCRYPT_COST", 12),
			LoginPerMinute: getInt("LOGIN_PER_MINUTE", 20),
		},
		Audit: Audit{
			Buffer:          getInt("AUDIT_BUFFER", 1024),
			Workers:         getInt("AUDIT_WORKERS", 2),
			WriteTimeout:    getDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
			Retention:       getDuration("AUDIT_RETENTION", 365*24*time.Hour),
			RetainedHorizon: getDuration("AUDIT_RETAINED_HORIZON", 0),
			SweepInterval:   getDuration("AUDIT_SWEEP_INTERVAL", 24*time.Hour),
			BreakerFailures: uint32(getInt("AUDIT_BREAKER_FAILURES", 5)),
			BreakerTimeout:  getDuration("AUDIT_BREAKER_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimit{
			Disabled:      getBool("RATE_LIMIT_DISABLED", false),
			SweepInterval: getDuration("RATE_LIMIT_SWEEP_INTERVAL", 10*time.Minute),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "shareledger.audit.security"),
		},
		Security: Security{
			MetricsToken: os.Getenv("METRICS_TOKEN"),
		},
		Users: Users{
			TombstoneRetention: getDuration("TOMBSTONE_RETENTION", 30*24*time.Hour),
			PurgeInterval:      getDuration("TOMBSTONE_PURGE_INTERVAL", time.Hour),
		},
		Certificates: Certificates{
			MaxSize: int64(getInt("CERTIFICATE_MAX_BYTES", 10<<20)),
		},
	}

	if strings.HasPrefix(cfg.Auth.AccessSecret, devSecret) {
		// Use a default for development - should be overridden in production
		slog.Warn("JWT secrets are using development defaults", "env", cfg.Server.Env)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	if out := strutil.SplitList(os.Getenv(key)); len(out) > 0 {
		return out
	}
	return fallback
}
