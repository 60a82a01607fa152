package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
}

type AppConfig struct {
	Port          string
	Env           string
	StorageDriver string
	// RosterSeedFile fills the in-memory roster on start when the memory driver is used.
	RosterSeedFile string
	Postgres      PostgresConfig
	Redis         RedisConfig
	S3            S3Config

	ExportDir         string
	FilesPublicPrefix string
	ExternalURL       string
	ExportPrefix      string
	ExportTTL         time.Duration

	PaymentMaxRetries int
	GenerateLockTTL   time.Duration

	// APITokens maps a bearer token to the operator id it authenticates.
	APITokens map[string]int64
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func (c AppConfig) IsDev() bool {
	return c.Env == "dev"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatalf("invalid bool value %q: %v", s, err)
	}
	return b
}

// mustSeconds reads a whole number of seconds.
func mustSeconds(s string) time.Duration {
	return time.Duration(mustAtoi(s)) * time.Second
}

// ParseTokens reads "token:operatorID" pairs separated by commas.
func ParseTokens(raw string) (map[string]int64, error) {
	tokens := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, id, ok := strings.Cut(pair, ":")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return nil, fmt.Errorf("invalid token entry %q: expected token:operator_id", pair)
		}
		operatorID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || operatorID <= 0 {
			return nil, fmt.Errorf("invalid operator id in token entry %q", pair)
		}
		tokens[token] = operatorID
	}
	return tokens, nil
}

func Load() AppConfig {
	tokens, err := ParseTokens(getenv("API_TOKENS", ""))
	if err != nil {
		log.Fatalf("API_TOKENS: %v", err)
	}

	driver := getenv("STORAGE_DRIVER", DriverPostgres)
	if driver != DriverPostgres && driver != DriverMemory {
		log.Fatalf("unknown STORAGE_DRIVER %q", driver)
	}

	return AppConfig{
		Port:           getenv("APP_PORT", "8010"),
		Env:            getenv("APP_ENV", "prod"),
		StorageDriver:  driver,
		RosterSeedFile: getenv("ROSTER_SEED_FILE", ""),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "root"),
			Password: getenv("PG_PASSWORD", "hello-world"),
			DBName:   getenv("PG_DB", "school"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
			Migrate:  mustBool(getenv("PG_MIGRATE", "true")),
		},
		Redis: RedisConfig{
			Enabled:     mustBool(getenv("REDIS_ENABLED", "false")),
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "school_fees_"),
		},
		S3: S3Config{
			Enabled:         mustBool(getenv("S3_ENABLED", "false")),
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "exports"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", ""),
		},
		ExportDir:         getenv("EXPORT_DIR", "./exports"),
		FilesPublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
		ExternalURL:       getenv("EXTERNAL_URL", ""),
		ExportPrefix:      getenv("EXPORT_CACHE_PREFIX", "fee_exports"),
		ExportTTL:         mustSeconds(getenv("EXPORT_TTL", "3600")),

		PaymentMaxRetries: mustAtoi(getenv("PAYMENT_MAX_RETRIES", "3")),
		GenerateLockTTL:   mustSeconds(getenv("GENERATE_LOCK_TTL", "30")),

		APITokens: tokens,
	}
}
