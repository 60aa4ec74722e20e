package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	AppMode     string
	LogMode     string
	CORSOrigins []string

	// Azure Communication Services. An empty endpoint runs the in-memory
	// backend.
	ACSEndpoint    string
	ACSAccessToken string
	ACSTokenFile   string
	ACSAPIVersion  string
	ACSPageSize    int
	ACSHTTPTimeout time.Duration

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	NotifyChannel string
	SnapshotTTL   time.Duration

	PollInterval       time.Duration
	RefreshConcurrency int

	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		AppPort:     getEnv("APP_PORT", "8080"),
		AppMode:     getEnv("APP_MODE", "debug"),
		LogMode:     getEnv("LOG_MODE", "development"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS"),

		ACSEndpoint:    getEnv("ACS_ENDPOINT", ""),
		ACSAccessToken: getEnv("ACS_ACCESS_TOKEN", ""),
		ACSTokenFile:   getEnv("ACS_TOKEN_FILE", ""),
		ACSAPIVersion:  getEnv("ACS_API_VERSION", "2021-09-07"),
		ACSPageSize:    getEnvAsInt("ACS_PAGE_SIZE", 50),
		ACSHTTPTimeout: getEnvAsDuration("ACS_HTTP_TIMEOUT", 30*time.Second),

		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		NotifyChannel: getEnv("NOTIFY_CHANNEL", "channel:acs:chat"),
		SnapshotTTL:   getEnvAsDuration("SNAPSHOT_TTL", 10*time.Minute),

		PollInterval:       getEnvAsDuration("POLL_INTERVAL", 0),
		RefreshConcurrency: getEnvAsInt("REFRESH_CONCURRENCY", 4),

		S3Region:    getEnv("S3_REGION", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
	}
}

// LocalMode reports whether the in-memory backend stands in for ACS.
func (c *Config) LocalMode() bool {
	return strings.TrimSpace(c.ACSEndpoint) == ""
}

// ExportEnabled reports whether transcript export has a bucket to write to.
func (c *Config) ExportEnabled() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}

// Validate reports every setting that cannot work, joined.
func (c *Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.AppPort); err != nil {
		errs = append(errs, fmt.Errorf("APP_PORT %q is not a number", c.AppPort))
	}
	if !c.LocalMode() {
		u, err := url.Parse(c.ACSEndpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("ACS_ENDPOINT %q must be an absolute url", c.ACSEndpoint))
		}
		if c.ACSAccessToken == "" && c.ACSTokenFile == "" {
			errs = append(errs, errors.New("ACS_ACCESS_TOKEN or ACS_TOKEN_FILE is required with ACS_ENDPOINT"))
		}
	}
	if c.ACSPageSize <= 0 {
		errs = append(errs, fmt.Errorf("ACS_PAGE_SIZE must be positive, got %d", c.ACSPageSize))
	}
	if c.ACSHTTPTimeout <= 0 {
		errs = append(errs, errors.New("ACS_HTTP_TIMEOUT must be positive"))
	}
	if c.RefreshConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_CONCURRENCY must be positive, got %d", c.RefreshConcurrency))
	}
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must not be negative"))
	}
	if c.SnapshotTTL < 0 {
		errs = append(errs, errors.New("SNAPSHOT_TTL must not be negative"))
	}
	if (c.S3Region == "") != (c.S3Bucket == "") {
		errs = append(errs, errors.New("S3_REGION and S3_BUCKET must be set together"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
