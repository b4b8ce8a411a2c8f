package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/storage"
)

// Output formats of the consolidated dataset.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Config holds all application configuration
type Config struct {
	Run           RunConfig
	Storage       storage.Config
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Schedule      ScheduleConfig
}

// RunConfig selects the document and how it is synthesized.
type RunConfig struct {
	Source        string
	Family        string
	FamilyFile    string
	Category      string // category of a canonical CSV source
	Year          int
	Seed          int64
	Workers       int
	Tolerance     float64
	OutputFormats []string
	FetchTimeout  time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type ObservabilityConfig struct {
	PushgatewayURL string
	MetricsJob     string
	LogLevel       string
}

type ScheduleConfig struct {
	Cron    string
	Timeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Run: RunConfig{
			Source:        getEnv("SOURCE", ""),
			Family:        getEnv("FAMILY", "memoria-2020"),
			FamilyFile:    getEnv("FAMILY_FILE", ""),
			Category:      getEnv("SOURCE_CATEGORY", ""),
			Year:          getEnvAsInt("YEAR", 0),
			Seed:          getEnvAsInt64("SEED", 0),
			Workers:       getEnvAsInt("WORKERS", 0),
			Tolerance:     getEnvAsFloat("TOLERANCE", 0.01),
			OutputFormats: getEnvAsList("OUTPUT_FORMATS", []string{FormatCSV}),
			FetchTimeout:  getEnvAsDuration("FETCH_TIMEOUT", 2*time.Minute),
		},
		Storage: storage.Config{
			Type:              storage.StorageType(getEnv("STORAGE_TYPE", string(storage.StorageTypeLocal))),
			LocalPath:         getEnv("STORAGE_LOCAL_PATH", "./artifacts"),
			S3Bucket:          getEnv("STORAGE_S3_BUCKET", ""),
			S3Prefix:          getEnv("STORAGE_S3_PREFIX", ""),
			S3Region:          getEnv("STORAGE_S3_REGION", ""),
			S3AccessKeyID:     getEnv("STORAGE_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("STORAGE_S3_SECRET_ACCESS_KEY", ""),
			S3Endpoint:        getEnv("STORAGE_S3_ENDPOINT", ""),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("POSTGRES_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "becas"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Observability: ObservabilityConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			MetricsJob:     getEnv("METRICS_JOB", "becas_synth"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
		Schedule: ScheduleConfig{
			Cron:    getEnv("SCHEDULE_CRON", "0 3 * * *"),
			Timeout: getEnvAsDuration("SCHEDULE_TIMEOUT", 30*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late in a run.
func (c *Config) Validate() error {
	var errs []error
	for _, f := range c.Run.OutputFormats {
		if f != FormatCSV && f != FormatXLSX {
			errs = append(errs, fmt.Errorf("unknown output format %q", f))
		}
	}
	if c.Run.Tolerance < 0 {
		errs = append(errs, errors.New("TOLERANCE must not be negative"))
	}
	if c.Run.Workers < 0 {
		errs = append(errs, errors.New("WORKERS must not be negative"))
	}
	switch c.Storage.Type {
	case storage.StorageTypeLocal, storage.StorageTypeS3:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type))
	}
	return errors.Join(errs...)
}

// WantsFormat reports whether the dataset should be emitted in format f.
func (c *RunConfig) WantsFormat(f string) bool {
	for _, o := range c.OutputFormats {
		if o == f {
			return true
		}
	}
	return false
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
