package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
)

// Default values for pipeline tuning when the corresponding environment
// variables are not set.
const (
	DefaultPageSize     = 100
	DefaultMaxPages     = 1000
	DefaultBatchSize    = 500
	DefaultFetchRetries = 3
)

// Config holds everything a pipeline run needs, sourced from the environment
// (optionally via a .env file).
type Config struct {
	APIURL string `validate:"required,url"`
	APIKey string `validate:"required"`

	StartDate string `validate:"required"`
	EndDate   string `validate:"required"`

	PageSize     int `validate:"gt=0"`
	MaxPages     int `validate:"gt=0"`
	BatchSize    int `validate:"gt=0"`
	FetchRetries int `validate:"gte=0"`

	DB DBConfig
}

// DBConfig holds the relational store connection parameters.
type DBConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	Name     string `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`
	SSLMode  string
}

// DSN builds a postgres connection string from the individual parameters.
func (d DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present, matching how the API credentials and
// database parameters are distributed to operators.
func Load() (*Config, error) {
	// Missing .env is fine; variables may come from the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:       os.Getenv("API_URL"),
		APIKey:       os.Getenv("API_KEY"),
		StartDate:    os.Getenv("ETL_START_DATE"),
		EndDate:      os.Getenv("ETL_END_DATE"),
		PageSize:     intEnv("ETL_PAGE_SIZE", DefaultPageSize),
		MaxPages:     intEnv("ETL_MAX_PAGES", DefaultMaxPages),
		BatchSize:    intEnv("ETL_BATCH_SIZE", DefaultBatchSize),
		FetchRetries: intEnv("ETL_FETCH_RETRIES", DefaultFetchRetries),
		DB: DBConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     os.Getenv("DB_NAME"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("Load: invalid configuration: %w", err)
	}
	if err := v.Struct(cfg.DB); err != nil {
		return nil, fmt.Errorf("Load: invalid database configuration: %w", err)
	}
	for name, val := range map[string]string{"ETL_START_DATE": cfg.StartDate, "ETL_END_DATE": cfg.EndDate} {
		if _, err := time.Parse("2006-01-02", val); err != nil {
			return nil, fmt.Errorf("Load: %s must be YYYY-MM-DD, got %q", name, val)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
