// Package config loads the API server's settings from config files, an
// optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds the server settings. Keys are the upper-case environment
// variable names, which are also the keys in config.yml.
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	Port           string `mapstructure:"PORT"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	DBDriver     string `mapstructure:"DB_DRIVER"`
	DBSQLitePath string `mapstructure:"DB_SQLITE_PATH"`
	DBHost       string `mapstructure:"DB_HOST"`
	DBPort       string `mapstructure:"DB_PORT"`
	DBUser       string `mapstructure:"DB_USER"`
	DBPassword   string `mapstructure:"DB_PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	DBSSLMode    string `mapstructure:"DB_SSLMODE"`

	// Read replica; empty DBReadHost means reads go to the primary.
	DBReadHost     string `mapstructure:"DB_READ_HOST"`
	DBReadPort     string `mapstructure:"DB_READ_PORT"`
	DBReadUser     string `mapstructure:"DB_READ_USER"`
	DBReadPassword string `mapstructure:"DB_READ_PASSWORD"`

	RedisURL string `mapstructure:"REDIS_URL"`

	PublicBaseURL  string `mapstructure:"PUBLIC_BASE_URL"`
	ImageUploadDir string `mapstructure:"IMAGE_UPLOAD_DIR"`
	ImageHostKey   string `mapstructure:"IMAGE_HOST_KEY"`
	ImageMaxMB     int    `mapstructure:"IMAGE_MAX_UPLOAD_MB"`

	FeedPageSize      int `mapstructure:"FEED_PAGE_SIZE"`
	ChatSnapshotLimit int `mapstructure:"CHAT_SNAPSHOT_LIMIT"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

var defaults = map[string]any{
	"APP_ENV":         "development",
	"PORT":            "8375",
	"JWT_SECRET":      defaultJWTSecret,
	"ALLOWED_ORIGINS": "http://localhost:8081,http://localhost:19006",
	"FEATURE_FLAGS":   "feed_cache=on",
	"LOG_LEVEL":       "info",

	"DB_DRIVER":      "postgres",
	"DB_SQLITE_PATH": "vibely.db",
	"DB_HOST":        "localhost",
	"DB_PORT":        "5432",
	"DB_USER":        "user",
	"DB_PASSWORD":    "password",
	"DB_NAME":        "vibely",
	"DB_SSLMODE":     "disable",

	"DB_READ_HOST":     "",
	"DB_READ_PORT":     "5432",
	"DB_READ_USER":     "user",
	"DB_READ_PASSWORD": "password",

	"REDIS_URL": "localhost:6379",

	"PUBLIC_BASE_URL":     "http://localhost:8375",
	"IMAGE_UPLOAD_DIR":    "uploads",
	"IMAGE_HOST_KEY":      "",
	"IMAGE_MAX_UPLOAD_MB": 10,

	"FEED_PAGE_SIZE":      5,
	"CHAT_SNAPSHOT_LIMIT": 200,

	"TRACING_ENABLED":      false,
	"TRACING_EXPORTER":     "stdout",
	"OTLP_ENDPOINT":        "localhost:4318",
	"TRACING_SAMPLE_RATIO": 1.0,
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// LoadConfig reads config.yml from the working directory or its parent, then
// config.<APP_ENV>.yml on top of it. The profile file is required for every
// environment except development and test. Environment variables override
// both files.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AutomaticEnv()
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}

	_ = viper.ReadInConfig()

	if env := viper.GetString("APP_ENV"); env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("profile config config.%s.yml: %w", env, err)
		}
		slog.Info("loaded profile configuration", "env", env)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem with the settings at once. Production adds
// stricter rules on secrets and the database.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Port != "", "PORT is required")
	check(c.JWTSecret != "", "JWT_SECRET is required")
	check(c.DBDriver == "postgres" || c.DBDriver == "sqlite",
		fmt.Sprintf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	check(c.FeedPageSize >= 1 && c.FeedPageSize <= 50, "FEED_PAGE_SIZE must be between 1 and 50")
	check(c.ChatSnapshotLimit > 0, "CHAT_SNAPSHOT_LIMIT must be positive")

	if c.IsProduction() {
		check(c.JWTSecret != defaultJWTSecret, "JWT_SECRET must be changed from the default value in production")
		check(len(c.JWTSecret) >= 32, "JWT_SECRET must be at least 32 characters in production")
		check(c.DBDriver != "sqlite", "DB_DRIVER=sqlite is not supported in production")
		check(c.DBPassword != "" && c.DBPassword != "password", "a strong DB_PASSWORD is required in production")

		if c.DBSSLMode == "" || c.DBSSLMode == "disable" {
			slog.Warn("DB_SSLMODE is disabled in production")
		}
		if c.AllowedOrigins == "*" {
			slog.Warn("ALLOWED_ORIGINS is '*' in production")
		}
	} else if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		slog.Warn("JWT_SECRET is shorter than 32 characters")
	}

	return errors.Join(errs...)
}
