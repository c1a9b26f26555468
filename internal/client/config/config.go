// Package config loads the settings of the command line client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"vibely/internal/client/tokenstore"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds client settings read from VIBELY_* environment variables and an
// optional client.yml.
type Config struct {
	APIURL         string        `mapstructure:"API_URL"`
	TokenFile      string        `mapstructure:"TOKEN_FILE"`
	ImageHostURL   string        `mapstructure:"IMAGE_HOST_URL"`
	ImageHostKey   string        `mapstructure:"IMAGE_HOST_KEY"`
	Timeout        time.Duration `mapstructure:"TIMEOUT"`
	ReconnectDelay time.Duration `mapstructure:"RECONNECT_DELAY"`
	FeedPageSize   int           `mapstructure:"FEED_PAGE_SIZE"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
}

// Load reads configuration. dir, when non-empty, is searched for client.yml
// before the user config directory, and a .env file there is loaded into the
// environment without overriding variables already set.
func Load(dir string) (*Config, error) {
	if dir != "" {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}

	v := viper.New()
	v.SetEnvPrefix("VIBELY")
	v.AutomaticEnv()
	v.SetConfigName("client")
	v.SetConfigType("yml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	if ucd, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(ucd, "vibely"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read client config: %w", err)
		}
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if cfg.TokenFile == "" {
		path, err := tokenstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.TokenFile = path
	}
	if cfg.ImageHostURL == "" {
		cfg.ImageHostURL = cfg.APIURL + "/images/upload"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_URL", "http://localhost:8375/api")
	v.SetDefault("TOKEN_FILE", "")
	v.SetDefault("IMAGE_HOST_URL", "")
	v.SetDefault("IMAGE_HOST_KEY", "")
	v.SetDefault("TIMEOUT", "15s")
	v.SetDefault("RECONNECT_DELAY", "2s")
	v.SetDefault("FEED_PAGE_SIZE", 5)
	v.SetDefault("LOG_LEVEL", "warn")
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("VIBELY_API_URL must be an http(s) url, got %q", c.APIURL)
	}
	if c.Timeout <= 0 {
		return errors.New("VIBELY_TIMEOUT must be positive")
	}
	if c.FeedPageSize <= 0 || c.FeedPageSize > 50 {
		return errors.New("VIBELY_FEED_PAGE_SIZE must be between 1 and 50")
	}
	return nil
}
