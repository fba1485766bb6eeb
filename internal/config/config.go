package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	MyChoize MyChoizeConfig
	Vendor   VendorConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Warmer   WarmerConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type MyChoizeConfig struct {
	// FunctionsURL is the base URL of the partner proxy functions.
	FunctionsURL  string
	ImageBaseURL  string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	RatePerSec    float64
}

type VendorConfig struct {
	FailurePolicy     string
	DefaultMultiplier float64
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CacheConfig struct {
	TTL         time.Duration
	StaleAfter  time.Duration
	NegativeTTL time.Duration
}

type WarmerConfig struct {
	Cities    []string
	Interval  time.Duration
	Lead      time.Duration
	TripHours int
	RunOnce   bool
}

var ErrMissingFunctionsURL = errors.New("config: FUNCTIONS_API_URL is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MYCHOIZE_TIMEOUT", "15s")
	v.SetDefault("MYCHOIZE_RETRY_ATTEMPTS", 5)
	v.SetDefault("MYCHOIZE_RETRY_DELAY", "500ms")
	v.SetDefault("MYCHOIZE_RATE_PER_SEC", 0)
	v.SetDefault("MYCHOIZE_IMAGE_BASE_URL", "")
	v.SetDefault("VENDOR_FAILURE_POLICY", "fail-open")
	v.SetDefault("VENDOR_DEFAULT_MULTIPLIER", 1.0)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CACHE_STALE_AFTER", "5m")
	v.SetDefault("CACHE_NEGATIVE_TTL", "1m")
	v.SetDefault("WARMER_CITIES", "bangalore,delhi,mumbai,hyderabad")
	v.SetDefault("WARMER_INTERVAL", "30m")
	v.SetDefault("WARMER_LEAD", "24h")
	v.SetDefault("WARMER_TRIP_HOURS", 24)
	v.SetDefault("WARMER_RUN_ONCE", false)
}

// Load reads configuration from the environment, and from a .env file in
// the working directory when one exists.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("PORT"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		MyChoize: MyChoizeConfig{
			FunctionsURL:  strings.TrimRight(v.GetString("FUNCTIONS_API_URL"), "/"),
			ImageBaseURL:  v.GetString("MYCHOIZE_IMAGE_BASE_URL"),
			Timeout:       v.GetDuration("MYCHOIZE_TIMEOUT"),
			RetryAttempts: v.GetInt("MYCHOIZE_RETRY_ATTEMPTS"),
			RetryDelay:    v.GetDuration("MYCHOIZE_RETRY_DELAY"),
			RatePerSec:    v.GetFloat64("MYCHOIZE_RATE_PER_SEC"),
		},
		Vendor: VendorConfig{
			FailurePolicy:     v.GetString("VENDOR_FAILURE_POLICY"),
			DefaultMultiplier: v.GetFloat64("VENDOR_DEFAULT_MULTIPLIER"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("PG_DSN"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Cache: CacheConfig{
			TTL:         v.GetDuration("CACHE_TTL"),
			StaleAfter:  v.GetDuration("CACHE_STALE_AFTER"),
			NegativeTTL: v.GetDuration("CACHE_NEGATIVE_TTL"),
		},
		Warmer: WarmerConfig{
			Cities:    splitList(v.GetString("WARMER_CITIES")),
			Interval:  v.GetDuration("WARMER_INTERVAL"),
			Lead:      v.GetDuration("WARMER_LEAD"),
			TripHours: v.GetInt("WARMER_TRIP_HOURS"),
			RunOnce:   v.GetBool("WARMER_RUN_ONCE"),
		},
	}

	if cfg.MyChoize.FunctionsURL == "" {
		return nil, ErrMissingFunctionsURL
	}
	if cfg.MyChoize.RetryAttempts < 1 {
		cfg.MyChoize.RetryAttempts = 1
	}
	if cfg.Vendor.DefaultMultiplier <= 0 {
		cfg.Vendor.DefaultMultiplier = 1
	}
	return cfg, nil
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file")
}
