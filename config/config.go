package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	// Listings configures the upstream scraping API
	Listings struct {
		BaseURL string        `env:"LISTINGS_API_BASE_URL" envDefault:"https://api.hasdata.com"`
		Path    string        `env:"LISTINGS_API_PATH" envDefault:"/scrape/zillow/listing"`
		APIKey  string        `env:"LISTINGS_API_KEY"`
		Timeout time.Duration `env:"LISTINGS_API_TIMEOUT" envDefault:"15s"`

		// Minimum spacing between two upstream calls
		MinRequestInterval time.Duration `env:"LISTINGS_MIN_REQUEST_INTERVAL" envDefault:"1s"`

		// Calls allowed per calendar month
		MonthlyQuota int `env:"LISTINGS_MONTHLY_QUOTA" envDefault:"1000"`

		// Maximum number of listings kept from one response
		FetchLimit int `env:"LISTINGS_FETCH_LIMIT" envDefault:"50"`
	}

	// Cache configures where normalized properties are persisted
	Cache struct {
		Backend       string        `env:"CACHE_BACKEND" envDefault:"sqlite"`
		DatabasePath  string        `env:"CACHE_DB_PATH" envDefault:"timbr.db"`
		RedisAddr     string        `env:"CACHE_REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPassword string        `env:"CACHE_REDIS_PASSWORD"`
		RedisDB       int           `env:"CACHE_REDIS_DB" envDefault:"0"`
		MaxAge        time.Duration `env:"CACHE_MAX_AGE" envDefault:"24h"`
		RetentionCap  int           `env:"CACHE_RETENTION_CAP" envDefault:"100"`
	}

	// BatchProcessing configures the cache write-through
	BatchProcessing struct {
		// Maximum number of retries for a failed batch write
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"2"`

		// Delay between retries
		RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"500ms"`
	}

	Geocoding struct {
		BaseURL           string  `env:"GEOCODER_BASE_URL" envDefault:"https://nominatim.openstreetmap.org"`
		CacheDir          string  `env:"GEOCODER_CACHE_DIR"`
		UserAgent         string  `env:"GEOCODER_USER_AGENT" envDefault:"timbr/1.0"`
		ReuseRadiusMeters float64 `env:"GEOCODER_REUSE_RADIUS_METERS" envDefault:"1000"`
	}

	Preferences struct {
		Path string `env:"PREFERENCES_PATH" envDefault:"preferences.json"`
	}

	Log struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.Geocoding.CacheDir == "" {
		cfg.Geocoding.CacheDir = filepath.Join(os.TempDir(), "timbr", "geocode_cache")
	}
	return cfg, nil
}
