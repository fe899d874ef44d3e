package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	scraperrors "mkettler/groceryworker/pkg/errors"
)

// App represents process-level configuration loaded from the environment
type App struct {
	// Data layout
	DataDir string
	LogDir  string

	// Optional shared services
	MemcacheAddr string
	RedisAddr    string
	RedisDB      int
	RedisStream  string

	// Browser automation service
	BrowserServiceAddr string

	// Environment
	Environment string
}

// LoadApp loads the application configuration from environment variables
// with defaults
func LoadApp() App {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return App{
		DataDir:            getEnv("GROCERY_DATA_DIR", "data"),
		LogDir:             getEnv("GROCERY_LOG_DIR", "logs"),
		MemcacheAddr:       getEnv("MEMCACHE_ADDR", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisDB:            redisDB,
		RedisStream:        getEnv("REDIS_STREAM", "stream:products"),
		BrowserServiceAddr: getEnv("BROWSER_SERVICE_ADDR", "http://localhost:3000"),
		Environment:        getEnv("GROCERY_ENVIRONMENT", "development"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// RateLimitConfig bounds per-request pacing
type RateLimitConfig struct {
	MinDelaySeconds   float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds   float64 `mapstructure:"max_delay_seconds"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// ProxyConfig controls proxy selection and rotation
type ProxyConfig struct {
	Enabled                 bool     `mapstructure:"enabled"`
	Source                  string   `mapstructure:"source"` // env | file | list
	EnvVar                  string   `mapstructure:"env_var"`
	File                    string   `mapstructure:"file"`
	List                    []string `mapstructure:"list"`
	RotationStrategy        string   `mapstructure:"rotation_strategy"` // round_robin | random
	MaxFailuresBeforeRotate int      `mapstructure:"max_failures_before_rotate"`
}

// TLSConfig controls TLS fingerprint impersonation
type TLSConfig struct {
	ClientIdentifier     string   `mapstructure:"client_identifier"`
	FallbackIdentifiers  []string `mapstructure:"fallback_identifiers"`
	RandomizeFingerprint bool     `mapstructure:"randomize_fingerprint"`
}

// Store is one physical storefront for regional pricing
type Store struct {
	ID       string `mapstructure:"id" json:"id"`
	Name     string `mapstructure:"name" json:"name"`
	City     string `mapstructure:"city" json:"city"`
	Province string `mapstructure:"province" json:"province"`
}

// StoreRotationConfig controls multi-store fan-out
type StoreRotationConfig struct {
	Stores []Store `mapstructure:"stores"`
	Mode   string  `mapstructure:"mode"` // all | sample | single
}

// ErrorHandlingConfig controls retry/rotation policy
type ErrorHandlingConfig struct {
	MaxRetries             int       `mapstructure:"max_retries"`
	RetryOnStatusCodes     []int     `mapstructure:"retry_on_status_codes"`
	RotateProxyOn403       bool      `mapstructure:"rotate_proxy_on_403"`
	RotateFingerprintOn403 bool      `mapstructure:"rotate_fingerprint_on_403"`
	BackoffBase            float64   `mapstructure:"backoff_base"`
	MaxBackoffSeconds      float64   `mapstructure:"max_backoff_seconds"`
	JitterRange            []float64 `mapstructure:"jitter_range"`
}

// SearchAPIConfig holds hosted search index credentials and context
type SearchAPIConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AppID       string `mapstructure:"app_id"`
	APIKey      string `mapstructure:"api_key"`
	IndexName   string `mapstructure:"index_name"`
	BaseURL     string `mapstructure:"base_url"`
	HitsPerPage int    `mapstructure:"hits_per_page"`
}

// BrowserConfig controls the browser-service fetch path
type BrowserConfig struct {
	Warmup           bool `mapstructure:"warmup"`
	SearchEngineHop  bool `mapstructure:"search_engine_hop"`
	NavTimeoutMillis int  `mapstructure:"nav_timeout_millis"`
}

// Site represents one site's static configuration, loaded once per run
type Site struct {
	SiteSlug  string            `mapstructure:"site_slug"`
	StoreName string            `mapstructure:"store_name"`
	BaseURL   string            `mapstructure:"base_url"`
	SearchURL string            `mapstructure:"search_url"` // pagination pattern with {query}/{page}
	Headers   map[string]string `mapstructure:"headers"`

	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	MaxBackups    int                 `mapstructure:"max_backups"`
	CompressBack  bool                `mapstructure:"compress_backups"`
	Proxy         ProxyConfig         `mapstructure:"proxy"`
	TLS           TLSConfig           `mapstructure:"tls"`
	StoreRotation StoreRotationConfig `mapstructure:"store_rotation"`
	ErrorHandling ErrorHandlingConfig `mapstructure:"error_handling"`
	SearchAPI     SearchAPIConfig     `mapstructure:"search_api"`
	Browser       BrowserConfig       `mapstructure:"browser"`
}

// LoadSite loads configs/<slug>.json, applying GROCERY_-prefixed environment
// overrides, and fills defaults for anything the file omits
func LoadSite(configDir, slug string) (*Site, error) {
	v := viper.New()
	v.SetConfigName(slug)
	v.SetConfigType("json")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("GROCERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setSiteDefaults(v, slug)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, scraperrors.NewConfiguration(
				fmt.Sprintf("failed to read config for site %q", slug), err)
		}
		// Missing file is acceptable only for sites with built-in profiles;
		// Validate catches the ones that still lack required fields.
	}

	var site Site
	if err := v.Unmarshal(&site); err != nil {
		return nil, scraperrors.NewConfiguration(
			fmt.Sprintf("failed to parse config for site %q", slug), err)
	}

	if err := site.Validate(); err != nil {
		return nil, err
	}
	return &site, nil
}

func setSiteDefaults(v *viper.Viper, slug string) {
	v.SetDefault("site_slug", slug)
	v.SetDefault("rate_limit.min_delay_seconds", 2.0)
	v.SetDefault("rate_limit.max_delay_seconds", 5.0)
	v.SetDefault("rate_limit.requests_per_minute", 15)
	v.SetDefault("max_backups", 5)
	v.SetDefault("proxy.rotation_strategy", "round_robin")
	v.SetDefault("proxy.max_failures_before_rotate", 3)
	v.SetDefault("tls.client_identifier", "chrome_120")
	v.SetDefault("store_rotation.mode", "all")
	v.SetDefault("error_handling.max_retries", 3)
	v.SetDefault("error_handling.retry_on_status_codes", []int{429, 500, 502, 503, 504})
	v.SetDefault("error_handling.rotate_proxy_on_403", true)
	v.SetDefault("error_handling.rotate_fingerprint_on_403", true)
	v.SetDefault("error_handling.backoff_base", 2.0)
	v.SetDefault("error_handling.max_backoff_seconds", 300.0)
	v.SetDefault("search_api.hits_per_page", 48)
	v.SetDefault("browser.warmup", true)
	v.SetDefault("browser.nav_timeout_millis", 45000)
}

// Validate checks that the site configuration is usable
func (s *Site) Validate() error {
	if s.SiteSlug == "" {
		return scraperrors.NewConfiguration("site_slug must not be empty", nil)
	}
	if s.StoreName == "" {
		return scraperrors.NewConfiguration("store_name must not be empty", nil)
	}
	if s.BaseURL == "" {
		return scraperrors.NewConfiguration("base_url must not be empty", nil)
	}
	if s.RateLimit.MinDelaySeconds < 0 || s.RateLimit.MaxDelaySeconds < s.RateLimit.MinDelaySeconds {
		return scraperrors.NewConfiguration("rate_limit delay bounds are invalid", nil)
	}
	if s.RateLimit.RequestsPerMinute <= 0 {
		return scraperrors.NewConfiguration("rate_limit.requests_per_minute must be positive", nil)
	}
	switch s.StoreRotation.Mode {
	case "", "all", "sample", "single":
	default:
		return scraperrors.NewConfiguration(
			fmt.Sprintf("unknown store rotation mode %q", s.StoreRotation.Mode), nil)
	}
	switch s.Proxy.RotationStrategy {
	case "", "round_robin", "random":
	default:
		return scraperrors.NewConfiguration(
			fmt.Sprintf("unknown proxy rotation strategy %q", s.Proxy.RotationStrategy), nil)
	}
	return nil
}

// MinDelay returns the configured minimum inter-request delay
func (r RateLimitConfig) MinDelay() time.Duration {
	return time.Duration(r.MinDelaySeconds * float64(time.Second))
}

// MaxDelay returns the configured maximum inter-request delay
func (r RateLimitConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySeconds * float64(time.Second))
}
