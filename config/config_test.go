package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scraperrors "mkettler/groceryworker/pkg/errors"
)

func writeSiteFile(t *testing.T, dir, slug, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, slug+".json"), []byte(body), 0o644))
}

func TestLoadApp(t *testing.T) {
	// Defaults
	app := LoadApp()
	assert.Equal(t, "data", app.DataDir)
	assert.Equal(t, "logs", app.LogDir)
	assert.Equal(t, "", app.MemcacheAddr)
	assert.Equal(t, "", app.RedisAddr)
	assert.Equal(t, "stream:products", app.RedisStream)
	assert.Equal(t, "http://localhost:3000", app.BrowserServiceAddr)
	assert.Equal(t, "development", app.Environment)

	// Environment overrides
	t.Setenv("GROCERY_DATA_DIR", "/var/lib/grocery")
	t.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("BROWSER_SERVICE_ADDR", "http://browser:3000")

	app = LoadApp()
	assert.Equal(t, "/var/lib/grocery", app.DataDir)
	assert.Equal(t, "memcache.example.com:11211", app.MemcacheAddr)
	assert.Equal(t, "redis.example.com:6379", app.RedisAddr)
	assert.Equal(t, 2, app.RedisDB)
	assert.Equal(t, "http://browser:3000", app.BrowserServiceAddr)
}

func TestLoadSiteFromFile(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "superstore", `{
		"site_slug": "superstore",
		"store_name": "Real Canadian Superstore",
		"base_url": "https://www.realcanadiansuperstore.ca",
		"rate_limit": {
			"min_delay_seconds": 1.5,
			"max_delay_seconds": 4,
			"requests_per_minute": 20
		},
		"tls": {
			"client_identifier": "chrome_116",
			"fallback_identifiers": ["firefox_121"]
		},
		"error_handling": {
			"max_retries": 5
		}
	}`)

	site, err := LoadSite(dir, "superstore")
	require.NoError(t, err)

	assert.Equal(t, "superstore", site.SiteSlug)
	assert.Equal(t, "Real Canadian Superstore", site.StoreName)
	assert.Equal(t, "https://www.realcanadiansuperstore.ca", site.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, site.RateLimit.MinDelay())
	assert.Equal(t, 4*time.Second, site.RateLimit.MaxDelay())
	assert.Equal(t, 20, site.RateLimit.RequestsPerMinute)
	assert.Equal(t, "chrome_116", site.TLS.ClientIdentifier)
	assert.Equal(t, []string{"firefox_121"}, site.TLS.FallbackIdentifiers)
	assert.Equal(t, 5, site.ErrorHandling.MaxRetries)

	// Defaults fill everything the file omitted
	assert.Equal(t, 5, site.MaxBackups)
	assert.Equal(t, "round_robin", site.Proxy.RotationStrategy)
	assert.Equal(t, "all", site.StoreRotation.Mode)
	assert.Equal(t, []int{429, 500, 502, 503, 504}, site.ErrorHandling.RetryOnStatusCodes)
	assert.Equal(t, 48, site.SearchAPI.HitsPerPage)
	assert.True(t, site.Browser.Warmup)
	assert.Equal(t, 45000, site.Browser.NavTimeoutMillis)
}

func TestLoadSiteDefaultsWithoutFile(t *testing.T) {
	// No config file: slug becomes site_slug, but required fields like
	// store_name stay empty, so validation rejects the site.
	_, err := LoadSite(t.TempDir(), "nofile")
	require.Error(t, err)

	var serr *scraperrors.ScrapeError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, scraperrors.ErrorTypeConfiguration, serr.Type)
}

func TestLoadSiteEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "sobeys", `{
		"site_slug": "sobeys",
		"store_name": "Sobeys",
		"base_url": "https://www.sobeys.com"
	}`)

	t.Setenv("GROCERY_STORE_NAME", "Sobeys West")

	site, err := LoadSite(dir, "sobeys")
	require.NoError(t, err)
	assert.Equal(t, "Sobeys West", site.StoreName)
}

func TestLoadSiteMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "broken", `{"site_slug": "broken",`)

	_, err := LoadSite(dir, "broken")
	require.Error(t, err)

	var serr *scraperrors.ScrapeError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, scraperrors.ErrorTypeConfiguration, serr.Type)
}

func TestSiteValidate(t *testing.T) {
	valid := func() Site {
		return Site{
			SiteSlug:  "safeway",
			StoreName: "Safeway",
			BaseURL:   "https://www.safeway.ca",
			RateLimit: RateLimitConfig{
				MinDelaySeconds:   1,
				MaxDelaySeconds:   3,
				RequestsPerMinute: 10,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Site)
		wantErr bool
	}{
		{"valid", func(s *Site) {}, false},
		{"missing slug", func(s *Site) { s.SiteSlug = "" }, true},
		{"missing store name", func(s *Site) { s.StoreName = "" }, true},
		{"missing base url", func(s *Site) { s.BaseURL = "" }, true},
		{"max delay below min", func(s *Site) { s.RateLimit.MaxDelaySeconds = 0.5 }, true},
		{"zero rpm", func(s *Site) { s.RateLimit.RequestsPerMinute = 0 }, true},
		{"bad rotation mode", func(s *Site) { s.StoreRotation.Mode = "roulette" }, true},
		{"bad proxy strategy", func(s *Site) { s.Proxy.RotationStrategy = "chaotic" }, true},
		{"single rotation mode ok", func(s *Site) { s.StoreRotation.Mode = "single" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := valid()
			tt.mutate(&site)
			err := site.Validate()
			if tt.wantErr {
				var serr *scraperrors.ScrapeError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, scraperrors.ErrorTypeConfiguration, serr.Type)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
