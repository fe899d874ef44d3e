package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html/charset"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/ratelimit"
	"mkettler/groceryworker/internal/rotation"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
	"mkettler/groceryworker/services/cache"
)

const productCacheSize = 512

// HTTPFetcher retrieves pages over plain HTTP through the fingerprint
// client, applying the rate limiter before every request and the retry
// policy around transient failures.
type HTTPFetcher struct {
	site    string
	client  *rotation.FingerprintClient
	proxies *rotation.ProxyManager
	limiter *ratelimit.Limiter
	guard   *cache.BlockGuard

	blockKey  string
	blockTime time.Duration
	headers   map[string]string

	retryCfg        ratelimit.RetryConfig
	rotateProxy403  bool
	rotateFinger403 bool
	retryStatuses   map[int]bool

	// Product-detail pages already fetched this run
	recent *lru.Cache[string, []byte]

	log *logger.Logger
}

// NewHTTPFetcher wires a fetcher from the site configuration
func NewHTTPFetcher(
	site *config.Site,
	client *rotation.FingerprintClient,
	proxies *rotation.ProxyManager,
	limiter *ratelimit.Limiter,
	guard *cache.BlockGuard,
) *HTTPFetcher {
	retryStatuses := make(map[int]bool, len(site.ErrorHandling.RetryOnStatusCodes))
	for _, code := range site.ErrorHandling.RetryOnStatusCodes {
		retryStatuses[code] = true
	}

	recent, _ := lru.New[string, []byte](productCacheSize)

	f := &HTTPFetcher{
		site:            site.SiteSlug,
		client:          client,
		proxies:         proxies,
		limiter:         limiter,
		guard:           guard,
		blockKey:        site.SiteSlug + "_rate_limited",
		blockTime:       60 * time.Second,
		headers:         site.Headers,
		rotateProxy403:  site.ErrorHandling.RotateProxyOn403,
		rotateFinger403: site.ErrorHandling.RotateFingerprintOn403,
		retryStatuses:   retryStatuses,
		recent:          recent,
		log:             logger.ForFetcher(site.SiteSlug),
	}
	f.retryCfg = ratelimit.RetryConfig{
		MaxAttempts: site.ErrorHandling.MaxRetries,
		BackoffBase: site.ErrorHandling.BackoffBase,
		MaxBackoff:  time.Duration(site.ErrorHandling.MaxBackoffSeconds * float64(time.Second)),
		ShouldRetry: f.shouldRetry,
	}
	return f
}

// shouldRetry retries transient network failures always, and bot-detection
// failures only when a rotation policy gives the next attempt a new identity
func (f *HTTPFetcher) shouldRetry(err error) bool {
	var serr *scraperrors.ScrapeError
	if !errors.As(err, &serr) {
		return false
	}
	if serr.IsRetryable() {
		return true
	}
	if serr.IsBotDetection() {
		return f.rotateProxy403 || f.rotateFinger403
	}
	return false
}

// Fetch retrieves one URL as UTF-8 bytes
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.guard.Blocked(f.blockKey) {
		return nil, scraperrors.NewRateLimit(f.site, f.blockTime)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return ratelimit.RetryVal(ctx, f.retryCfg, "fetch "+url, func() ([]byte, error) {
		return f.fetchOnce(url)
	})
}

// FetchProduct retrieves a product-detail URL, answering from the per-run
// LRU when the same URL was already fetched
func (f *HTTPFetcher) FetchProduct(ctx context.Context, url string) ([]byte, error) {
	if body, ok := f.recent.Get(url); ok {
		f.log.Debug().Str("url", url).Msg("Product page served from run cache")
		return body, nil
	}

	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	f.recent.Add(url, body)
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, scraperrors.NewNetwork(f.site, "failed to create request", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if f.proxies != nil {
			f.proxies.ReportFailure()
		}
		return nil, scraperrors.NewNetwork(f.site, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 430:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), f.blockTime)
		if err := f.guard.Block(f.blockKey, retryAfter); err != nil {
			f.log.Debug().Err(err).Msg("Failed to set rate-limit block")
		}
		return nil, scraperrors.NewRateLimit(f.site, retryAfter)

	case resp.StatusCode == http.StatusForbidden:
		f.escalate403()
		return nil, scraperrors.NewBotDetection(f.site,
			fmt.Sprintf("403 response from %s", url))

	case resp.StatusCode != http.StatusOK:
		msg := fmt.Sprintf("unexpected status code %d for %s", resp.StatusCode, url)
		if f.retryStatuses[resp.StatusCode] {
			return nil, scraperrors.NewNetwork(f.site, msg, nil)
		}
		return nil, scraperrors.NewParsing(f.site, msg, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, scraperrors.NewNetwork(f.site, "failed to read response body", err)
	}

	if f.proxies != nil {
		f.proxies.ReportSuccess()
	}
	return toUTF8(body, resp.Header.Get("Content-Type"))
}

// escalate403 rotates network identity per the site's 403 policy before the
// retry attempt
func (f *HTTPFetcher) escalate403() {
	if f.rotateFinger403 {
		f.client.RotateFingerprint()
	}
	if f.rotateProxy403 && f.proxies != nil {
		f.proxies.Rotate()
	}
}

// parseRetryAfter reads a Retry-After seconds value, falling back to the
// default block time
func parseRetryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// toUTF8 converts a response body to UTF-8 based on the Content-Type header
// and body content
func toUTF8(body []byte, contentType string) ([]byte, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || name == "UTF-8" {
		return body, nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(body))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to convert body to UTF-8: %w", err)
	}
	return buf.Bytes(), nil
}
