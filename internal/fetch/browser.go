package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/ratelimit"
	"mkettler/groceryworker/internal/rotation"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
)

// StealthProfile is the believable browser fingerprint applied to every
// browser-service navigation. Configure writes it into a navigation payload,
// keeping the orchestration logic independent of the automation engine.
type StealthProfile struct {
	ViewportWidth  int
	ViewportHeight int
	Timezone       string
	Locale         string
	Languages      []string
	UserAgent      string
	Headless       bool
}

// DefaultStealthProfile returns the profile used when a site does not
// override it
func DefaultStealthProfile(userAgent string, headless bool) StealthProfile {
	return StealthProfile{
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Timezone:       "America/Edmonton",
		Locale:         "en-CA",
		Languages:      []string{"en-CA", "en-US", "en"},
		UserAgent:      userAgent,
		Headless:       headless,
	}
}

// Configure writes the profile into a browser-service payload
func (p StealthProfile) Configure(payload map[string]interface{}) {
	payload["viewport"] = map[string]interface{}{
		"width":  p.ViewportWidth,
		"height": p.ViewportHeight,
	}
	payload["timezone"] = p.Timezone
	payload["locale"] = p.Locale
	payload["languages"] = p.Languages
	payload["headless"] = p.Headless
	if p.UserAgent != "" {
		payload["userAgent"] = p.UserAgent
	}
	// Mask the automation flags a naive context would leak
	payload["stealth"] = map[string]interface{}{
		"webdriver":       false,
		"chromeRuntime":   true,
		"permissionsFix":  true,
		"pluginsLength":   5,
		"languagesSpoof":  true,
		"hardwareThreads": 8,
	}
}

// defaultDismissSelectors is the ordered popup dismissal chain: cookie and
// consent banners first, then location prompts, first match wins
var defaultDismissSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button#truste-consent-button",
	"button[aria-label='Close']",
	"button[data-testid='cookie-banner-accept']",
	"button.cookie-consent__accept",
	"div[role='dialog'] button.accept",
	"button[data-testid='modal-close-button']",
	".modal-close",
}

// browserStrategy is one attempt shape against the browser service
type browserStrategy struct {
	Name    string
	Payload func(targetURL string) map[string]interface{}
}

// BrowserFetcher retrieves pages through an external browser-automation
// service over HTTP, walking an ordered strategy chain: search-engine
// referral first where enabled, then stealth direct navigation with
// warm-up, then plainer navigations as fallbacks.
type BrowserFetcher struct {
	site        string
	serviceAddr string
	baseURL     string
	profile     StealthProfile
	warmup      bool
	searchHop   bool
	navTimeout  int

	dismissSelectors []string

	fingerprints *rotation.FingerprintClient
	proxies      *rotation.ProxyManager
	captcha      *ratelimit.CaptchaLimiter

	httpClient *http.Client
	log        *logger.Logger
}

// NewBrowserFetcher wires a browser fetcher from the site configuration
func NewBrowserFetcher(
	site *config.Site,
	serviceAddr string,
	profile StealthProfile,
	fingerprints *rotation.FingerprintClient,
	proxies *rotation.ProxyManager,
	captcha *ratelimit.CaptchaLimiter,
) *BrowserFetcher {
	return &BrowserFetcher{
		site:             site.SiteSlug,
		serviceAddr:      strings.TrimRight(serviceAddr, "/"),
		baseURL:          site.BaseURL,
		profile:          profile,
		warmup:           site.Browser.Warmup,
		searchHop:        site.Browser.SearchEngineHop,
		navTimeout:       site.Browser.NavTimeoutMillis,
		dismissSelectors: defaultDismissSelectors,
		fingerprints:     fingerprints,
		proxies:          proxies,
		captcha:          captcha,
		httpClient:       &http.Client{Timeout: 120 * time.Second},
		log:              logger.ForFetcher(site.SiteSlug),
	}
}

// Healthy checks that the browser service is reachable
func (b *BrowserFetcher) Healthy() error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(b.serviceAddr + "/")
	if err != nil {
		return scraperrors.NewNetwork(b.site, "browser service not reachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return scraperrors.NewNetwork(b.site,
			fmt.Sprintf("browser service error (status %d)", resp.StatusCode), nil)
	}
	return nil
}

// Fetch navigates to a URL and returns the rendered HTML, trying each
// strategy in order and rotating identity on captcha detection
func (b *BrowserFetcher) Fetch(ctx context.Context, targetURL string) ([]byte, error) {
	strategies := b.strategies()

	var lastErr error
	for i, strategy := range strategies {
		b.log.Debug().
			Str("strategy", strategy.Name).
			Int("attempt", i+1).
			Int("of", len(strategies)).
			Msg("Trying browser strategy")

		body, err := b.execute(ctx, strategy, targetURL)
		if err != nil {
			lastErr = err
			b.log.Debug().Err(err).Str("strategy", strategy.Name).Msg("Browser strategy failed")
			continue
		}

		if DetectCaptcha(body) {
			b.captcha.RecordCaptcha()
			b.log.Warn().Str("strategy", strategy.Name).Msg("Captcha detected, rotating identity")
			if b.fingerprints != nil {
				b.fingerprints.RotateFingerprint()
			}
			if b.proxies != nil {
				b.proxies.Rotate()
			}
			lastErr = scraperrors.NewBotDetection(b.site, "captcha challenge on "+targetURL)
			if err := b.captcha.Wait(ctx); err != nil {
				return nil, err
			}
			continue
		}

		b.captcha.RecordRequest()
		b.log.Info().Str("strategy", strategy.Name).Int("bytes", len(body)).Msg("Browser fetch succeeded")
		return body, nil
	}

	if lastErr == nil {
		lastErr = scraperrors.NewNetwork(b.site, "all browser strategies failed", nil)
	}
	return nil, lastErr
}

// strategies builds the ordered attempt chain for this fetcher
func (b *BrowserFetcher) strategies() []browserStrategy {
	var out []browserStrategy

	if b.searchHop {
		out = append(out, browserStrategy{
			Name: "search-engine-referral",
			Payload: func(targetURL string) map[string]interface{} {
				payload := b.basePayload(targetURL, "networkidle0")
				// Route through a results page and click an organic
				// (non-sponsored) result instead of navigating directly
				payload["via"] = map[string]interface{}{
					"engine":       "https://www.google.com/search",
					"query":        searchQueryFor(targetURL),
					"clickOrganic": true,
					"skipAds":      true,
				}
				return payload
			},
		})
	}

	out = append(out,
		browserStrategy{
			Name: "stealth-direct",
			Payload: func(targetURL string) map[string]interface{} {
				payload := b.basePayload(targetURL, "networkidle0")
				if b.warmup {
					payload["warmup"] = map[string]interface{}{
						"urls":        []string{b.baseURL, b.baseURL + "/flyer"},
						"scroll":      true,
						"delayMillis": 1500,
					}
				}
				return payload
			},
		},
		browserStrategy{
			Name: "networkidle-content",
			Payload: func(targetURL string) map[string]interface{} {
				return b.basePayload(targetURL, "networkidle0")
			},
		},
		browserStrategy{
			Name: "basic-load",
			Payload: func(targetURL string) map[string]interface{} {
				payload := b.basePayload(targetURL, "load")
				payload["gotoOptions"].(map[string]interface{})["timeout"] = 20000
				return payload
			},
		},
	)
	return out
}

// basePayload builds the shared navigation payload: stealth profile, popup
// dismissal chain, and goto options
func (b *BrowserFetcher) basePayload(targetURL, waitUntil string) map[string]interface{} {
	payload := map[string]interface{}{
		"url": targetURL,
		"gotoOptions": map[string]interface{}{
			"waitUntil": waitUntil,
			"timeout":   b.navTimeout,
		},
		"dismissSelectors": b.dismissSelectors,
		// Residual overlays cleared by an incidental scroll+click pass
		"clearOverlays": true,
	}
	b.profile.Configure(payload)
	return payload
}

// execute sends one strategy payload to the browser service and validates
// the response looks like HTML
func (b *BrowserFetcher) execute(ctx context.Context, strategy browserStrategy, targetURL string) ([]byte, error) {
	data, err := json.Marshal(strategy.Payload(targetURL))
	if err != nil {
		return nil, scraperrors.NewParsing(b.site, "failed to marshal browser payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.serviceAddr+"/content", bytes.NewReader(data))
	if err != nil {
		return nil, scraperrors.NewNetwork(b.site, "failed to create browser request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, scraperrors.NewNetwork(b.site, "browser service request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, scraperrors.NewNetwork(b.site,
			fmt.Sprintf("browser service status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, scraperrors.NewNetwork(b.site, "failed to read browser response", err)
	}

	return validateHTML(b.site, body)
}

// validateHTML rejects responses too short or too un-HTML-like to extract
// from
func validateHTML(site string, body []byte) ([]byte, error) {
	if len(body) < 50 {
		return nil, scraperrors.NewParsing(site,
			fmt.Sprintf("response too short: %d bytes", len(body)), nil)
	}

	lower := strings.ToLower(string(body[:min(len(body), 2048)]))
	if strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<!doctype") ||
		strings.Contains(lower, "<body") {
		return body, nil
	}
	return nil, scraperrors.NewParsing(site, "response does not look like HTML", nil)
}

// searchQueryFor builds the search-engine query that should surface the
// target URL as an organic result
func searchQueryFor(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return targetURL
	}
	q := u.Query().Get("search-bar")
	if q == "" {
		q = u.Query().Get("q")
	}
	if q == "" {
		return u.Host
	}
	return fmt.Sprintf("%s %s", u.Host, q)
}
