package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/ratelimit"
)

func browserSite(hop bool) *config.Site {
	return &config.Site{
		SiteSlug:  "sobeys",
		StoreName: "Sobeys",
		BaseURL:   "https://www.sobeys.com",
		Browser: config.BrowserConfig{
			Warmup:           true,
			SearchEngineHop:  hop,
			NavTimeoutMillis: 45000,
		},
	}
}

func newTestBrowserFetcher(t *testing.T, site *config.Site) *BrowserFetcher {
	t.Helper()

	b := NewBrowserFetcher(site, "http://localhost:3000",
		DefaultStealthProfile("", true), nil, nil,
		ratelimit.NewCaptchaLimiter(0, 0))
	httpmock.ActivateNonDefault(b.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return b
}

func TestBrowserFetcherFirstStrategyWins(t *testing.T) {
	b := newTestBrowserFetcher(t, browserSite(false))

	var payloads []map[string]interface{}
	httpmock.RegisterResponder("POST", "http://localhost:3000/content",
		func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			var p map[string]interface{}
			json.Unmarshal(raw, &p)
			payloads = append(payloads, p)
			return httpmock.NewStringResponse(200,
				`<html><body><div class="product-tile">Milk</div></body></html>`), nil
		})

	body, err := b.Fetch(context.Background(), "https://www.sobeys.com/search?search-bar=milk")
	require.NoError(t, err)
	assert.Contains(t, string(body), "product-tile")
	require.Len(t, payloads, 1)

	// The first strategy carries warmup + stealth configuration
	p := payloads[0]
	assert.Contains(t, p, "warmup")
	assert.Contains(t, p, "stealth")
	assert.Contains(t, p, "dismissSelectors")
	assert.Equal(t, "America/Edmonton", p["timezone"])
}

func TestBrowserFetcherFallsThroughOnCaptcha(t *testing.T) {
	b := newTestBrowserFetcher(t, browserSite(false))

	calls := 0
	httpmock.RegisterResponder("POST", "http://localhost:3000/content",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(200,
					`<html><body><div id="px-captcha">Press & Hold</div></body></html>`), nil
			}
			return httpmock.NewStringResponse(200,
				`<html><body><div class="product-tile">Bread</div></body></html>`), nil
		})

	body, err := b.Fetch(context.Background(), "https://www.sobeys.com/search?search-bar=bread")
	require.NoError(t, err)
	assert.Contains(t, string(body), "Bread")
	assert.Equal(t, 2, calls)
	assert.Greater(t, b.captcha.Ratio(), 0.0)
}

func TestBrowserFetcherSearchEngineHopFirst(t *testing.T) {
	b := newTestBrowserFetcher(t, browserSite(true))

	var first map[string]interface{}
	httpmock.RegisterResponder("POST", "http://localhost:3000/content",
		func(req *http.Request) (*http.Response, error) {
			if first == nil {
				raw, _ := io.ReadAll(req.Body)
				json.Unmarshal(raw, &first)
			}
			return httpmock.NewStringResponse(200,
				`<html><body><main>content body text</main></body></html>`), nil
		})

	_, err := b.Fetch(context.Background(), "https://www.sobeys.com/search?search-bar=milk")
	require.NoError(t, err)

	require.Contains(t, first, "via")
	via := first["via"].(map[string]interface{})
	assert.Equal(t, true, via["clickOrganic"])
	assert.Contains(t, via["query"], "milk")
}

func TestBrowserFetcherAllStrategiesFail(t *testing.T) {
	b := newTestBrowserFetcher(t, browserSite(false))

	httpmock.RegisterResponder("POST", "http://localhost:3000/content",
		httpmock.NewStringResponder(502, "bad gateway"))

	_, err := b.Fetch(context.Background(), "https://www.sobeys.com/search?search-bar=milk")
	assert.Error(t, err)
}

func TestSearchQueryFor(t *testing.T) {
	q := searchQueryFor("https://www.sobeys.com/search?search-bar=oat+milk")
	assert.Contains(t, q, "www.sobeys.com")
	assert.Contains(t, q, "oat milk")

	assert.Equal(t, "www.sobeys.com", searchQueryFor("https://www.sobeys.com/aisles/dairy"))
}
