package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
)

// SearchAPIFetcher queries a hosted search index directly, bypassing
// browser automation for much higher throughput. It is the primary path for
// sites that expose one; the browser + DOM chain is the declared fallback
// when the API yields zero results or errors.
type SearchAPIFetcher struct {
	site string
	cfg  config.SearchAPIConfig

	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewSearchAPIFetcher wires a search-index fetcher from the site config.
// Pacing is a token bucket at two requests per second; the API path is not
// subject to the page-scraping rate limiter.
func NewSearchAPIFetcher(site *config.Site) *SearchAPIFetcher {
	return &SearchAPIFetcher{
		site:    site.SiteSlug,
		cfg:     site.SearchAPI,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		log:     logger.ForFetcher(site.SiteSlug),
	}
}

// Enabled reports whether the site carries search-API credentials
func (s *SearchAPIFetcher) Enabled() bool {
	return s.cfg.Enabled && s.cfg.AppID != "" && s.cfg.APIKey != ""
}

// Search runs one paged query against the index in a store context and
// returns the raw JSON response
func (s *SearchAPIFetcher) Search(ctx context.Context, query string, page int, storeID string) ([]byte, error) {
	if !s.Enabled() {
		return nil, scraperrors.NewConfiguration(
			fmt.Sprintf("search API not configured for site %q", s.site), nil)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"query":       query,
		"page":        page,
		"hitsPerPage": s.cfg.HitsPerPage,
	}
	if storeID != "" {
		body["facetFilters"] = [][]string{{"storeId:" + storeID}}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, scraperrors.NewParsing(s.site, "failed to marshal search query", err)
	}

	endpoint := fmt.Sprintf("%s/1/indexes/%s/query", s.cfg.BaseURL, s.cfg.IndexName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, scraperrors.NewNetwork(s.site, "failed to create search request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Algolia-Application-Id", s.cfg.AppID)
	req.Header.Set("X-Algolia-API-Key", s.cfg.APIKey)

	s.log.Debug().
		Str("query", query).
		Int("page", page).
		Str("store_id", storeID).
		Msg("Search API request")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, scraperrors.NewNetwork(s.site, "search API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, scraperrors.NewRateLimit(s.site,
			parseRetryAfter(resp.Header.Get("Retry-After"), 60*time.Second))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, scraperrors.NewNetwork(s.site,
			fmt.Sprintf("search API status %d", resp.StatusCode), nil)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, scraperrors.NewNetwork(s.site, "failed to read search response", err)
	}
	return payload, nil
}
