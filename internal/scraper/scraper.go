// Package scraper drives one site end to end: fetch, extract, normalize,
// persist, with checkpointing and multi-store fan-out.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/extract"
	"mkettler/groceryworker/internal/fetch"
	"mkettler/groceryworker/internal/metrics"
	"mkettler/groceryworker/internal/normalize"
	"mkettler/groceryworker/internal/ratelimit"
	"mkettler/groceryworker/internal/record"
	"mkettler/groceryworker/internal/rotation"
	"mkettler/groceryworker/internal/sink"
	"mkettler/groceryworker/internal/stores"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
	"mkettler/groceryworker/services/cache"
	"mkettler/groceryworker/services/publisher"
)

// interStoreDelay is the polite pause between store contexts on fan-out runs
const interStoreDelay = 5 * time.Second

// Options are the per-invocation knobs from the CLI boundary
type Options struct {
	Query           string
	CategoryURL     string
	ProductURL      string
	MaxPages        int
	OutputFormat    string // jsonl | csv | both
	Resume          bool
	ClearCheckpoint bool
	Fresh           bool
}

// Scraper is the per-site run driver
type Scraper struct {
	cfg     *config.Site
	profile Profile

	limiter *ratelimit.Limiter
	captcha *ratelimit.CaptchaLimiter
	stores  *stores.Rotator

	searchAPI *fetch.SearchAPIFetcher
	chain     *extract.HTMLChain
	hits      *extract.SearchHitsExtractor
	norm      *normalize.Normalizer
	data      *sink.DataManager
	metrics   *metrics.Metrics

	// fetchPage is the bound page fetcher for the site's platform; tests
	// stub it
	fetchPage func(ctx context.Context, pageURL string) ([]byte, error)
	sleep     func(ctx context.Context, d time.Duration) error

	log *logger.Logger
}

// New wires a scraper for a configured site. The block guard, publisher,
// and metrics are optional; nil disables each.
func New(
	site *config.Site,
	app *config.App,
	guard *cache.BlockGuard,
	pub publisher.Publisher,
	mx *metrics.Metrics,
	headless bool,
) (*Scraper, error) {
	profile, ok := ProfileFor(site.SiteSlug)
	if !ok {
		return nil, scraperrors.NewConfiguration(
			fmt.Sprintf("no profile registered for site %q", site.SiteSlug), nil)
	}

	data, err := sink.NewDataManager(site, app.DataDir)
	if err != nil {
		return nil, err
	}
	data.WithMetrics(mx).WithPublisher(pub)

	s := &Scraper{
		cfg:     site,
		profile: profile,
		limiter: ratelimit.NewLimiter(
			site.RateLimit.MinDelay(), site.RateLimit.MaxDelay(),
			site.RateLimit.RequestsPerMinute),
		captcha: ratelimit.NewCaptchaLimiter(
			site.RateLimit.MinDelay(), site.RateLimit.MaxDelay()),
		stores:  stores.NewRotator(site.StoreRotation),
		chain:   extract.NewHTMLChain(site.SiteSlug, profile.Selectors),
		hits:    extract.NewSearchHitsExtractor(site.SiteSlug),
		norm:    normalize.NewNormalizer(site),
		data:    data,
		metrics: mx,
		sleep:   sleepCtx,
		log:     logger.ForScraper(site.SiteSlug),
	}

	proxies, err := rotation.NewProxyManager(site.Proxy)
	if err != nil {
		return nil, err
	}
	fingerprints := rotation.NewFingerprintClient(site.TLS, proxies)

	switch profile.Platform {
	case PlatformBrowser:
		browser := fetch.NewBrowserFetcher(site, app.BrowserServiceAddr,
			fetch.DefaultStealthProfile("", headless), fingerprints, proxies, s.captcha)
		s.fetchPage = func(ctx context.Context, pageURL string) ([]byte, error) {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return browser.Fetch(ctx, pageURL)
		}
	case PlatformSearchAPI:
		s.searchAPI = fetch.NewSearchAPIFetcher(site)
		// Declared fallback path when the index yields nothing
		browser := fetch.NewBrowserFetcher(site, app.BrowserServiceAddr,
			fetch.DefaultStealthProfile("", headless), fingerprints, proxies, s.captcha)
		s.fetchPage = func(ctx context.Context, pageURL string) ([]byte, error) {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return browser.Fetch(ctx, pageURL)
		}
	default:
		httpFetcher := fetch.NewHTTPFetcher(site, fingerprints, proxies, s.limiter, guard)
		s.fetchPage = httpFetcher.Fetch
	}

	return s, nil
}

// Run executes one invocation. The checkpoint-and-stats shutdown path runs
// whether the loop finishes, fails, or the context is interrupted.
func (s *Scraper) Run(ctx context.Context, opts Options) (err error) {
	if opts.ClearCheckpoint {
		if err := s.data.ClearCheckpoint(); err != nil {
			return err
		}
	}
	if opts.Fresh {
		if err := s.data.FreshStart(); err != nil {
			return err
		}
	} else if err := s.data.BackupOutput(); err != nil {
		return err
	}
	if opts.Resume {
		if _, err := s.data.LoadCheckpoint(); err != nil {
			return err
		}
	}

	defer func() {
		if cpErr := s.data.SaveCheckpoint(); cpErr != nil {
			s.log.Error().Err(cpErr).Msg("Failed to save checkpoint at shutdown")
			if err == nil {
				err = cpErr
			}
		}
		s.data.LogStats()
		if opts.OutputFormat == "csv" || opts.OutputFormat == "both" {
			if _, exportErr := s.data.ExportCSV(); exportErr != nil {
				s.log.Error().Err(exportErr).Msg("CSV export failed")
			}
		}
	}()

	switch {
	case opts.ProductURL != "":
		return s.scrapeProduct(ctx, opts.ProductURL)
	case opts.Query != "":
		return s.runQuery(ctx, opts.Query, opts.MaxPages)
	case opts.CategoryURL != "":
		return s.scrapePages(ctx, s.absolute(opts.CategoryURL), "", opts.MaxPages)
	default:
		return scraperrors.NewConfiguration(
			"one of query, category URL, or product URL is required", nil)
	}
}

// runQuery runs a search, fanning out over store contexts where the site
// rotates stores
func (s *Scraper) runQuery(ctx context.Context, query string, maxPages int) error {
	if !s.profile.MultiStore {
		if s.profile.Platform == PlatformSearchAPI {
			return s.scrapeSearchAPI(ctx, query, "", maxPages)
		}
		return s.scrapePages(ctx, s.searchURL(query), "", maxPages)
	}

	storeList := s.stores.StoresForQuery()
	s.log.Info().Int("stores", len(storeList)).Str("query", query).Msg("Fanning out over stores")

	for i, store := range storeList {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 {
			if err := s.sleep(ctx, interStoreDelay); err != nil {
				return err
			}
		}

		s.log.Info().Str("store_id", store.ID).Str("store", store.Name).Msg("Scraping store context")

		var err error
		if s.profile.Platform == PlatformSearchAPI {
			err = s.scrapeSearchAPI(ctx, query, store.ID, maxPages)
		} else {
			err = s.scrapePages(ctx, s.searchURL(query), store.ID, maxPages)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// One failed store does not abort the fan-out
			s.log.Warn().Err(err).Str("store_id", store.ID).Msg("Store context failed")
			s.data.RecordError()
		}
	}
	return nil
}

// scrapePages runs the paging loop over an HTML listing. Terminates on the
// page limit, pagination metadata, a zero-product page, or an unrecoverable
// fetch error.
func (s *Scraper) scrapePages(ctx context.Context, target, storeID string, maxPages int) error {
	page := 1
	errStreak := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if maxPages > 0 && page > maxPages {
			s.log.Info().Int("max_pages", maxPages).Msg("Page limit reached")
			return nil
		}

		pageURL := pagedURL(target, page)
		start := time.Now()
		body, err := s.fetchPage(ctx, pageURL)
		s.metrics.ObserveFetch(s.cfg.SiteSlug, time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.data.RecordError()
			s.metrics.FetchError(s.cfg.SiteSlug)

			var serr *scraperrors.ScrapeError
			if errors.As(err, &serr) && serr.IsBotDetection() {
				s.metrics.CaptchaHit(s.cfg.SiteSlug)
				errStreak++
				if errStreak <= s.cfg.ErrorHandling.MaxRetries {
					s.log.Warn().Int("streak", errStreak).Msg("Bot detection, backing off before retry")
					if waitErr := s.limiter.AdaptiveWait(ctx, errStreak); waitErr != nil {
						return waitErr
					}
					continue
				}
			}

			// Transient retries are exhausted inside the fetcher; the page
			// is abandoned, the run keeps its partial results
			s.log.Warn().Err(err).Int("page", page).Msg("Page abandoned after fetch failure")
			return nil
		}
		errStreak = 0

		result, err := s.chain.Extract(body)
		if err != nil {
			s.data.RecordError()
			s.log.Warn().Err(err).Int("page", page).Msg("Page abandoned, unparseable payload")
			return nil
		}
		if result.Empty() {
			if page == 1 {
				s.log.Warn().Str("target", target).Msg("First page yielded no products, abandoning query")
			} else {
				s.log.Info().Int("page", page).Msg("No products on page, stopping")
			}
			return nil
		}

		s.saveResult(result, pageURL, storeID, page)

		if result.Pagination.Done() {
			s.log.Info().Int("page", page).Msg("Pagination reports last page")
			return nil
		}
		page++
	}
}

// scrapeSearchAPI runs the paging loop against the hosted search index for
// one store context, falling back to the browser+DOM path when the index
// yields nothing on the first page
func (s *Scraper) scrapeSearchAPI(ctx context.Context, query, storeID string, maxPages int) error {
	if !s.searchAPI.Enabled() {
		s.log.Warn().Msg("Search API not configured, using page fallback")
		return s.scrapePages(ctx, s.searchURL(query), storeID, maxPages)
	}

	page := 1
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if maxPages > 0 && page > maxPages {
			return nil
		}

		start := time.Now()
		payload, err := s.searchAPI.Search(ctx, query, page-1, storeID)
		s.metrics.ObserveFetch(s.cfg.SiteSlug, time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.data.RecordError()
			s.metrics.FetchError(s.cfg.SiteSlug)
			if page == 1 {
				s.log.Warn().Err(err).Msg("Search API failed, falling back to page scraping")
				return s.scrapePages(ctx, s.searchURL(query), storeID, maxPages)
			}
			s.log.Warn().Err(err).Int("page", page).Msg("Search API page abandoned")
			return nil
		}

		result := s.hits.Extract(payload)
		if result.Empty() {
			if page == 1 {
				s.log.Info().Str("query", query).Msg("Zero hits, falling back to page scraping")
				return s.scrapePages(ctx, s.searchURL(query), storeID, maxPages)
			}
			return nil
		}

		s.saveResult(result, "", storeID, page)

		if result.Pagination.Done() {
			return nil
		}
		page++
	}
}

// scrapeProduct fetches and saves a single product detail page
func (s *Scraper) scrapeProduct(ctx context.Context, productURL string) error {
	body, err := s.fetchPage(ctx, s.absolute(productURL))
	if err != nil {
		s.data.RecordError()
		return err
	}

	result, err := s.chain.Extract(body)
	if err != nil {
		s.data.RecordError()
		return err
	}
	if result.Empty() {
		return scraperrors.NewExtraction(s.cfg.SiteSlug,
			"no product data found on "+productURL)
	}

	r := s.norm.Normalize(result.Products[0], result.Source, productURL, "")
	s.data.SaveRecord(r, "")
	s.data.PageProcessed()
	return nil
}

// saveResult normalizes and persists one page's products
func (s *Scraper) saveResult(result extract.Result, pageURL, storeID string, page int) {
	records := make([]record.ProductRecord, 0, len(result.Products))
	for _, raw := range result.Products {
		records = append(records, s.norm.Normalize(raw, result.Source, pageURL, s.currentQuery(pageURL)))
	}

	saved := s.data.SaveRecordsBatch(records, storeID)
	s.data.PageProcessed()
	s.log.Info().
		Int("page", page).
		Int("extracted", len(records)).
		Int("saved", saved).
		Str("store_id", storeID).
		Msg("Page processed")
}

// searchURL builds the absolute search URL for a query
func (s *Scraper) searchURL(query string) string {
	path := s.cfg.SearchURL
	if path == "" {
		path = "/search"
	}
	return s.absolute(path) + "?search-bar=" + url.QueryEscape(query)
}

// currentQuery recovers the query term from a search URL for the record's
// query_category field
func (s *Scraper) currentQuery(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("search-bar")
}

// absolute resolves a path against the site base URL
func (s *Scraper) absolute(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + target
}

// pagedURL appends the page parameter to a listing URL
func pagedURL(target string, page int) string {
	if page <= 1 {
		return target
	}
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%spage=%d", target, separator, page)
}

// sleepCtx sleeps unless the context is cancelled first
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats exposes the run counters for the CLI summary
func (s *Scraper) Stats() sink.Stats {
	return s.data.Stats()
}
