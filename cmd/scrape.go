package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mkettler/groceryworker/internal/metrics"
	"mkettler/groceryworker/internal/scraper"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
	"mkettler/groceryworker/services/cache"
	"mkettler/groceryworker/services/publisher"

	"mkettler/groceryworker/config"
)

var scrapeFlags struct {
	site            string
	query           string
	categoryURL     string
	productURL      string
	maxPages        int
	headless        bool
	headful         bool
	outputFormat    string
	resume          bool
	clearCheckpoint bool
	fresh           bool
	metricsAddr     string
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape one site by search query, category, or product URL",
	RunE:  runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeFlags.site, "site", "", "site slug to scrape (required)")
	f.StringVar(&scrapeFlags.query, "query", "", "search query")
	f.StringVar(&scrapeFlags.categoryURL, "category-url", "", "category listing URL or path")
	f.StringVar(&scrapeFlags.productURL, "product-url", "", "single product page URL or path")
	f.IntVar(&scrapeFlags.maxPages, "max-pages", 0, "page limit, 0 means unlimited")
	f.BoolVar(&scrapeFlags.headless, "headless", true, "run browser navigation headless")
	f.BoolVar(&scrapeFlags.headful, "headful", false, "run browser navigation with a visible window")
	f.StringVar(&scrapeFlags.outputFormat, "output-format", "jsonl", "output format: jsonl, csv, or both")
	f.BoolVar(&scrapeFlags.resume, "resume", false, "resume from the saved checkpoint")
	f.BoolVar(&scrapeFlags.clearCheckpoint, "clear-checkpoint", false, "discard the saved checkpoint before running")
	f.BoolVar(&scrapeFlags.fresh, "fresh", false, "back up and clear existing output before running")
	f.StringVar(&scrapeFlags.metricsAddr, "metrics-addr", "", "address to serve run metrics on, empty disables")
	_ = scrapeCmd.MarkFlagRequired("site")

	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	if err := validateScrapeFlags(); err != nil {
		return err
	}

	site, err := config.LoadSite(configDir, scrapeFlags.site)
	if err != nil {
		return err
	}

	var guard *cache.BlockGuard
	if app.MemcacheAddr != "" {
		guard = cache.NewBlockGuard(cache.NewMemcacheService(app.MemcacheAddr))
		logger.Info("Shared rate-limit blocks enabled via %s", app.MemcacheAddr)
	}

	var pub publisher.Publisher
	if app.RedisAddr != "" {
		rp := publisher.NewRedisPublisher(context.Background(),
			app.RedisAddr, app.RedisDB, app.RedisStream, 10000)
		defer rp.Close()
		pub = rp
		logger.Info("Record feed enabled via %s", app.RedisAddr)
	}

	mx := metrics.New()
	if scrapeFlags.metricsAddr != "" {
		go serveMetrics(scrapeFlags.metricsAddr, mx)
	}

	headless := scrapeFlags.headless && !scrapeFlags.headful

	s, err := scraper.New(site, &app, guard, pub, mx, headless)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	return s.Run(ctx, scraper.Options{
		Query:           scrapeFlags.query,
		CategoryURL:     scrapeFlags.categoryURL,
		ProductURL:      scrapeFlags.productURL,
		MaxPages:        scrapeFlags.maxPages,
		OutputFormat:    scrapeFlags.outputFormat,
		Resume:          scrapeFlags.resume,
		ClearCheckpoint: scrapeFlags.clearCheckpoint,
		Fresh:           scrapeFlags.fresh,
	})
}

// validateScrapeFlags enforces the one-target rule and the known enums
// before any work starts
func validateScrapeFlags() error {
	targets := 0
	for _, t := range []string{scrapeFlags.query, scrapeFlags.categoryURL, scrapeFlags.productURL} {
		if t != "" {
			targets++
		}
	}
	if targets != 1 {
		return scraperrors.NewConfiguration(
			"exactly one of --query, --category-url, or --product-url is required", nil)
	}

	switch scrapeFlags.outputFormat {
	case "jsonl", "csv", "both":
	default:
		return scraperrors.NewConfiguration(
			fmt.Sprintf("unknown output format %q", scrapeFlags.outputFormat), nil)
	}

	if _, ok := scraper.ProfileFor(scrapeFlags.site); !ok {
		return scraperrors.NewConfiguration(
			fmt.Sprintf("unknown site %q (known: %s)",
				scrapeFlags.site, strings.Join(scraper.RegisteredSites(), ", ")), nil)
	}
	return nil
}

// serveMetrics exposes the run's registry over HTTP for scraping
func serveMetrics(addr string, mx *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mx.Registry(), promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("Metrics endpoint failed: %v", err)
	}
}
