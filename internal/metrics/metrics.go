package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the run counters. A nil *Metrics is a valid no-op
// receiver, so callers never need to guard.
type Metrics struct {
	registry *prometheus.Registry

	pagesProcessed *prometheus.CounterVec
	productsSaved  *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	invalidRecords *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	captchaHits    *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
}

// New creates a metrics bundle backed by its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_pages_processed_total",
			Help: "Pages fetched and extracted, by site.",
		}, []string{"site"}),
		productsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_products_saved_total",
			Help: "Records accepted and appended to the output log, by site.",
		}, []string{"site"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_duplicates_skipped_total",
			Help: "Records skipped by the dedup set, by site.",
		}, []string{"site"}),
		invalidRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_invalid_records_total",
			Help: "Records rejected by validation, by site.",
		}, []string{"site"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_errors_total",
			Help: "Fetch failures after retries, by site.",
		}, []string{"site"}),
		captchaHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_captcha_hits_total",
			Help: "Captcha challenges detected, by site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Duration of page fetches, by site.",
			Buckets: prometheus.DefBuckets,
		}, []string{"site"}),
	}

	m.registry.MustRegister(
		m.pagesProcessed,
		m.productsSaved,
		m.duplicates,
		m.invalidRecords,
		m.fetchErrors,
		m.captchaHits,
		m.fetchDuration,
	)
	return m
}

// Registry exposes the underlying registry for an optional scrape endpoint
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PageProcessed increments the processed-pages counter
func (m *Metrics) PageProcessed(site string) {
	if m == nil {
		return
	}
	m.pagesProcessed.WithLabelValues(site).Inc()
}

// ProductsSaved adds n to the saved-products counter
func (m *Metrics) ProductsSaved(site string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.productsSaved.WithLabelValues(site).Add(float64(n))
}

// DuplicatesSkipped adds n to the duplicates counter
func (m *Metrics) DuplicatesSkipped(site string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicates.WithLabelValues(site).Add(float64(n))
}

// InvalidRecords adds n to the invalid-records counter
func (m *Metrics) InvalidRecords(site string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidRecords.WithLabelValues(site).Add(float64(n))
}

// FetchError increments the fetch-error counter
func (m *Metrics) FetchError(site string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(site).Inc()
}

// CaptchaHit increments the captcha counter
func (m *Metrics) CaptchaHit(site string) {
	if m == nil {
		return
	}
	m.captchaHits.WithLabelValues(site).Inc()
}

// ObserveFetch records one fetch duration in seconds
func (m *Metrics) ObserveFetch(site string, seconds float64) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(site).Observe(seconds)
}
