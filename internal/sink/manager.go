// Package sink owns deduplication and persistence: the append-only JSONL
// output log, the resumable checkpoint, backups, and the CSV export.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/metrics"
	"mkettler/groceryworker/internal/record"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
	"mkettler/groceryworker/services/publisher"
)

// DataManager filters records through validation and the seen-key set, then
// appends survivors to the output log. Appends always write complete
// newline-terminated lines and never rewrite existing content, so a crash
// mid-append cannot corrupt prior records.
type DataManager struct {
	siteSlug       string
	dataDir        string
	outputPath     string
	checkpointPath string

	maxBackups int
	compress   bool

	mu    sync.Mutex
	seen  map[string]struct{}
	stats Stats

	metrics *metrics.Metrics
	pub     publisher.Publisher
	log     *logger.Logger
}

// NewDataManager creates the persistence layer for one site under dataDir
func NewDataManager(site *config.Site, dataDir string) (*DataManager, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, scraperrors.NewPersistence(site.SiteSlug, "failed to create data directory", err)
	}
	return &DataManager{
		siteSlug:       site.SiteSlug,
		dataDir:        dataDir,
		outputPath:     filepath.Join(dataDir, site.SiteSlug+"_products.jsonl"),
		checkpointPath: filepath.Join(dataDir, site.SiteSlug+"_checkpoint.json"),
		maxBackups:     site.MaxBackups,
		compress:       site.CompressBack,
		seen:           make(map[string]struct{}),
		log:            logger.ForSink(site.SiteSlug),
	}, nil
}

// WithMetrics attaches run metrics
func (m *DataManager) WithMetrics(mx *metrics.Metrics) *DataManager {
	m.metrics = mx
	return m
}

// WithPublisher attaches the optional record feed
func (m *DataManager) WithPublisher(pub publisher.Publisher) *DataManager {
	m.pub = pub
	return m
}

// OutputPath returns the live JSONL path
func (m *DataManager) OutputPath() string {
	return m.outputPath
}

// LoadCheckpoint seeds the seen-key set and counters from the checkpoint
// file if one exists. Returns the number of keys seeded.
func (m *DataManager) LoadCheckpoint() (int, error) {
	cp, err := loadCheckpoint(m.siteSlug, m.checkpointPath)
	if err != nil {
		return 0, err
	}
	if cp == nil {
		m.log.Debug().Msg("No checkpoint found, starting clean")
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range cp.SeenKeys {
		m.seen[key] = struct{}{}
	}
	m.stats = cp.Stats
	m.log.Info().
		Int("seen_keys", len(m.seen)).
		Time("last_updated", cp.LastUpdated).
		Msg("Resumed from checkpoint")
	return len(m.seen), nil
}

// SaveCheckpoint persists the current seen-key set and counters
func (m *DataManager) SaveCheckpoint() error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.seen))
	for key := range m.seen {
		keys = append(keys, key)
	}
	cp := &Checkpoint{SeenKeys: keys, Stats: m.stats, LastUpdated: time.Now().UTC()}
	m.mu.Unlock()

	if err := writeCheckpoint(m.siteSlug, m.checkpointPath, cp); err != nil {
		return err
	}
	m.log.Debug().Int("seen_keys", len(keys)).Msg("Checkpoint saved")
	return nil
}

// ClearCheckpoint removes the checkpoint file and resets in-memory state
func (m *DataManager) ClearCheckpoint() error {
	m.mu.Lock()
	m.seen = make(map[string]struct{})
	m.stats = Stats{}
	m.mu.Unlock()

	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return scraperrors.NewPersistence(m.siteSlug, "failed to remove checkpoint", err)
	}
	m.log.Info().Msg("Checkpoint cleared")
	return nil
}

// SeenCount returns the size of the dedupe set
func (m *DataManager) SeenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// SaveRecord validates, deduplicates, and appends one record. The storeID
// scopes the dedupe key on multi-store runs. Returns true when the record
// was accepted and written.
func (m *DataManager) SaveRecord(r record.ProductRecord, storeID string) bool {
	return m.SaveRecordsBatch([]record.ProductRecord{r}, storeID) == 1
}

// SaveRecordsBatch filters a page's records in bulk and appends the
// survivors in one buffered write
func (m *DataManager) SaveRecordsBatch(records []record.ProductRecord, storeID string) int {
	var buf bytes.Buffer
	var accepted []record.ProductRecord

	m.mu.Lock()
	for i := range records {
		r := &records[i]
		if !r.Validate() {
			m.stats.InvalidRecords++
			m.metrics.InvalidRecords(m.siteSlug, 1)
			continue
		}
		key := r.DedupeKeyForStore(storeID)
		if _, dup := m.seen[key]; dup {
			m.stats.DuplicatesSkipped++
			m.metrics.DuplicatesSkipped(m.siteSlug, 1)
			continue
		}

		line, err := json.Marshal(r)
		if err != nil {
			m.stats.InvalidRecords++
			m.log.Warn().Err(err).Str("name", r.Name).Msg("Record failed to serialize")
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
		m.seen[key] = struct{}{}
		accepted = append(accepted, *r)
	}
	m.mu.Unlock()

	if len(accepted) == 0 {
		return 0
	}

	if err := m.appendLines(buf.Bytes()); err != nil {
		m.log.Error().Err(err).Msg("Failed to append records")
		m.mu.Lock()
		m.stats.Errors++
		m.mu.Unlock()
		return 0
	}

	m.mu.Lock()
	m.stats.TotalScraped += len(accepted)
	m.mu.Unlock()
	m.metrics.ProductsSaved(m.siteSlug, len(accepted))

	m.publish(accepted)
	return len(accepted)
}

// appendLines appends pre-serialized complete lines in a single write
func (m *DataManager) appendLines(data []byte) error {
	f, err := os.OpenFile(m.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return scraperrors.NewPersistence(m.siteSlug, "failed to open output log", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return scraperrors.NewPersistence(m.siteSlug, "failed to append to output log", err)
	}
	return nil
}

// publish mirrors accepted records to the optional feed; publish failures
// are logged, never fatal
func (m *DataManager) publish(records []record.ProductRecord) {
	if m.pub == nil {
		return
	}
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			continue
		}
		if err := m.pub.PublishRecord(m.siteSlug, data); err != nil {
			m.log.Warn().Err(err).Msg("Failed to publish record")
		}
	}
}

// PageProcessed bumps the page counter
func (m *DataManager) PageProcessed() {
	m.mu.Lock()
	m.stats.PagesProcessed++
	m.mu.Unlock()
	m.metrics.PageProcessed(m.siteSlug)
}

// RecordError bumps the error counter
func (m *DataManager) RecordError() {
	m.mu.Lock()
	m.stats.Errors++
	m.mu.Unlock()
}

// Stats returns a copy of the current counters
func (m *DataManager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// LogStats writes the aggregate counters at shutdown
func (m *DataManager) LogStats() {
	s := m.Stats()
	m.log.Info().
		Int("total_scraped", s.TotalScraped).
		Int("duplicates_skipped", s.DuplicatesSkipped).
		Int("invalid_records", s.InvalidRecords).
		Int("pages_processed", s.PagesProcessed).
		Int("errors", s.Errors).
		Msg("Run statistics")
	fmt.Printf("scraped=%d duplicates=%d invalid=%d pages=%d errors=%d\n",
		s.TotalScraped, s.DuplicatesSkipped, s.InvalidRecords, s.PagesProcessed, s.Errors)
}
