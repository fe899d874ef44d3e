package sink

import (
	"encoding/json"
	"os"
	"time"

	scraperrors "mkettler/groceryworker/pkg/errors"
)

// Stats are the run counters carried in the checkpoint and reported at
// shutdown
type Stats struct {
	TotalScraped      int `json:"total_scraped"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	InvalidRecords    int `json:"invalid_records"`
	PagesProcessed    int `json:"pages_processed"`
	Errors            int `json:"errors"`
}

// Checkpoint is the resumable run state: every dedupe key accepted so far
// plus the counters at the time of the last save
type Checkpoint struct {
	SeenKeys    []string  `json:"seen_keys"`
	Stats       Stats     `json:"stats"`
	LastUpdated time.Time `json:"last_updated"`
}

// loadCheckpoint reads a checkpoint file. A missing file is a clean start,
// not an error.
func loadCheckpoint(site, path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, scraperrors.NewPersistence(site, "failed to read checkpoint", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, scraperrors.NewPersistence(site, "checkpoint file is corrupt", err)
	}
	return &cp, nil
}

// writeCheckpoint writes the checkpoint atomically: temp file then rename,
// so an interrupt mid-write never leaves a truncated checkpoint behind
func writeCheckpoint(site, path string, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return scraperrors.NewPersistence(site, "failed to encode checkpoint", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return scraperrors.NewPersistence(site, "failed to write checkpoint", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return scraperrors.NewPersistence(site, "failed to replace checkpoint", err)
	}
	return nil
}
