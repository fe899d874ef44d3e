package sink

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"mkettler/groceryworker/internal/record"
	scraperrors "mkettler/groceryworker/pkg/errors"
)

var csvHeader = []string{
	"store", "site_slug", "url", "scraped_at", "external_id", "name", "brand",
	"size_text", "price", "currency", "unit_price", "unit_price_uom",
	"image_url", "category_path", "availability", "query_category",
	"source_kind", "raw_source",
}

// ExportCSV flattens the accumulated JSONL log into a CSV next to it.
// Nested raw payloads are serialized as JSON text inside a single column.
// Returns the path written.
func (m *DataManager) ExportCSV() (string, error) {
	in, err := os.Open(m.outputPath)
	if err != nil {
		return "", scraperrors.NewPersistence(m.siteSlug, "failed to open output log for export", err)
	}
	defer in.Close()

	csvPath := strings.TrimSuffix(m.outputPath, ".jsonl") + ".csv"
	out, err := os.Create(csvPath)
	if err != nil {
		return "", scraperrors.NewPersistence(m.siteSlug, "failed to create CSV export", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return "", scraperrors.NewPersistence(m.siteSlug, "failed to write CSV header", err)
	}

	rows := 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var r record.ProductRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			m.log.Warn().Err(err).Msg("Skipping unparseable line during export")
			continue
		}
		if err := w.Write(csvRow(&r)); err != nil {
			return "", scraperrors.NewPersistence(m.siteSlug, "failed to write CSV row", err)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return "", scraperrors.NewPersistence(m.siteSlug, "failed to read output log", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", scraperrors.NewPersistence(m.siteSlug, "failed to flush CSV export", err)
	}

	m.log.Info().Str("csv", csvPath).Int("rows", rows).Msg("CSV export written")
	return csvPath, nil
}

// csvRow flattens one record into its column values
func csvRow(r *record.ProductRecord) []string {
	rawSource := ""
	if r.RawSource != nil {
		if data, err := json.Marshal(r.RawSource); err == nil {
			rawSource = string(data)
		}
	}
	return []string{
		r.Store,
		r.SiteSlug,
		r.URL,
		r.ScrapedAt.Format(time.RFC3339),
		r.ExternalID,
		r.Name,
		r.Brand,
		r.SizeText,
		floatCol(r.Price),
		r.Currency,
		floatCol(r.UnitPrice),
		r.UnitPriceUOM,
		r.ImageURL,
		r.CategoryPath,
		string(r.Availability),
		r.QueryCategory,
		string(r.SourceKind),
		rawSource,
	}
}

// floatCol renders an optional price column, empty when null
func floatCol(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
