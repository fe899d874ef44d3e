package record

import (
	"fmt"
	"strings"
	"time"

	"mkettler/groceryworker/logger"
)

// Availability is the canonical three-value stock status
type Availability string

const (
	InStock    Availability = "in_stock"
	OutOfStock Availability = "out_of_stock"
	Unknown    Availability = "unknown"
)

// SourceKind tags the origin of a record's raw payload
type SourceKind string

const (
	SourceEmbeddedJSON SourceKind = "embedded-json"
	SourceLinkedData   SourceKind = "linked-data"
	SourceSearchAPI    SourceKind = "search-api"
	SourceDOM          SourceKind = "dom"
)

// ProductRecord is the canonical unit of output. Instances are transient:
// built by a normalizer, validated, deduplicated, and either appended to the
// output log or discarded. Never mutated after construction.
type ProductRecord struct {
	Store         string                 `json:"store"`
	SiteSlug      string                 `json:"site_slug"`
	URL           string                 `json:"url,omitempty"`
	ScrapedAt     time.Time              `json:"scraped_at"`
	ExternalID    string                 `json:"external_id,omitempty"`
	Name          string                 `json:"name"`
	Brand         string                 `json:"brand,omitempty"`
	SizeText      string                 `json:"size_text,omitempty"`
	Price         *float64               `json:"price,omitempty"`
	Currency      string                 `json:"currency"`
	UnitPrice     *float64               `json:"unit_price,omitempty"`
	UnitPriceUOM  string                 `json:"unit_price_uom,omitempty"`
	ImageURL      string                 `json:"image_url,omitempty"`
	CategoryPath  string                 `json:"category_path,omitempty"`
	Availability  Availability           `json:"availability"`
	QueryCategory string                 `json:"query_category,omitempty"`
	SourceKind    SourceKind             `json:"source_kind,omitempty"`
	RawSource     map[string]interface{} `json:"raw_source,omitempty"`
}

// New creates a record with the timestamp and default fields populated
func New(siteSlug, store string) ProductRecord {
	return ProductRecord{
		Store:        store,
		SiteSlug:     siteSlug,
		ScrapedAt:    time.Now().UTC(),
		Currency:     "CAD",
		Availability: Unknown,
	}
}

// Validate checks the record invariants. It logs a warning naming the
// offending field and returns false instead of failing, so callers can count
// and skip.
func (r *ProductRecord) Validate() bool {
	if strings.TrimSpace(r.Store) == "" {
		r.warnInvalid("store")
		return false
	}
	if strings.TrimSpace(r.SiteSlug) == "" {
		r.warnInvalid("site_slug")
		return false
	}
	if strings.TrimSpace(r.Name) == "" {
		r.warnInvalid("name")
		return false
	}
	if r.Price != nil && *r.Price < 0 {
		r.warnInvalid("price")
		return false
	}
	if r.UnitPrice != nil && *r.UnitPrice < 0 {
		r.warnInvalid("unit_price")
		return false
	}
	switch r.Availability {
	case InStock, OutOfStock, Unknown:
	default:
		r.warnInvalid("availability")
		return false
	}
	return true
}

func (r *ProductRecord) warnInvalid(field string) {
	logger.Warn("invalid record (field %q): site=%s name=%q", field, r.SiteSlug, r.Name)
}

// DedupeKey derives the identity string used to suppress repeats. External
// id scoped by site wins; otherwise normalized name + size + store.
func (r *ProductRecord) DedupeKey() string {
	if r.ExternalID != "" {
		return fmt.Sprintf("%s:%s", r.SiteSlug, r.ExternalID)
	}
	return fmt.Sprintf("%s:%s:%s:%s",
		r.SiteSlug, normalize(r.Name), normalize(r.SizeText), r.Store)
}

// DedupeKeyForStore appends a store/location identifier so that legitimately
// different regional prices are not collapsed on multi-store runs.
func (r *ProductRecord) DedupeKeyForStore(storeID string) string {
	if storeID == "" {
		return r.DedupeKey()
	}
	return fmt.Sprintf("%s:%s", r.DedupeKey(), storeID)
}

// normalize lowercases, trims, and collapses internal whitespace
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FloatPtr is a convenience for optional numeric fields
func FloatPtr(v float64) *float64 {
	return &v
}
