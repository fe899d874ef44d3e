// Package extract turns raw page or API payloads into opaque per-product
// dictionaries. Each page runs an ordered strategy chain: embedded page-state
// JSON first, then linked structured data, then DOM selector scraping. The
// first strategy yielding a non-empty product list wins.
package extract

import (
	"mkettler/groceryworker/internal/record"
)

// RawProduct is one extracted product payload before normalization. The shape
// is source-specific; the matching normalizer knows the field names.
type RawProduct map[string]interface{}

// Pagination carries the page position a payload declared about itself.
// HasMore is nil when the source did not state it either way.
type Pagination struct {
	HasMore *bool
	Current int
	Total   int
}

// Done reports whether the pagination data says the current page is the last
func (p *Pagination) Done() bool {
	if p == nil {
		return false
	}
	if p.HasMore != nil && !*p.HasMore {
		return true
	}
	return p.Total > 0 && p.Current >= p.Total
}

// Result is the outcome of one extraction pass over a payload
type Result struct {
	Products   []RawProduct
	Pagination *Pagination
	Source     record.SourceKind
}

// Empty reports whether the pass yielded no products
func (r Result) Empty() bool {
	return len(r.Products) == 0
}

// boolPtr is used when building Pagination from parsed JSON
func boolPtr(b bool) *bool {
	return &b
}

// asMap narrows a decoded JSON value to an object, or nil
func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// asSlice narrows a decoded JSON value to an array, or nil
func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

// dig walks nested objects by key, returning nil when any hop is missing or
// not an object
func dig(m map[string]interface{}, keys ...string) map[string]interface{} {
	for _, key := range keys {
		if m == nil {
			return nil
		}
		m = asMap(m[key])
	}
	return m
}
