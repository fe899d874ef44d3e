// Package normalize maps the source-specific raw product shapes produced by
// the extractors into canonical ProductRecords. One normalizer method per
// raw-shape family; parse failures null the affected field and never guess.
package normalize

import (
	"fmt"
	"strings"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/extract"
	"mkettler/groceryworker/internal/record"
	"mkettler/groceryworker/logger"
)

// Normalizer converts extracted raw products for one site
type Normalizer struct {
	siteSlug string
	store    string
	baseURL  string
	log      *logger.Logger
}

// NewNormalizer creates a normalizer bound to one site's identity
func NewNormalizer(site *config.Site) *Normalizer {
	return &Normalizer{
		siteSlug: site.SiteSlug,
		store:    site.StoreName,
		baseURL:  strings.TrimRight(site.BaseURL, "/"),
		log:      logger.ForScraper(site.SiteSlug),
	}
}

// Normalize dispatches a raw product to the normalizer for its source shape
func (n *Normalizer) Normalize(raw extract.RawProduct, source record.SourceKind, sourceURL, query string) record.ProductRecord {
	switch source {
	case record.SourceEmbeddedJSON:
		return n.FromPageState(raw, sourceURL, query)
	case record.SourceLinkedData:
		return n.FromLinkedData(raw, sourceURL, query)
	case record.SourceSearchAPI:
		return n.FromSearchHit(raw, query)
	default:
		return n.FromDOM(raw, sourceURL, query)
	}
}

// FromPageState maps an embedded page-state product tile. Both the current
// field names (productId/title/packageSizing/inventoryIndicator) and the
// legacy ones (code/name/packageSize) are read.
func (n *Normalizer) FromPageState(raw extract.RawProduct, sourceURL, query string) record.ProductRecord {
	r := n.base(sourceURL, query, record.SourceEmbeddedJSON, raw)

	r.ExternalID = str(raw, "productId", "code")
	r.Name = str(raw, "title", "name")
	r.Brand = str(raw, "brand")
	r.SizeText = str(raw, "packageSizing", "packageSize")

	pricing := subMap(raw, "pricing")
	r.Price = ParsePrice(pricing["price"])
	n.applyUnitPrice(&r, pricing)
	r.ImageURL = pageStateImage(raw)
	r.CategoryPath = joinBreadcrumbs(raw["breadcrumbs"])

	// No inventory indicator on this storefront means the tile is orderable;
	// the site hides unavailable items rather than flagging them. A business
	// assumption, asserted deliberately.
	indicator := str(raw, "inventoryIndicator")
	if indicator == "" {
		r.Availability = record.InStock
	} else {
		r.Availability = FromInventoryIndicator(indicator)
	}
	return r
}

// FromLinkedData maps a schema.org Product block
func (n *Normalizer) FromLinkedData(raw extract.RawProduct, sourceURL, query string) record.ProductRecord {
	r := n.base(sourceURL, query, record.SourceLinkedData, raw)

	r.ExternalID = str(raw, "sku")
	r.Name = str(raw, "name")
	r.SizeText = str(raw, "description")
	r.ImageURL = str(raw, "image")

	switch brand := raw["brand"].(type) {
	case map[string]interface{}:
		r.Brand, _ = brand["name"].(string)
	case string:
		r.Brand = brand
	}

	offers := subMap(raw, "offers")
	r.Price = ParsePrice(offers["price"])
	if currency := str(offers, "priceCurrency"); currency != "" {
		r.Currency = currency
	}
	r.Availability = FromSchemaOrg(str(offers, "availability"))
	n.deriveUnitPrice(&r)
	return r
}

// FromSearchHit maps one hosted-search hit
func (n *Normalizer) FromSearchHit(raw extract.RawProduct, query string) record.ProductRecord {
	r := n.base("", query, record.SourceSearchAPI, raw)

	r.Name = str(raw, "name", "title", "pageSlug")
	r.Brand = str(raw, "brand", "manufacturer")
	r.Price = ParsePrice(raw["price"])

	// UPC fields arrive as comma-separated lists at times; the first entry
	// is the identifier
	id := str(raw, "upc", "gtin", "articleNumber")
	if i := strings.IndexByte(id, ','); i >= 0 {
		id = strings.TrimSpace(id[:i])
	}
	if id == "" {
		id = str(raw, "objectID")
	}
	r.ExternalID = id

	r.SizeText = str(raw, "weight", "size", "priceQuantity")
	if uom := str(raw, "uom"); uom != "" && r.SizeText != "" {
		r.SizeText = fmt.Sprintf("%s %s", r.SizeText, uom)
	}

	if up := ParsePrice(raw["unitPrice"]); up != nil {
		r.UnitPrice = up
		r.UnitPriceUOM = str(raw, "uom")
	} else {
		n.deriveUnitPrice(&r)
	}

	r.CategoryPath = hitCategory(raw)

	if inStock, ok := raw["inStock"].(bool); ok {
		r.Availability = FromStockFlag(inStock)
	} else {
		// The index only carries orderable products; a hit without the flag
		// is in stock. A business assumption, asserted deliberately.
		r.Availability = record.InStock
	}

	switch images := raw["images"].(type) {
	case []interface{}:
		if len(images) > 0 {
			r.ImageURL, _ = images[0].(string)
		}
	case string:
		r.ImageURL = images
	}
	if r.ImageURL == "" {
		r.ImageURL = str(raw, "image")
	}

	if slug := str(raw, "pageSlug"); slug != "" {
		r.URL = n.baseURL + "/product/" + slug
	} else {
		r.URL = n.baseURL
	}
	return r
}

// FromDOM maps a scraped DOM element
func (n *Normalizer) FromDOM(raw extract.RawProduct, sourceURL, query string) record.ProductRecord {
	r := n.base(sourceURL, query, record.SourceDOM, raw)

	r.ExternalID = str(raw, "external_id")
	r.Name = str(raw, "name")
	r.Brand = str(raw, "brand")
	r.ImageURL = str(raw, "image_url")

	if text := str(raw, "price_text"); text != "" {
		r.Price = ParsePriceText(text)
	}
	if link := str(raw, "url"); link != "" {
		r.URL = n.absoluteURL(link)
	}
	return r
}

// base starts a record with the site identity and raw payload attached
func (n *Normalizer) base(sourceURL, query string, source record.SourceKind, raw extract.RawProduct) record.ProductRecord {
	r := record.New(n.siteSlug, n.store)
	r.URL = sourceURL
	r.QueryCategory = query
	r.SourceKind = source
	r.RawSource = map[string]interface{}(raw)
	return r
}

// applyUnitPrice fills the unit-price fields for page-state records: the
// upstream pricing fields first, then the sizing text's embedded unit price,
// then derivation from the size text
func (n *Normalizer) applyUnitPrice(r *record.ProductRecord, pricing map[string]interface{}) {
	if up := ParsePrice(pricing["unitPrice"]); up != nil {
		r.UnitPrice = up
		if unit, ok := pricing["unit"].(string); ok {
			r.UnitPriceUOM = unit
		}
		return
	}
	if declared := ParsePackageSizing(r.SizeText); declared != nil {
		r.UnitPrice = record.FloatPtr(declared.Price)
		r.UnitPriceUOM = declared.UOM
		return
	}
	n.deriveUnitPrice(r)
}

// deriveUnitPrice derives unit price from total price and size text when
// both are present; both fields stay null on parse failure
func (n *Normalizer) deriveUnitPrice(r *record.ProductRecord) {
	if r.Price == nil || r.SizeText == "" {
		return
	}
	if derived := DeriveUnitPrice(*r.Price, r.SizeText); derived != nil {
		r.UnitPrice = record.FloatPtr(derived.Price)
		r.UnitPriceUOM = derived.UOM
	}
}

// absoluteURL resolves a possibly-relative link against the site base
func (n *Normalizer) absoluteURL(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return n.baseURL + link
}

// pageStateImage resolves the image URL across the two image structures the
// storefront has shipped
func pageStateImage(raw extract.RawProduct) string {
	if images, ok := raw["productImage"].([]interface{}); ok && len(images) > 0 {
		if img, ok := images[0].(map[string]interface{}); ok {
			if url := str(img, "largeUrl", "mediumUrl", "imageUrl"); url != "" {
				return url
			}
		}
	}
	return str(subMap(raw, "imageAssets"), "largeUrl", "mediumUrl")
}

// joinBreadcrumbs joins breadcrumb names into a category path
func joinBreadcrumbs(v interface{}) string {
	crumbs, ok := v.([]interface{})
	if !ok {
		return ""
	}
	var names []string
	for _, crumb := range crumbs {
		if m, ok := crumb.(map[string]interface{}); ok {
			if name, ok := m["name"].(string); ok && name != "" {
				names = append(names, name)
			}
		}
	}
	return strings.Join(names, " > ")
}

// hitCategory prefers the deepest hierarchical category level, falling back
// to the flat categories array
func hitCategory(raw extract.RawProduct) string {
	if hier, ok := raw["hierarchicalCategories"].(map[string]interface{}); ok {
		for _, level := range []string{"lvl2", "lvl1", "lvl0"} {
			switch v := hier[level].(type) {
			case []interface{}:
				if len(v) > 0 {
					if s, ok := v[0].(string); ok && s != "" {
						return s
					}
				}
			case string:
				if v != "" {
					return v
				}
			}
		}
	}
	if cats, ok := raw["categories"].([]interface{}); ok && len(cats) > 0 {
		var names []string
		for _, c := range cats {
			if s, ok := c.(string); ok {
				names = append(names, s)
			}
		}
		return strings.Join(names, " > ")
	}
	return ""
}

// str returns the first non-empty string value among the given keys
func str(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// subMap returns a nested object value, or an empty map
func subMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}
