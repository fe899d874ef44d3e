package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mkettler/groceryworker/internal/record"
	"mkettler/groceryworker/logger"
)

// pageStateScriptID is the script tag carrying the server-rendered state blob
const pageStateScriptID = "__NEXT_DATA__"

// PageStateExtractor pulls products out of the embedded page-state JSON.
// The upstream schema is versioned: the current layout path is tried first,
// then the legacy direct-products path, for both the search and category
// state objects.
type PageStateExtractor struct {
	site string
	log  *logger.Logger
}

// NewPageStateExtractor creates an extractor for one site's pages
func NewPageStateExtractor(site string) *PageStateExtractor {
	return &PageStateExtractor{site: site, log: logger.ForScraper(site)}
}

// Extract locates the page-state script in a parsed document and extracts
// products plus pagination from it
func (e *PageStateExtractor) Extract(doc *goquery.Document) Result {
	blob := pageStateBlob(doc)
	if blob == "" {
		e.log.Debug().Msg("No page-state script tag found")
		return Result{Source: record.SourceEmbeddedJSON}
	}
	return e.ExtractJSON([]byte(blob))
}

// ExtractJSON extracts products from a raw page-state JSON document
func (e *PageStateExtractor) ExtractJSON(blob []byte) Result {
	result := Result{Source: record.SourceEmbeddedJSON}

	var state map[string]interface{}
	if err := json.Unmarshal(blob, &state); err != nil {
		e.log.Debug().Err(err).Msg("Page-state blob is not valid JSON")
		return result
	}

	pageProps := dig(state, "props", "pageProps")
	if pageProps == nil {
		return result
	}

	// Search state first, then the category-page variant of the same schema
	for _, key := range []string{"initialSearchData", "initialCategoryData"} {
		data := asMap(pageProps[key])
		if data == nil {
			continue
		}

		products := productsFromLayout(data)
		if len(products) == 0 {
			// Legacy schema carried products directly on the state object
			products = rawProducts(asSlice(data["products"]))
			if len(products) > 0 {
				e.log.Debug().Str("path", key+".products").Int("count", len(products)).
					Msg("Products found via legacy page-state path")
			}
		} else {
			e.log.Debug().Str("path", key+".layout").Int("count", len(products)).
				Msg("Products found via layout page-state path")
		}

		if len(products) > 0 {
			result.Products = products
			result.Pagination = paginationFrom(data)
			return result
		}
	}

	e.log.Debug().Msg("No products in any known page-state path")
	return result
}

// pageStateBlob returns the raw JSON text of the page-state script, or ""
func pageStateBlob(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("script#" + pageStateScriptID).First().Text())
}

// productsFromLayout walks the current-schema path:
// layout -> sections -> mainContentCollection -> components[i] -> data.productTiles
func productsFromLayout(data map[string]interface{}) []RawProduct {
	layout := asMap(data["layout"])
	if layout == nil {
		return nil
	}

	var products []RawProduct
	for _, component := range layoutComponents(layout) {
		tiles := asSlice(asMap(component["data"])["productTiles"])
		products = append(products, rawProducts(tiles)...)
	}
	return products
}

// layoutComponents collects the component objects under the main content
// section. The sections container is an object keyed by section name in the
// current schema, but an ordered array of section objects in some renders;
// both forms are walked.
func layoutComponents(layout map[string]interface{}) []map[string]interface{} {
	var sectionObjects []map[string]interface{}

	switch sections := layout["sections"].(type) {
	case map[string]interface{}:
		if main := asMap(sections["mainContentCollection"]); main != nil {
			sectionObjects = append(sectionObjects, main)
		}
	case []interface{}:
		for _, item := range sections {
			section := asMap(item)
			if section == nil {
				continue
			}
			if name, _ := section["name"].(string); name != "" && name != "mainContentCollection" {
				continue
			}
			sectionObjects = append(sectionObjects, section)
		}
	}

	var components []map[string]interface{}
	for _, section := range sectionObjects {
		for _, item := range asSlice(section["components"]) {
			if component := asMap(item); component != nil {
				components = append(components, component)
			}
		}
	}
	return components
}

// paginationFrom extracts pagination metadata from a page-state data object,
// trying the component path first, then the legacy direct key
func paginationFrom(data map[string]interface{}) *Pagination {
	if layout := asMap(data["layout"]); layout != nil {
		for _, component := range layoutComponents(layout) {
			if p := asMap(asMap(component["data"])["pagination"]); p != nil {
				return parsePagination(p)
			}
		}
	}
	if p := asMap(data["pagination"]); p != nil {
		return parsePagination(p)
	}
	return nil
}

// parsePagination maps the upstream pagination object to Pagination
func parsePagination(p map[string]interface{}) *Pagination {
	out := &Pagination{}
	if v, ok := p["hasMore"].(bool); ok {
		out.HasMore = boolPtr(v)
	}
	if v, ok := p["pageNumber"].(float64); ok {
		out.Current = int(v)
	}
	if v, ok := p["totalPages"].(float64); ok {
		out.Total = int(v)
	}
	return out
}

// rawProducts converts a decoded JSON array into RawProducts, skipping
// non-object entries
func rawProducts(items []interface{}) []RawProduct {
	var out []RawProduct
	for _, item := range items {
		if m := asMap(item); m != nil {
			out = append(out, RawProduct(m))
		}
	}
	return out
}
