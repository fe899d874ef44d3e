package extract

import (
	"encoding/json"

	"mkettler/groceryworker/internal/record"
	"mkettler/groceryworker/logger"
)

// SearchHitsExtractor pulls products out of a hosted-search response. Both
// the single-query shape ({hits, page, nbPages}) and the multi-query shape
// ({results: [{hits, ...}]}) are handled.
type SearchHitsExtractor struct {
	site string
	log  *logger.Logger
}

// NewSearchHitsExtractor creates an extractor for one site's API responses
func NewSearchHitsExtractor(site string) *SearchHitsExtractor {
	return &SearchHitsExtractor{site: site, log: logger.ForScraper(site)}
}

// Extract parses one raw search-API response body
func (e *SearchHitsExtractor) Extract(payload []byte) Result {
	result := Result{Source: record.SourceSearchAPI}

	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		e.log.Debug().Err(err).Msg("Search response is not valid JSON")
		return result
	}

	body := data
	if results := asSlice(data["results"]); len(results) > 0 {
		if first := asMap(results[0]); first != nil {
			body = first
		}
	}

	result.Products = rawProducts(asSlice(body["hits"]))
	result.Pagination = searchPagination(body)

	e.log.Debug().Int("count", len(result.Products)).Msg("Search API hits extracted")
	return result
}

// searchPagination maps the response's page counters onto Pagination. The
// API pages from zero; Current is reported one-based to match the paging
// loop's convention.
func searchPagination(body map[string]interface{}) *Pagination {
	page, hasPage := body["page"].(float64)
	total, hasTotal := body["nbPages"].(float64)
	if !hasPage && !hasTotal {
		return nil
	}

	p := &Pagination{}
	if hasPage {
		p.Current = int(page) + 1
	}
	if hasTotal {
		p.Total = int(total)
		p.HasMore = boolPtr(p.Current < p.Total)
	}
	return p
}
