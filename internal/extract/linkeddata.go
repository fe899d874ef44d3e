package extract

import (
	"encoding/json"

	"github.com/PuerkitoBio/goquery"

	"mkettler/groceryworker/internal/record"
	"mkettler/groceryworker/logger"
)

// LinkedDataExtractor pulls products from application/ld+json blocks.
// ProductCollection blocks contribute their Product items; standalone
// Product blocks contribute themselves.
type LinkedDataExtractor struct {
	site string
	log  *logger.Logger
}

// NewLinkedDataExtractor creates an extractor for one site's pages
func NewLinkedDataExtractor(site string) *LinkedDataExtractor {
	return &LinkedDataExtractor{site: site, log: logger.ForScraper(site)}
}

// Extract scans every linked-data script in the document
func (e *LinkedDataExtractor) Extract(doc *goquery.Document) Result {
	result := Result{Source: record.SourceLinkedData}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			e.log.Debug().Err(err).Msg("Skipping unparseable linked-data block")
			return
		}

		switch data["@type"] {
		case "ProductCollection":
			for _, item := range asSlice(data["itemListElement"]) {
				product := asMap(item)
				if product != nil && product["@type"] == "Product" {
					result.Products = append(result.Products, RawProduct(product))
				}
			}
		case "Product":
			result.Products = append(result.Products, RawProduct(data))
		}
	})

	if len(result.Products) > 0 {
		e.log.Debug().Int("count", len(result.Products)).Msg("Products found in linked data")
	}
	return result
}
