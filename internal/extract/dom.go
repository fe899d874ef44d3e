package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mkettler/groceryworker/internal/record"
	"mkettler/groceryworker/logger"
)

// Selectors is the ordered selector configuration for DOM scraping. Within
// each list the first selector that matches wins; Containers picks the
// per-product elements, the rest pick fields within each element.
type Selectors struct {
	Containers []string
	Name       []string
	Price      []string
	Brand      []string
	Image      []string
	Link       []string
	ID         []string
}

// DefaultSelectors is the selector set shared by the grocery storefronts,
// most site-specific candidates first
func DefaultSelectors() Selectors {
	return Selectors{
		Containers: []string{
			`[data-testid*="product"]`,
			`[data-testid="product-tile"]`,
			`[data-testid="product-card"]`,
			`[data-component="product-tile"]`,
			`.product-tile`,
			`.product-card`,
			`[class*="ProductTile"]`,
			`[class*="ProductCard"]`,
			`article[class*="product"]`,
			`div[class*="product-item"]`,
		},
		Name: []string{
			`[data-testid="product-title"]`,
			`[class*="product-title"]`,
			`[class*="ProductTitle"]`,
			`[class*="product-name"]`,
			`[class*="ProductName"]`,
			`h3`,
			`h4`,
			`h2`,
			`a[href*="product"]`,
			`span[class*="name"]`,
			`div[class*="title"]`,
		},
		Price: []string{
			`[data-testid="product-price"]`,
			`[class*="price"]`,
			`[class*="Price"]`,
			`span[class*="amount"]`,
			`div[class*="cost"]`,
		},
		Brand: []string{
			`[data-testid="product-brand"]`,
			`[class*="brand"]`,
			`[class*="Brand"]`,
		},
		Image: []string{`img`},
		Link:  []string{`a[href*="product"]`, `a[href]`},
		ID: []string{
			`[data-product-id]`,
			`[data-product-code]`,
			`[data-sku]`,
		},
	}
}

// DOMExtractor scrapes product fields straight off rendered markup. It is
// the last strategy in the chain, used when no structured payload is
// present on the page.
type DOMExtractor struct {
	site      string
	selectors Selectors
	log       *logger.Logger
}

// NewDOMExtractor creates a DOM extractor with the given selector set
func NewDOMExtractor(site string, selectors Selectors) *DOMExtractor {
	if len(selectors.Containers) == 0 {
		selectors = DefaultSelectors()
	}
	return &DOMExtractor{site: site, selectors: selectors, log: logger.ForScraper(site)}
}

// Extract walks the container candidates in order and scrapes each matched
// element into a RawProduct
func (e *DOMExtractor) Extract(doc *goquery.Document) Result {
	result := Result{Source: record.SourceDOM}

	var elements *goquery.Selection
	for _, selector := range e.selectors.Containers {
		found := doc.Find(selector)
		if found.Length() > 0 {
			e.log.Debug().Str("selector", selector).Int("count", found.Length()).
				Msg("Product containers matched")
			elements = found
			break
		}
	}
	if elements == nil {
		e.log.Debug().Msg("No product containers matched any selector")
		return result
	}

	elements.Each(func(_ int, el *goquery.Selection) {
		product := e.scrapeElement(el)
		if product != nil {
			result.Products = append(result.Products, product)
		}
	})
	return result
}

// scrapeElement extracts one product's fields from a container element
func (e *DOMExtractor) scrapeElement(el *goquery.Selection) RawProduct {
	name := firstText(el, e.selectors.Name)
	if name == "" {
		// The leading line of the element's text is the name more often
		// than not on tiles with no stable markup
		name = firstNonBlankLine(el.Text())
	}
	if name == "" {
		return nil
	}

	product := RawProduct{"name": name}

	if price := firstText(el, e.selectors.Price); price != "" {
		product["price_text"] = price
	}
	if brand := firstText(el, e.selectors.Brand); brand != "" {
		product["brand"] = brand
	}
	if img := firstAttr(el, e.selectors.Image, "src", "data-src"); img != "" {
		product["image_url"] = img
	}
	if link := firstAttr(el, e.selectors.Link, "href"); link != "" {
		product["url"] = link
	}
	if id := e.elementID(el); id != "" {
		product["external_id"] = id
	}
	return product
}

// elementID resolves a product identifier from the container itself or the
// configured ID sub-selectors
func (e *DOMExtractor) elementID(el *goquery.Selection) string {
	idAttrs := []string{"data-product-id", "data-product-code", "data-sku"}
	for _, attr := range idAttrs {
		if v, ok := el.Attr(attr); ok && v != "" {
			return v
		}
	}
	for _, selector := range e.selectors.ID {
		sub := el.Find(selector).First()
		if sub.Length() == 0 {
			continue
		}
		for _, attr := range idAttrs {
			if v, ok := sub.Attr(attr); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

// firstText returns the trimmed text of the first selector that matches
// with non-empty content
func firstText(el *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(el.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value among the given
// attribute names on the first matching selector
func firstAttr(el *goquery.Selection, selectors []string, attrs ...string) string {
	for _, selector := range selectors {
		sub := el.Find(selector).First()
		if sub.Length() == 0 {
			continue
		}
		for _, attr := range attrs {
			if v, ok := sub.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// firstNonBlankLine returns the first line of text with visible content
func firstNonBlankLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
