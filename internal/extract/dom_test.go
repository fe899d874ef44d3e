package extract

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	require.NoError(t, err)
	return doc
}

func TestDOMExtractorScrapesFields(t *testing.T) {
	e := NewDOMExtractor("sobeys", DefaultSelectors())

	doc := docFrom(t, `
		<html><body>
		<div data-testid="product-tile" data-product-id="sku-100">
			<h3>Whole Milk 2L</h3>
			<span class="brand-label">Dairyland</span>
			<span class="price">$4.99</span>
			<img src="https://cdn.example.com/milk.jpg">
			<a href="/product/whole-milk-2l">view</a>
		</div>
		<div data-testid="product-tile">
			<h3>White Bread</h3>
			<span class="price">$2.49</span>
		</div>
		</body></html>`)

	result := e.Extract(doc)
	require.Len(t, result.Products, 2)

	first := result.Products[0]
	assert.Equal(t, "Whole Milk 2L", first["name"])
	assert.Equal(t, "Dairyland", first["brand"])
	assert.Equal(t, "$4.99", first["price_text"])
	assert.Equal(t, "https://cdn.example.com/milk.jpg", first["image_url"])
	assert.Equal(t, "/product/whole-milk-2l", first["url"])
	assert.Equal(t, "sku-100", first["external_id"])

	second := result.Products[1]
	assert.Equal(t, "White Bread", second["name"])
	assert.NotContains(t, second, "external_id")
}

func TestDOMExtractorContainerOrder(t *testing.T) {
	e := NewDOMExtractor("sobeys", DefaultSelectors())

	// Both candidate containers are present; the higher-priority selector
	// must pick its matches, not the union
	doc := docFrom(t, `
		<html><body>
		<div data-testid="product-tile"><h3>Tile Product</h3></div>
		<div class="product-card"><h3>Card Product</h3></div>
		</body></html>`)

	result := e.Extract(doc)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "Tile Product", result.Products[0]["name"])
}

func TestDOMExtractorNameFirstLineFallback(t *testing.T) {
	e := NewDOMExtractor("sobeys", Selectors{
		Containers: []string{".product-tile"},
		Name:       []string{".no-such-thing"},
	})

	doc := docFrom(t, `
		<html><body>
		<div class="product-tile">

			Green Grapes 1lb
			$3.99
		</div>
		</body></html>`)

	result := e.Extract(doc)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "Green Grapes 1lb", result.Products[0]["name"])
}

func TestDOMExtractorNoContainers(t *testing.T) {
	e := NewDOMExtractor("sobeys", DefaultSelectors())
	result := e.Extract(docFrom(t, `<html><body><p>nothing here</p></body></html>`))
	assert.Empty(t, result.Products)
}
