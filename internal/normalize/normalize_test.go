package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/extract"
	"mkettler/groceryworker/internal/record"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(&config.Site{
		SiteSlug:  "realcanadiansuperstore",
		StoreName: "Real Canadian Superstore",
		BaseURL:   "https://www.realcanadiansuperstore.ca",
	})
}

func TestFromPageStateCurrentSchema(t *testing.T) {
	n := testNormalizer()

	raw := extract.RawProduct{
		"productId":     "21204917",
		"title":         "2% Milk",
		"brand":         "Beatrice",
		"packageSizing": "2 L",
		"pricing":       map[string]interface{}{"price": 4.99},
		"productImage": []interface{}{
			map[string]interface{}{"largeUrl": "https://cdn.example.com/milk-lg.jpg"},
		},
		"breadcrumbs": []interface{}{
			map[string]interface{}{"name": "Dairy & Eggs"},
			map[string]interface{}{"name": "Milk"},
		},
	}

	r := n.FromPageState(raw, "https://www.realcanadiansuperstore.ca/search?search-bar=milk", "milk")

	assert.Equal(t, "21204917", r.ExternalID)
	assert.Equal(t, "2% Milk", r.Name)
	assert.Equal(t, "Beatrice", r.Brand)
	assert.Equal(t, "2 L", r.SizeText)
	require.NotNil(t, r.Price)
	assert.InDelta(t, 4.99, *r.Price, 0.001)
	require.NotNil(t, r.UnitPrice)
	assert.InDelta(t, 2.50, *r.UnitPrice, 0.001)
	assert.Equal(t, "L", r.UnitPriceUOM)
	assert.Equal(t, "https://cdn.example.com/milk-lg.jpg", r.ImageURL)
	assert.Equal(t, "Dairy & Eggs > Milk", r.CategoryPath)
	assert.Equal(t, record.InStock, r.Availability)
	assert.Equal(t, "milk", r.QueryCategory)
	assert.Equal(t, record.SourceEmbeddedJSON, r.SourceKind)
	assert.True(t, r.Validate())
}

func TestFromPageStateLegacySchema(t *testing.T) {
	n := testNormalizer()

	raw := extract.RawProduct{
		"code":        "C123",
		"name":        "Orange Juice",
		"packageSize": "1.75 L",
		"pricing":     map[string]interface{}{"price": "$3.99"},
		"imageAssets": map[string]interface{}{"mediumUrl": "https://cdn.example.com/oj.jpg"},
	}

	r := n.FromPageState(raw, "", "")
	assert.Equal(t, "C123", r.ExternalID)
	assert.Equal(t, "Orange Juice", r.Name)
	require.NotNil(t, r.Price)
	assert.InDelta(t, 3.99, *r.Price, 0.001)
	assert.Equal(t, "https://cdn.example.com/oj.jpg", r.ImageURL)
}

func TestFromPageStateInventoryIndicator(t *testing.T) {
	n := testNormalizer()

	out := n.FromPageState(extract.RawProduct{"title": "x", "inventoryIndicator": "OUT_OF_STOCK"}, "", "")
	assert.Equal(t, record.OutOfStock, out.Availability)

	low := n.FromPageState(extract.RawProduct{"title": "x", "inventoryIndicator": "LOW_STOCK"}, "", "")
	assert.Equal(t, record.InStock, low.Availability)

	none := n.FromPageState(extract.RawProduct{"title": "x"}, "", "")
	assert.Equal(t, record.InStock, none.Availability)
}

func TestFromPageStateDeclaredUnitPriceWins(t *testing.T) {
	n := testNormalizer()

	raw := extract.RawProduct{
		"title":         "Oat Beverage",
		"packageSizing": "1 l, $0.43/100ml",
		"pricing":       map[string]interface{}{"price": 4.29},
	}

	r := n.FromPageState(raw, "", "")
	require.NotNil(t, r.UnitPrice)
	assert.InDelta(t, 0.43, *r.UnitPrice, 0.001)
	assert.Equal(t, "100ml", r.UnitPriceUOM)
}

func TestFromLinkedData(t *testing.T) {
	n := testNormalizer()

	raw := extract.RawProduct{
		"@type":       "Product",
		"sku":         "ld-77",
		"name":        "Salted Butter",
		"description": "454 g",
		"brand":       map[string]interface{}{"name": "Lactantia"},
		"image":       "https://cdn.example.com/butter.jpg",
		"offers": map[string]interface{}{
			"price":         "7.49",
			"priceCurrency": "CAD",
			"availability":  "https://schema.org/InStock",
		},
	}

	r := n.FromLinkedData(raw, "https://example.com/p", "")
	assert.Equal(t, "ld-77", r.ExternalID)
	assert.Equal(t, "Lactantia", r.Brand)
	require.NotNil(t, r.Price)
	assert.InDelta(t, 7.49, *r.Price, 0.001)
	assert.Equal(t, record.InStock, r.Availability)
	// 454 g derives against the kg comparison unit
	require.NotNil(t, r.UnitPrice)
	assert.InDelta(t, 16.50, *r.UnitPrice, 0.01)
	assert.Equal(t, "kg", r.UnitPriceUOM)
}

func TestFromSearchHit(t *testing.T) {
	n := NewNormalizer(&config.Site{
		SiteSlug:  "sobeys-api",
		StoreName: "Sobeys",
		BaseURL:   "https://www.sobeys.com",
	})

	raw := extract.RawProduct{
		"objectID": "obj-1",
		"name":     "Bananas",
		"price":    1.99,
		"weight":   "1",
		"uom":      "kg",
		"upc":      "06383112,06383113",
		"inStock":  true,
		"pageSlug": "bananas-yellow",
		"images":   []interface{}{"https://cdn.example.com/banana.jpg"},
		"hierarchicalCategories": map[string]interface{}{
			"lvl0": []interface{}{"Fruits & Vegetables"},
			"lvl2": []interface{}{"Fruits & Vegetables > Fruits > Tropical"},
		},
	}

	r := n.FromSearchHit(raw, "bananas")
	assert.Equal(t, "06383112", r.ExternalID)
	assert.Equal(t, "1 kg", r.SizeText)
	assert.Equal(t, "Fruits & Vegetables > Fruits > Tropical", r.CategoryPath)
	assert.Equal(t, record.InStock, r.Availability)
	assert.Equal(t, "https://www.sobeys.com/product/bananas-yellow", r.URL)
	assert.Equal(t, "https://cdn.example.com/banana.jpg", r.ImageURL)
	// No declared unit price, so it derives from "1 kg" @ 1.99
	require.NotNil(t, r.UnitPrice)
	assert.InDelta(t, 1.99, *r.UnitPrice, 0.001)
}

func TestFromSearchHitOutOfStock(t *testing.T) {
	n := testNormalizer()
	r := n.FromSearchHit(extract.RawProduct{"name": "x", "inStock": false}, "")
	assert.Equal(t, record.OutOfStock, r.Availability)
}

func TestFromDOM(t *testing.T) {
	n := NewNormalizer(&config.Site{
		SiteSlug:  "sobeys",
		StoreName: "Sobeys",
		BaseURL:   "https://www.sobeys.com",
	})

	raw := extract.RawProduct{
		"name":        "Green Grapes",
		"price_text":  "$3.99",
		"brand":       "Compliments",
		"image_url":   "https://cdn.example.com/grapes.jpg",
		"url":         "/product/green-grapes",
		"external_id": "sku-55",
	}

	r := n.FromDOM(raw, "https://www.sobeys.com/search?search-bar=grapes", "grapes")
	assert.Equal(t, "sku-55", r.ExternalID)
	require.NotNil(t, r.Price)
	assert.InDelta(t, 3.99, *r.Price, 0.001)
	assert.Equal(t, "https://www.sobeys.com/product/green-grapes", r.URL)
	assert.Equal(t, record.Unknown, r.Availability)
	assert.Equal(t, record.SourceDOM, r.SourceKind)
}

func TestNormalizeDispatch(t *testing.T) {
	n := testNormalizer()

	r := n.Normalize(extract.RawProduct{"title": "Dispatch"}, record.SourceEmbeddedJSON, "", "")
	assert.Equal(t, record.SourceEmbeddedJSON, r.SourceKind)
	assert.Equal(t, "Dispatch", r.Name)
}
