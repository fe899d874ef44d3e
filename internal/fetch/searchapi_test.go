package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mkettler/groceryworker/config"
)

func apiSite() *config.Site {
	return &config.Site{
		SiteSlug:  "sobeys-api",
		StoreName: "Sobeys",
		BaseURL:   "https://www.sobeys.com",
		SearchAPI: config.SearchAPIConfig{
			Enabled:     true,
			AppID:       "TESTAPP",
			APIKey:      "test-key",
			IndexName:   "products_ca",
			BaseURL:     "https://testapp-dsn.algolia.net",
			HitsPerPage: 48,
		},
	}
}

func TestSearchAPIFetcherDisabledWithoutCredentials(t *testing.T) {
	site := apiSite()
	site.SearchAPI.APIKey = ""

	s := NewSearchAPIFetcher(site)
	assert.False(t, s.Enabled())

	_, err := s.Search(context.Background(), "milk", 0, "")
	assert.Error(t, err)
}

func TestSearchAPIFetcherQuery(t *testing.T) {
	s := NewSearchAPIFetcher(apiSite())
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	var gotBody map[string]interface{}
	var gotAppID, gotAPIKey string

	httpmock.RegisterResponder("POST",
		"https://testapp-dsn.algolia.net/1/indexes/products_ca/query",
		func(req *http.Request) (*http.Response, error) {
			gotAppID = req.Header.Get("X-Algolia-Application-Id")
			gotAPIKey = req.Header.Get("X-Algolia-API-Key")
			raw, _ := io.ReadAll(req.Body)
			json.Unmarshal(raw, &gotBody)
			return httpmock.NewStringResponse(200, `{"hits":[{"name":"Milk"}],"page":0,"nbPages":3}`), nil
		})

	payload, err := s.Search(context.Background(), "milk", 0, "0320")
	require.NoError(t, err)

	assert.Equal(t, "TESTAPP", gotAppID)
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, "milk", gotBody["query"])
	assert.Equal(t, float64(48), gotBody["hitsPerPage"])

	// Store context rides along as a facet filter
	filters := gotBody["facetFilters"].([]interface{})
	inner := filters[0].([]interface{})
	assert.Equal(t, "storeId:0320", inner[0])

	assert.Contains(t, string(payload), `"nbPages":3`)
}

func TestSearchAPIFetcherOmitsStoreFilterWhenEmpty(t *testing.T) {
	s := NewSearchAPIFetcher(apiSite())
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	var gotBody map[string]interface{}
	httpmock.RegisterResponder("POST",
		"https://testapp-dsn.algolia.net/1/indexes/products_ca/query",
		func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			json.Unmarshal(raw, &gotBody)
			return httpmock.NewStringResponse(200, `{"hits":[]}`), nil
		})

	_, err := s.Search(context.Background(), "bread", 1, "")
	require.NoError(t, err)

	_, hasFilter := gotBody["facetFilters"]
	assert.False(t, hasFilter)
	assert.Equal(t, float64(1), gotBody["page"])
}

func TestSearchAPIFetcherErrorStatuses(t *testing.T) {
	s := NewSearchAPIFetcher(apiSite())
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("POST",
		"https://testapp-dsn.algolia.net/1/indexes/products_ca/query",
		httpmock.NewStringResponder(500, "server error"))

	_, err := s.Search(context.Background(), "milk", 0, "")
	assert.Error(t, err)
}
