package scraper

import (
	"mkettler/groceryworker/internal/extract"
)

// Platform names how a storefront is fetched and where its product data
// lives. Sites sharing a platform share one profile shape; per-site behavior
// is configuration, not subclassing.
type Platform string

const (
	// PlatformEmbeddedJSON: server-rendered pages carrying a page-state
	// blob, fetched over plain HTTP
	PlatformEmbeddedJSON Platform = "embedded-json"

	// PlatformBrowser: bot-protected storefronts needing the browser
	// service; extraction still runs the full HTML chain
	PlatformBrowser Platform = "browser"

	// PlatformSearchAPI: a hosted search index queried directly, with the
	// browser+DOM path as declared fallback
	PlatformSearchAPI Platform = "search-api"
)

// Profile is the per-site strategy configuration
type Profile struct {
	Slug       string
	Platform   Platform
	Selectors  extract.Selectors
	MultiStore bool
}

// profiles is the site registry. The two Loblaw-network banners share the
// embedded-JSON profile; the two Empire banners share the browser profile;
// the API driver rotates store contexts.
var profiles = map[string]Profile{
	"realcanadiansuperstore": {
		Slug:      "realcanadiansuperstore",
		Platform:  PlatformEmbeddedJSON,
		Selectors: extract.DefaultSelectors(),
	},
	"nofrills": {
		Slug:      "nofrills",
		Platform:  PlatformEmbeddedJSON,
		Selectors: extract.DefaultSelectors(),
	},
	"safeway": {
		Slug:      "safeway",
		Platform:  PlatformBrowser,
		Selectors: extract.DefaultSelectors(),
	},
	"sobeys": {
		Slug:      "sobeys",
		Platform:  PlatformBrowser,
		Selectors: extract.DefaultSelectors(),
	},
	"sobeys-api": {
		Slug:       "sobeys-api",
		Platform:   PlatformSearchAPI,
		Selectors:  extract.DefaultSelectors(),
		MultiStore: true,
	},
}

// ProfileFor looks up the registered profile for a site slug
func ProfileFor(slug string) (Profile, bool) {
	p, ok := profiles[slug]
	return p, ok
}

// RegisteredSites lists the slugs with a profile, for CLI validation
func RegisteredSites() []string {
	out := make([]string, 0, len(profiles))
	for slug := range profiles {
		out = append(out, slug)
	}
	return out
}
