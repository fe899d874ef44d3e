package stores

import (
	mathrand "math/rand"
	"strings"
	"time"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/logger"
)

// defaultStores are the fallback Alberta storefronts used when a site
// config carries no store list
var defaultStores = []config.Store{
	{ID: "0320", Name: "Sobeys Airdrie", City: "Airdrie", Province: "AB"},
	{ID: "0315", Name: "Sobeys Shawnessy", City: "Calgary", Province: "AB"},
	{ID: "0348", Name: "Sobeys Signal Hill", City: "Calgary", Province: "AB"},
	{ID: "0325", Name: "Sobeys Crowfoot", City: "Calgary", Province: "AB"},
	{ID: "0521", Name: "Sobeys Riverbend", City: "Edmonton", Province: "AB"},
	{ID: "0515", Name: "Sobeys Summerside", City: "Edmonton", Province: "AB"},
	{ID: "0530", Name: "Sobeys Windermere", City: "Edmonton", Province: "AB"},
	{ID: "0535", Name: "Sobeys St. Albert", City: "St. Albert", Province: "AB"},
}

// Rotator fans a single query out across regional storefronts to capture
// location-dependent pricing
type Rotator struct {
	stores  []config.Store
	mode    string // all | sample | single
	current int

	rnd *mathrand.Rand
}

// NewRotator creates a rotator from the store-rotation sub-config, falling
// back to the default store list when none is configured
func NewRotator(cfg config.StoreRotationConfig) *Rotator {
	stores := cfg.Stores
	if len(stores) == 0 {
		logger.Info("No stores configured, using default store list")
		stores = defaultStores
	}

	mode := cfg.Mode
	if mode == "" {
		mode = "all"
	}

	logger.Info("Store rotator initialized with %d stores (mode: %s)", len(stores), mode)
	return &Rotator{
		stores: stores,
		mode:   mode,
		rnd:    mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

// Current returns the store at the rotation cursor
func (r *Rotator) Current() config.Store {
	return r.stores[r.current]
}

// All returns every configured store
func (r *Rotator) All() []config.Store {
	return r.stores
}

// StoresForQuery returns the stores to query under the configured mode:
// every store ("all"), a random subset defaulting to half ("sample"), or
// just the first ("single").
func (r *Rotator) StoresForQuery() []config.Store {
	switch r.mode {
	case "single":
		return r.stores[:1]

	case "sample":
		size := len(r.stores) / 2
		if size < 1 {
			size = 1
		}
		picked := r.rnd.Perm(len(r.stores))[:size]
		sample := make([]config.Store, 0, size)
		for _, i := range picked {
			sample = append(sample, r.stores[i])
		}
		return sample

	default:
		return r.stores
	}
}

// Rotate advances the cursor to the next store
func (r *Rotator) Rotate() config.Store {
	r.current = (r.current + 1) % len(r.stores)
	return r.stores[r.current]
}

// Reset moves the cursor back to the first store
func (r *Rotator) Reset() {
	r.current = 0
}

// ByCity returns the stores in a city, case-insensitively
func (r *Rotator) ByCity(city string) []config.Store {
	var out []config.Store
	for _, s := range r.stores {
		if strings.EqualFold(s.City, city) {
			out = append(out, s)
		}
	}
	return out
}

// ByProvince returns the stores in a province code
func (r *Rotator) ByProvince(province string) []config.Store {
	var out []config.Store
	for _, s := range r.stores {
		if strings.EqualFold(s.Province, province) {
			out = append(out, s)
		}
	}
	return out
}
