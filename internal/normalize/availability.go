package normalize

import (
	"strings"

	"mkettler/groceryworker/internal/record"
)

// Availability vocabulary tables, one per source family. Unrecognized
// values map to unknown; only an entirely absent signal may be asserted
// as in-stock, and only where the caller documents that assumption.

// FromInventoryIndicator maps the storefront inventory indicator
// ("OUT_OF_STOCK", "LOW_STOCK", "IN_STOCK" and variants) to the enum.
// Low stock still means purchasable.
func FromInventoryIndicator(indicator string) record.Availability {
	upper := strings.ToUpper(indicator)
	switch {
	case strings.Contains(upper, "OUT"):
		return record.OutOfStock
	case strings.Contains(upper, "LOW"):
		return record.InStock
	case strings.HasPrefix(upper, "IN"):
		return record.InStock
	}
	return record.Unknown
}

// FromSchemaOrg maps a schema.org offer availability URL or token
func FromSchemaOrg(availability string) record.Availability {
	lower := strings.ToLower(availability)
	switch {
	case strings.Contains(lower, "instock"):
		return record.InStock
	case strings.Contains(lower, "outofstock"):
		return record.OutOfStock
	}
	return record.Unknown
}

// FromStockFlag maps a boolean in-stock flag
func FromStockFlag(inStock bool) record.Availability {
	if inStock {
		return record.InStock
	}
	return record.OutOfStock
}
