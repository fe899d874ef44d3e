package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit-price derivation from free-text size strings. Quantities normalize
// into the three comparison units used across the records: L for volume,
// kg for weight, EA for counts.

var (
	multiPackPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*[x×]\s*(\d+(?:\.\d+)?)\s*(ml|l|g|kg|ea|each|ct|count|pk|pack)\b`)
	singleQtyPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ml|l|g|kg|ea|each|ct|count|pk|pack)\b`)

	// "1 l, $0.43/100ml" — an explicit unit price embedded in sizing text
	packageSizingPattern = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)\s*/\s*([a-zA-Z0-9 ]+)`)
)

// UnitPrice is a derived or upstream-declared price per normalized unit
type UnitPrice struct {
	Price float64
	UOM   string
}

// ParsePackageSizing extracts an explicit unit price from sizing text like
// "1 l, $0.43/100ml". The upstream UOM text is kept verbatim; it is a
// declared value, not a derived one.
func ParsePackageSizing(text string) *UnitPrice {
	match := packageSizingPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	price, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return &UnitPrice{Price: price, UOM: strings.TrimSpace(match[2])}
}

// DeriveUnitPrice computes price per normalized unit from the total price
// and a free-text size string. Multi-pack patterns ("12 x 355 ml") multiply
// out before normalizing. Returns nil when the size text carries no
// recognizable quantity; the caller leaves both unit fields null rather
// than guess.
func DeriveUnitPrice(price float64, sizeText string) *UnitPrice {
	if sizeText == "" || price <= 0 {
		return nil
	}

	var quantity float64
	var unit string

	if m := multiPackPattern.FindStringSubmatch(sizeText); m != nil {
		count, err1 := strconv.ParseFloat(m[1], 64)
		each, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return nil
		}
		quantity = count * each
		unit = m[3]
	} else if m := singleQtyPattern.FindStringSubmatch(sizeText); m != nil {
		q, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		quantity = q
		unit = m[2]
	} else {
		return nil
	}

	normQty, uom := normalizeQuantity(quantity, unit)
	if normQty <= 0 {
		return nil
	}
	return &UnitPrice{Price: round2(price / normQty), UOM: uom}
}

// normalizeQuantity converts a quantity into its comparison unit
func normalizeQuantity(quantity float64, unit string) (float64, string) {
	switch strings.ToLower(unit) {
	case "ml":
		return quantity / 1000, "L"
	case "l":
		return quantity, "L"
	case "g":
		return quantity / 1000, "kg"
	case "kg":
		return quantity, "kg"
	case "ea", "each", "ct", "count", "pk", "pack":
		return quantity, "EA"
	}
	return 0, ""
}
