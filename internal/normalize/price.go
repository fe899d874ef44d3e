package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var priceTextPattern = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)

// ParsePrice accepts the price value shapes the sources emit: JSON numbers,
// numeric strings, and currency-formatted text. Returns nil when nothing
// parseable is present.
func ParsePrice(v interface{}) *float64 {
	switch p := v.(type) {
	case float64:
		return &p
	case int:
		f := float64(p)
		return &f
	case string:
		return ParsePriceText(p)
	}
	return nil
}

// ParsePriceText pulls the first money-looking amount out of free text,
// tolerating currency symbols and thousands separators
func ParsePriceText(text string) *float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	match := priceTextPattern.FindString(cleaned)
	if match == "" {
		return nil
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &f
}

// round2 rounds to two decimal places the way prices are displayed
func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
