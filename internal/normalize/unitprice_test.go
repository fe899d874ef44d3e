package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveUnitPrice(t *testing.T) {
	testCases := []struct {
		name     string
		price    float64
		sizeText string
		want     *UnitPrice
	}{
		{
			name:     "two litres",
			price:    4.99,
			sizeText: "2 L",
			want:     &UnitPrice{Price: 2.50, UOM: "L"},
		},
		{
			name:     "multi-pack cans",
			price:    6.99,
			sizeText: "12 x 355 ml",
			want:     &UnitPrice{Price: 1.64, UOM: "L"},
		},
		{
			name:     "grams to kilograms",
			price:    3.49,
			sizeText: "500 g",
			want:     &UnitPrice{Price: 6.98, UOM: "kg"},
		},
		{
			name:     "kilograms stay kilograms",
			price:    10.00,
			sizeText: "2 kg bag",
			want:     &UnitPrice{Price: 5.00, UOM: "kg"},
		},
		{
			name:     "count pack",
			price:    5.00,
			sizeText: "10 each",
			want:     &UnitPrice{Price: 0.50, UOM: "EA"},
		},
		{
			name:     "multiplication sign multi-pack",
			price:    8.00,
			sizeText: "4 × 500 ml",
			want:     &UnitPrice{Price: 4.00, UOM: "L"},
		},
		{
			name:     "no quantity in text",
			price:    4.99,
			sizeText: "family size",
			want:     nil,
		},
		{
			name:     "empty size text",
			price:    4.99,
			sizeText: "",
			want:     nil,
		},
		{
			name:     "zero price",
			price:    0,
			sizeText: "2 L",
			want:     nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveUnitPrice(tc.price, tc.sizeText)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tc.want.Price, got.Price, 0.001)
			assert.Equal(t, tc.want.UOM, got.UOM)
		})
	}
}

func TestParsePackageSizing(t *testing.T) {
	up := ParsePackageSizing("1 l, $0.43/100ml")
	require.NotNil(t, up)
	assert.InDelta(t, 0.43, up.Price, 0.001)
	assert.Equal(t, "100ml", up.UOM)

	assert.Nil(t, ParsePackageSizing("2 L"))
	assert.Nil(t, ParsePackageSizing(""))
}

func TestParsePrice(t *testing.T) {
	require.NotNil(t, ParsePrice(4.99))
	assert.InDelta(t, 4.99, *ParsePrice(4.99), 0.001)

	require.NotNil(t, ParsePrice("$4.99"))
	assert.InDelta(t, 4.99, *ParsePrice("$4.99"), 0.001)

	require.NotNil(t, ParsePrice("1,299.99"))
	assert.InDelta(t, 1299.99, *ParsePrice("1,299.99"), 0.001)

	assert.Nil(t, ParsePrice("call for price"))
	assert.Nil(t, ParsePrice(nil))
	assert.Nil(t, ParsePrice(map[string]interface{}{}))
}
