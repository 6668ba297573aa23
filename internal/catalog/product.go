// Package catalog holds the product catalog: the remote product model,
// the in-memory catalog store and the filtering engine over it.
package catalog

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is a product identifier in canonical string form. The backend serves
// both string ids (document stores) and numeric ids (legacy tables); both
// are normalized at the ingestion boundary so equality is always a plain
// string comparison.
type ID string

// NormalizeID converts a raw identifier to canonical form.
func NormalizeID(raw string) ID {
	return ID(strings.TrimSpace(raw))
}

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NormalizeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Product represents a catalog entry as served by the backend.
// It is read-only on the client.
type Product struct {
	ID            ID              `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	Category      string          `json:"category,omitempty"`
	Images        []string        `json:"images,omitempty"`
	AverageRating float64         `json:"averageRating,omitempty"`
	ReviewCount   int             `json:"reviewCount,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	SKU           string          `json:"sku,omitempty"`
}

// InStock reports whether the product can be added to a cart.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// Image returns the primary image URL, or an empty string.
func (p *Product) Image() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

// StockLevel categorizes the stock count for presentation.
type StockLevel string

const (
	StockLevelIn  StockLevel = "IN_STOCK"
	StockLevelLow StockLevel = "LOW_STOCK"
	StockLevelOut StockLevel = "OUT_OF_STOCK"
)

// LevelForStock maps a stock count to its presentation level.
func LevelForStock(stock int) StockLevel {
	switch {
	case stock > 10:
		return StockLevelIn
	case stock > 0:
		return StockLevelLow
	default:
		return StockLevelOut
	}
}

// FormatPrice renders a price with two fractional digits.
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}
