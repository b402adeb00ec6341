package resources

import "github.com/shopspring/decimal"

// Bin is a physical storage bin a matrix column may be bound to.
type Bin struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Length decimal.Decimal `json:"length"`
	Width  decimal.Decimal `json:"width"`
	Height decimal.Decimal `json:"height"`
}

// Product is a sellable item identified by SKU.
type Product struct {
	ID   string `json:"id"`
	SKU  string `json:"sku"`
	Name string `json:"name"`
}
