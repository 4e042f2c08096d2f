package domain

import "github.com/shopspring/decimal"

// PriceLevel is one resting level of the order book. Price is quoted in
// counter units per base unit, Amount in base units.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OrderBookSnapshot is a point-in-time read of the resting bids and asks
// for a base/counter pair. It is a query result, not an owned entity, and
// carries no ordering guarantee relative to concurrent writers.
type OrderBookSnapshot struct {
	Base    Asset
	Counter Asset
	Bids    []PriceLevel
	Asks    []PriceLevel
}
