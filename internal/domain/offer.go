package domain

import "github.com/shopspring/decimal"

// Side of an order-book offer relative to a base/counter pair.
type Side string

const (
	// SideBuy buys the base asset priced in the counter asset.
	SideBuy Side = "buy"
	// SideSell sells the base asset priced in the counter asset.
	SideSell Side = "sell"
)

// String returns the string representation.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the Side value is valid.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Legs maps the side onto the selling and buying legs of the submitted
// operation: a buy of base sells counter and buys base, a sell of base
// sells base and buys counter.
func (s Side) Legs(base, counter Asset) (selling, buying Asset) {
	if s == SideBuy {
		return counter, base
	}
	return base, counter
}

// Offer is a resting order owned by Seller. Amount is denominated in
// units of the Selling asset, Price in units of Buying per unit of
// Selling, matching how the ledger quotes offers.
type Offer struct {
	ID      int64
	Seller  string
	Selling Asset
	Buying  Asset
	Amount  decimal.Decimal
	Price   decimal.Decimal
}

// SideFor derives the order-book side of the offer for a base/counter
// pair: selling counter to buy base is a bid, the reverse is an ask.
func (o Offer) SideFor(base, counter Asset) Side {
	if o.Selling.Equal(counter) && o.Buying.Equal(base) {
		return SideBuy
	}
	return SideSell
}
