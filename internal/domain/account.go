package domain

import "github.com/shopspring/decimal"

// Balance is one asset position held by an account. A balance entry for a
// credit asset exists iff the account has a trust line for it, so a zero
// balance still carries information.
type Balance struct {
	Asset  Asset
	Amount decimal.Decimal
}

// Account is a read-mostly snapshot of ledger account state. It is stale
// the moment any transaction from this account is accepted: the sequence
// number advances by one per accepted transaction, and the snapshot must
// be re-fetched before building a dependent transaction.
type Account struct {
	ID       string
	Sequence int64
	Balances []Balance
	Offers   []Offer
}

// Balance returns the held amount of the given asset, zero if the account
// holds no entry for it.
func (a Account) Balance(asset Asset) decimal.Decimal {
	for _, b := range a.Balances {
		if b.Asset.Equal(asset) {
			return b.Amount
		}
	}
	return decimal.Zero
}

// Trusts reports whether the account may hold the given asset. Every
// account trusts the native asset; a credit asset requires a trust line,
// which surfaces as a balance entry in the snapshot.
func (a Account) Trusts(asset Asset) bool {
	if asset.IsNative() {
		return true
	}
	for _, b := range a.Balances {
		if b.Asset.Equal(asset) {
			return true
		}
	}
	return false
}
