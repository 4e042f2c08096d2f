// Package gateway defines the ledger capability the bootstrap services
// depend on, together with the error taxonomy every implementation must
// map network responses onto. Transaction envelopes and signing live
// behind this boundary; callers deal only in domain values.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/stelmark/bookmaker/internal/domain"
)

// Gateway is the handle to the ledger network. Implementations must bound
// every call with a timeout and translate failures into the package's
// error types: deterministic protocol rejections as *RejectedError,
// transport failures (including timeouts) as *NetworkError.
//
// Every Submit* method builds one transaction from the source account at
// sequence source.Sequence+1. The ledger enforces strict per-account
// sequence ordering, so the caller owns serialization of submissions from
// one account and must re-fetch the snapshot between dependent calls.
type Gateway interface {
	// LoadAccount fetches the current account snapshot. Returns
	// ErrNotFound if the account has never been funded on the network.
	LoadAccount(ctx context.Context, accountID string) (domain.Account, error)

	// ListOffers enumerates the resting offers owned by the account.
	ListOffers(ctx context.Context, accountID string) ([]domain.Offer, error)

	// QueryOrderBook reads the resting bids and asks for the pair.
	QueryOrderBook(ctx context.Context, base, counter domain.Asset) (domain.OrderBookSnapshot, error)

	// SubmitTrustLine extends a trust line from source toward the asset's
	// issuer. Re-submitting for an already-trusted asset is accepted by
	// the ledger as a no-op.
	SubmitTrustLine(ctx context.Context, source domain.Account, asset domain.Asset) error

	// SubmitPayment sends amount of asset from source to destination.
	SubmitPayment(ctx context.Context, source domain.Account, destination string, asset domain.Asset, amount decimal.Decimal) error

	// SubmitOffer places a sell-style offer: amount is in selling units,
	// price in buying units per selling unit. An amount of zero with a
	// non-zero offerID cancels that offer; offerID zero creates a new one.
	// Returns the resulting offer's id (zero for a cancellation).
	SubmitOffer(ctx context.Context, source domain.Account, selling, buying domain.Asset, amount, price decimal.Decimal, offerID int64) (int64, error)

	// SubmitBuyOffer places a buy-style offer: buyAmount is in buying
	// units, price in selling units per buying unit. The ledger computes
	// the selling amount, avoiding an inexact reciprocal on our side.
	SubmitBuyOffer(ctx context.Context, source domain.Account, selling, buying domain.Asset, buyAmount, price decimal.Decimal) (int64, error)
}
