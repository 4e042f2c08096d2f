package offers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
)

// Placer submits new resting orders. A failed placement is reported, not
// retried: a blind resubmission would go out at a stale sequence number.
type Placer struct {
	gateway gateway.Gateway
	logger  *zap.Logger
}

// NewPlacer creates a Placer using the given gateway.
func NewPlacer(gw gateway.Gateway, logger *zap.Logger) *Placer {
	return &Placer{gateway: gw, logger: logger}
}

// PlaceOffer submits a buy or sell of amount base units at price counter
// units per base unit and returns the created offer. Price and amount
// must be positive; amounts stay decimal end to end, floating point never
// reaches the transaction boundary.
func (p *Placer) PlaceOffer(ctx context.Context, account domain.Account, side domain.Side, base, counter domain.Asset, price, amount decimal.Decimal) (domain.Offer, error) {
	if !side.IsValid() {
		return domain.Offer{}, &gateway.PreconditionError{Msg: fmt.Sprintf("invalid offer side %q", side)}
	}
	if !price.IsPositive() {
		return domain.Offer{}, &gateway.PreconditionError{Msg: fmt.Sprintf("offer price must be positive, got %s", price)}
	}
	if !amount.IsPositive() {
		return domain.Offer{}, &gateway.PreconditionError{Msg: fmt.Sprintf("offer amount must be positive, got %s", amount)}
	}

	selling, buying := side.Legs(base, counter)

	var (
		id  int64
		err error
	)
	if side == domain.SideBuy {
		// buy of base: the ledger derives the counter amount from the
		// price, keeping quantities exact
		id, err = p.gateway.SubmitBuyOffer(ctx, account, selling, buying, amount, price)
	} else {
		id, err = p.gateway.SubmitOffer(ctx, account, selling, buying, amount, price, 0)
	}
	if err != nil {
		return domain.Offer{}, errors.Wrapf(err, "place %s offer for %s", side, account.ID)
	}

	p.logger.Info("offer placed",
		zap.String("account", account.ID),
		zap.String("side", side.String()),
		zap.String("price", price.String()),
		zap.String("amount", amount.String()),
		zap.Int64("offer_id", id))

	return domain.Offer{
		ID:      id,
		Seller:  account.ID,
		Selling: selling,
		Buying:  buying,
		Amount:  amount,
		Price:   price,
	}, nil
}
