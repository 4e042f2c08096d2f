// Package funding pays a credit asset out from its issuer to holder
// accounts.
package funding

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
	"github.com/stelmark/bookmaker/pkg/retrier"
)

// Funder issues one payment per destination. Payments are not idempotent:
// the caller must invoke Fund exactly once per account per bootstrap run
// and consult its journal across runs. Funding a destination without a
// trust line is caller misuse and fails fast without touching the ledger.
type Funder struct {
	gateway gateway.Gateway
	logger  *zap.Logger
	retry   *retrier.Retrier
}

// NewFunder creates a Funder using the given gateway.
func NewFunder(gw gateway.Gateway, logger *zap.Logger) *Funder {
	return &Funder{
		gateway: gw,
		logger:  logger,
		retry:   retrier.New(retrier.WithRetryIf(gateway.IsTemporary)),
	}
}

// Fund pays amount of asset from issuer to destination.
func (f *Funder) Fund(ctx context.Context, issuer, destination domain.Account, asset domain.Asset, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &gateway.PreconditionError{Msg: fmt.Sprintf("funding amount must be positive, got %s", amount)}
	}
	if !destination.Trusts(asset) {
		return &gateway.PreconditionError{
			Msg: fmt.Sprintf("account %s has no trust line for %s", destination.ID, asset),
		}
	}

	attempt := 0
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		src := issuer
		if attempt > 0 {
			// a timed-out payment may have been accepted: a sequence
			// number that moved past the snapshot means it was
			fresh, err := f.gateway.LoadAccount(ctx, issuer.ID)
			if err != nil {
				return err
			}
			if fresh.Sequence > issuer.Sequence {
				f.logger.Warn("payment landed despite transport error",
					zap.String("destination", destination.ID),
					zap.String("asset", asset.String()))
				return nil
			}
			src = fresh
		}
		attempt++
		return f.gateway.SubmitPayment(ctx, src, destination.ID, asset, amount)
	})
	if err != nil {
		return errors.Wrapf(err, "fund %s with %s %s", destination.ID, amount, asset.Code)
	}

	f.logger.Info("account funded",
		zap.String("destination", destination.ID),
		zap.String("asset", asset.String()),
		zap.String("amount", amount.String()))
	return nil
}
