// Package offers clears and places resting orders for a single account.
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

// PartialClearError reports a clearing batch that cancelled some offers
// before failing. Cancelled offers stay cancelled, there is no
// compensating rollback; the caller decides whether to abort.
type PartialClearError struct {
	Succeeded int
	FailedAt  int
	Err       error
}

func (e *PartialClearError) Error() string {
	return fmt.Sprintf("cleared %d offers, cancellation %d failed: %v", e.Succeeded, e.FailedAt, e.Err)
}

func (e *PartialClearError) Unwrap() error {
	return e.Err
}

// Reconciler wipes an account's resting offers to produce a clean slate
// before new ones are placed.
type Reconciler struct {
	gateway gateway.Gateway
	logger  *zap.Logger
}

// NewReconciler creates a Reconciler using the given gateway.
func NewReconciler(gw gateway.Gateway, logger *zap.Logger) *Reconciler {
	return &Reconciler{gateway: gw, logger: logger}
}

// ClearOffers cancels every resting offer the account owns and returns
// how many were cancelled. An empty set is success. Cancellations run
// sequentially: each consumes the account's next sequence number and the
// ledger enforces strict per-account ordering. On a mid-batch failure the
// count of completed cancellations and the first error are reported as a
// *PartialClearError.
func (r *Reconciler) ClearOffers(ctx context.Context, account domain.Account) (int, error) {
	resting, err := r.gateway.ListOffers(ctx, account.ID)
	if err != nil {
		return 0, errors.Wrapf(err, "list offers of %s", account.ID)
	}
	if len(resting) == 0 {
		r.logger.Info("no resting offers to clear", zap.String("account", account.ID))
		return 0, nil
	}

	cleared := 0
	cur := account
	for i, offer := range resting {
		// the account only has authority over its own offers, never over
		// counterparties elsewhere in the book
		if offer.Seller != account.ID {
			continue
		}
		if _, err := r.gateway.SubmitOffer(ctx, cur, offer.Selling, offer.Buying, decimal.Zero, offer.Price, offer.ID); err != nil {
			return cleared, &PartialClearError{Succeeded: cleared, FailedAt: i + 1, Err: err}
		}
		cleared++
		cur.Sequence++
	}

	r.logger.Info("resting offers cleared",
		zap.String("account", account.ID),
		zap.Int("count", cleared))
	return cleared, nil
}
