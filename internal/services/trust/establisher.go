// Package trust extends trust lines from holder accounts toward a credit
// asset's issuer.
package trust

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
	"github.com/stelmark/bookmaker/pkg/retrier"
)

// Establisher issues change-trust operations. A deterministic ledger
// rejection (e.g. insufficient reserve) is fatal for the account and is
// never retried: resubmitting the identical transaction at a stale
// sequence number fails the same way. Transport failures are retried
// after re-loading the account, which also detects a submission that
// landed despite the error.
type Establisher struct {
	gateway gateway.Gateway
	logger  *zap.Logger
	retry   *retrier.Retrier
}

// NewEstablisher creates an Establisher using the given gateway.
func NewEstablisher(gw gateway.Gateway, logger *zap.Logger) *Establisher {
	return &Establisher{
		gateway: gw,
		logger:  logger,
		retry:   retrier.New(retrier.WithRetryIf(gateway.IsTemporary)),
	}
}

// EstablishTrust extends a trust line from account toward asset. The
// account snapshot must carry a current sequence number. Re-running for
// an already-trusted asset is a no-op, not an error.
func (e *Establisher) EstablishTrust(ctx context.Context, account domain.Account, asset domain.Asset) error {
	if asset.IsNative() {
		return &gateway.PreconditionError{Msg: "cannot extend trust for the native asset"}
	}

	if account.Trusts(asset) {
		e.logger.Info("trust line already present",
			zap.String("account", account.ID),
			zap.String("asset", asset.String()))
		return nil
	}

	attempt := 0
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		acc := account
		if attempt > 0 {
			// unknown outcome on the previous attempt: re-fetch instead of
			// reusing the cached sequence number
			fresh, err := e.gateway.LoadAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			if fresh.Trusts(asset) {
				e.logger.Warn("trust line landed despite transport error",
					zap.String("account", account.ID),
					zap.String("asset", asset.String()))
				return nil
			}
			acc = fresh
		}
		attempt++
		return e.gateway.SubmitTrustLine(ctx, acc, asset)
	})
	if err != nil {
		return errors.Wrapf(err, "extend trust from %s to %s", account.ID, asset)
	}

	e.logger.Info("trust line established",
		zap.String("account", account.ID),
		zap.String("asset", asset.String()))
	return nil
}
