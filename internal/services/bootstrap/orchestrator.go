// Package bootstrap sequences the ledger setup steps into their required
// dependency order: trust before funding, funding before offer
// reconciliation, reconciliation before placement. Steps for different
// accounts run concurrently; work sourced from one account is serialized
// through that account's queue.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
	"github.com/stelmark/bookmaker/internal/journal"
	"github.com/stelmark/bookmaker/internal/services/funding"
	"github.com/stelmark/bookmaker/internal/services/offers"
	"github.com/stelmark/bookmaker/internal/services/trust"
)

// Policy decides what a step-level failure does to the rest of the run.
type Policy string

const (
	// PolicyAbort stops the run at the first failed barrier.
	PolicyAbort Policy = "abort"
	// PolicyBestEffort lets unaffected accounts continue; the run still
	// reports every failure at the end.
	PolicyBestEffort Policy = "best_effort"
)

// String returns the string representation.
func (p Policy) String() string {
	return string(p)
}

// IsValid checks if the Policy value is valid.
func (p Policy) IsValid() bool {
	return p == PolicyAbort || p == PolicyBestEffort
}

// Params configures one bootstrap run.
type Params struct {
	IssuerID string
	BuyerID  string
	SellerID string

	// Asset is the credit asset issued by IssuerID; Base is the other leg
	// of the pair (the native asset in the standard setup).
	Asset domain.Asset
	Base  domain.Asset

	FundingAmount decimal.Decimal

	BuyAmount  decimal.Decimal
	BuyPrice   decimal.Decimal
	SellAmount decimal.Decimal
	SellPrice  decimal.Decimal

	Policy Policy
}

func (p Params) validate() error {
	if p.IssuerID == "" || p.BuyerID == "" || p.SellerID == "" {
		return errors.New("issuer, buyer and seller accounts are required")
	}
	if p.IssuerID == p.BuyerID || p.IssuerID == p.SellerID || p.BuyerID == p.SellerID {
		return errors.New("issuer, buyer and seller must be distinct accounts")
	}
	if p.Asset.IsNative() {
		return errors.New("the traded asset must be a credit asset")
	}
	if p.Asset.Issuer != p.IssuerID {
		return errors.Errorf("asset %s is not issued by %s", p.Asset, p.IssuerID)
	}
	if !p.FundingAmount.IsPositive() {
		return errors.New("funding amount must be positive")
	}
	for _, d := range []decimal.Decimal{p.BuyAmount, p.BuyPrice, p.SellAmount, p.SellPrice} {
		if !d.IsPositive() {
			return errors.New("offer prices and amounts must be positive")
		}
	}
	if !p.Policy.IsValid() {
		return errors.Errorf("unknown failure policy %q", p.Policy)
	}
	return nil
}

type accountState struct {
	id    string
	phase domain.Phase
	err   error
}

// Orchestrator drives the per-account state machine
// Unloaded → Loaded → Trusted → Funded → Reconciled → Offered. A failure
// moves the account to Failed with its cause and no later step runs for
// it.
type Orchestrator struct {
	gw          gateway.Gateway
	establisher *trust.Establisher
	funder      *funding.Funder
	reconciler  *offers.Reconciler
	placer      *offers.Placer
	journal     *journal.Journal
	logger      *zap.Logger
	params      Params

	states map[string]*accountState
	queues map[string]*accountQueue
}

// New creates an Orchestrator. journal may be nil, in which case funding
// idempotence across process runs is not tracked.
func New(gw gateway.Gateway, jrnl *journal.Journal, logger *zap.Logger, params Params) (*Orchestrator, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		gw:          gw,
		establisher: trust.NewEstablisher(gw, logger),
		funder:      funding.NewFunder(gw, logger),
		reconciler:  offers.NewReconciler(gw, logger),
		placer:      offers.NewPlacer(gw, logger),
		journal:     jrnl,
		logger:      logger,
		params:      params,
		states:      make(map[string]*accountState),
	}, nil
}

// Phase returns the account's current bootstrap phase.
func (o *Orchestrator) Phase(accountID string) domain.Phase {
	if st, ok := o.states[accountID]; ok {
		return st.phase
	}
	return domain.PhaseUnloaded
}

type phaseJob struct {
	// account whose state machine advances; queue the work is serialized
	// on (funding runs on the issuer's queue but advances the
	// destination's state)
	account string
	queue   string
	fn      func(ctx context.Context, acc domain.Account) error
}

// Run executes the full bootstrap and returns the resulting order-book
// snapshot. Under PolicyBestEffort a partially failed run still returns
// the snapshot together with the joined failures.
func (o *Orchestrator) Run(ctx context.Context) (domain.OrderBookSnapshot, error) {
	p := o.params

	o.queues = make(map[string]*accountQueue, 3)
	for _, id := range []string{p.IssuerID, p.BuyerID, p.SellerID} {
		o.states[id] = &accountState{id: id}
		o.queues[id] = newAccountQueue(id, o.gw)
	}
	defer func() {
		for _, q := range o.queues {
			q.Close()
		}
	}()

	// 1. load all accounts concurrently
	o.runPhase(ctx, domain.PhaseLoaded,
		phaseJob{account: p.IssuerID, queue: p.IssuerID, fn: o.noteLoaded},
		phaseJob{account: p.BuyerID, queue: p.BuyerID, fn: o.noteLoaded},
		phaseJob{account: p.SellerID, queue: p.SellerID, fn: o.noteLoaded},
	)
	if err := o.barrier("load accounts"); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	// 2. extend trust lines toward the issuer
	o.runPhase(ctx, domain.PhaseTrusted,
		o.trustJob(p.BuyerID),
		o.trustJob(p.SellerID),
	)
	if err := o.barrier("extend trust"); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	// 3. fund buyer and seller; both payments originate from the issuer,
	// so the issuer queue serializes them while the branches themselves
	// run concurrently
	o.runPhase(ctx, domain.PhaseFunded,
		o.fundJob(p.BuyerID),
		o.fundJob(p.SellerID),
	)
	if err := o.barrier("fund accounts"); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	// 4. reload holder state, balances changed
	o.runPhase(ctx, domain.PhaseFunded,
		phaseJob{account: p.BuyerID, queue: p.BuyerID, fn: o.noteBalances},
		phaseJob{account: p.SellerID, queue: p.SellerID, fn: o.noteBalances},
	)
	if err := o.barrier("reload accounts"); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	// 5. clear resting offers
	o.runPhase(ctx, domain.PhaseReconciled,
		o.clearJob(p.BuyerID),
		o.clearJob(p.SellerID),
	)
	if err := o.barrier("clear offers"); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	// 6. place the new offers
	o.runPhase(ctx, domain.PhaseOffered,
		o.placeJob(p.BuyerID, domain.SideBuy, p.BuyPrice, p.BuyAmount),
		o.placeJob(p.SellerID, domain.SideSell, p.SellPrice, p.SellAmount),
	)
	if err := o.barrier("place offers"); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	// 7. final order-book snapshot
	snap, err := o.gw.QueryOrderBook(ctx, p.Base, p.Asset)
	if err != nil {
		return domain.OrderBookSnapshot{}, errors.Wrap(err, "query order book")
	}
	return snap, errorsJoin(o.failures())
}

func (o *Orchestrator) trustJob(accountID string) phaseJob {
	return phaseJob{account: accountID, queue: accountID, fn: func(ctx context.Context, acc domain.Account) error {
		return o.establisher.EstablishTrust(ctx, acc, o.params.Asset)
	}}
}

func (o *Orchestrator) fundJob(destID string) phaseJob {
	return phaseJob{account: destID, queue: o.params.IssuerID, fn: func(ctx context.Context, issuerAcc domain.Account) error {
		if o.journal.Funded(destID, o.params.Asset) {
			o.logger.Info("account already funded in a previous run, skipping payment",
				zap.String("destination", destID),
				zap.String("asset", o.params.Asset.String()))
			return nil
		}
		dest, err := o.gw.LoadAccount(ctx, destID)
		if err != nil {
			return errors.Wrapf(err, "load destination %s", destID)
		}
		if err := o.funder.Fund(ctx, issuerAcc, dest, o.params.Asset, o.params.FundingAmount); err != nil {
			return err
		}
		return o.journal.MarkFunded(destID, o.params.Asset, o.params.FundingAmount)
	}}
}

func (o *Orchestrator) clearJob(accountID string) phaseJob {
	return phaseJob{account: accountID, queue: accountID, fn: func(ctx context.Context, acc domain.Account) error {
		cleared, err := o.reconciler.ClearOffers(ctx, acc)
		if err != nil {
			return errors.Wrapf(err, "after %d cancellations", cleared)
		}
		return nil
	}}
}

func (o *Orchestrator) placeJob(accountID string, side domain.Side, price, amount decimal.Decimal) phaseJob {
	return phaseJob{account: accountID, queue: accountID, fn: func(ctx context.Context, acc domain.Account) error {
		_, err := o.placer.PlaceOffer(ctx, acc, side, o.params.Base, o.params.Asset, price, amount)
		return err
	}}
}

func (o *Orchestrator) noteLoaded(_ context.Context, acc domain.Account) error {
	o.logger.Info("account loaded",
		zap.String("account", acc.ID),
		zap.Int64("sequence", acc.Sequence))
	return nil
}

func (o *Orchestrator) noteBalances(_ context.Context, acc domain.Account) error {
	o.logger.Info("account balances",
		zap.String("account", acc.ID),
		zap.String("asset_balance", acc.Balance(o.params.Asset).String()),
		zap.String("native_balance", acc.Balance(domain.NativeAsset()).String()))
	return nil
}

// runPhase runs every job whose account is still live and waits for all
// of them: each numbered bootstrap step is a synchronization barrier.
// Branches already in flight are allowed to finish even when a sibling
// fails; the policy is enforced between steps, not by cancelling
// mid-flight transactions with unknown outcomes.
func (o *Orchestrator) runPhase(ctx context.Context, next domain.Phase, jobs ...phaseJob) {
	g := new(errgroup.Group)
	for _, job := range jobs {
		st := o.states[job.account]
		if st.phase == domain.PhaseFailed {
			continue
		}
		job := job
		g.Go(func() error {
			if err := o.queues[job.queue].Do(ctx, job.fn); err != nil {
				o.fail(st, next, err)
				return nil
			}
			st.phase = next
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) fail(st *accountState, attempted domain.Phase, err error) {
	st.phase = domain.PhaseFailed
	st.err = errors.Wrapf(err, "account %s failed reaching phase %s", st.id, attempted)
	o.logger.Error("bootstrap step failed",
		zap.String("account", st.id),
		zap.String("attempted_phase", attempted.String()),
		zap.Error(err))
}

// barrier enforces the failure policy after a step. The issuer is load
// bearing for every later step, so its failure always stops the run; so
// does losing both trading accounts.
func (o *Orchestrator) barrier(step string) error {
	issuer := o.states[o.params.IssuerID]
	if issuer.phase == domain.PhaseFailed {
		return errors.Wrapf(issuer.err, "%s", step)
	}

	fails := o.failures()
	if len(fails) == 0 {
		return nil
	}
	if o.params.Policy == PolicyAbort {
		return errors.Wrapf(errorsJoin(fails), "%s", step)
	}
	if o.states[o.params.BuyerID].phase == domain.PhaseFailed &&
		o.states[o.params.SellerID].phase == domain.PhaseFailed {
		return errors.Wrapf(errorsJoin(fails), "%s: no live accounts remain", step)
	}
	return nil
}

func (o *Orchestrator) failures() []error {
	var fails []error
	for _, id := range []string{o.params.IssuerID, o.params.BuyerID, o.params.SellerID} {
		if st := o.states[id]; st.phase == domain.PhaseFailed {
			fails = append(fails, st.err)
		}
	}
	return fails
}

func errorsJoin(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("%d accounts failed: %s", len(errs), strings.Join(msgs, "; "))
}
