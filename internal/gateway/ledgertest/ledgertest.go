// Package ledgertest provides a deterministic in-memory ledger used as a
// test double for the gateway. It enforces the same invariants the real
// network does: strict per-account sequence numbers, trust lines before
// credit-asset balances, and balance checks on offers, so tests exercise
// the orchestration logic against realistic rejections.
package ledgertest

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
)

// Operation names used for call counting, ordering logs and failure
// injection.
const (
	OpLoad   = "load"
	OpList   = "list"
	OpBook   = "book"
	OpTrust  = "trust"
	OpPay    = "pay"
	OpOffer  = "offer"
	OpCancel = "cancel"
)

// Call is one recorded gateway call.
type Call struct {
	Op      string
	Account string
}

type injection struct {
	account string
	call    int
	err     error
	after   bool
}

type accountRec struct {
	seq      int64
	balances map[domain.Asset]decimal.Decimal
	trust    map[domain.Asset]bool
	offers   map[int64]domain.Offer
}

var _ gateway.Gateway = (*Ledger)(nil)

// Ledger is an in-memory gateway.Gateway implementation.
type Ledger struct {
	mu          sync.Mutex
	accounts    map[string]*accountRec
	nextOfferID int64
	counts      map[string]int
	injections  map[string][]injection
	calls       []Call
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		accounts:   make(map[string]*accountRec),
		counts:     make(map[string]int),
		injections: make(map[string][]injection),
	}
}

// CreateAccount funds a new account with the given native balance.
func (l *Ledger) CreateAccount(id string, native decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[id] = &accountRec{
		balances: map[domain.Asset]decimal.Decimal{domain.NativeAsset(): native},
		trust:    make(map[domain.Asset]bool),
		offers:   make(map[int64]domain.Offer),
	}
}

// SetBalance sets an asset balance directly, establishing the trust line.
func (l *Ledger) SetBalance(id string, asset domain.Asset, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.accounts[id]
	rec.trust[asset] = true
	rec.balances[asset] = amount
}

// Inject makes the n-th call (1-based) of the given operation fail with
// err before any state change.
func (l *Ledger) Inject(op string, call int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injections[op] = append(l.injections[op], injection{call: call, err: err})
}

// InjectFor is Inject scoped to calls touching one account, counted
// separately. Needed when concurrent branches make the global call order
// nondeterministic.
func (l *Ledger) InjectFor(op, account string, call int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injections[op] = append(l.injections[op], injection{account: account, call: call, err: err})
}

// InjectAfterEffect makes the n-th call of the operation apply its state
// change and still report err. Models a transport failure on a
// transaction the ledger actually accepted (unknown outcome).
func (l *Ledger) InjectAfterEffect(op string, call int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injections[op] = append(l.injections[op], injection{call: call, err: err, after: true})
}

// Calls returns how many times the operation was invoked.
func (l *Ledger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[op]
}

// CallLog returns every recorded call in invocation order.
func (l *Ledger) CallLog() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Sequence returns the account's current ledger sequence number.
func (l *Ledger) Sequence(id string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[id].seq
}

// RestingOffers returns the account's offers sorted by id.
func (l *Ledger) RestingOffers(id string) []domain.Offer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offersLocked(id)
}

func (l *Ledger) offersLocked(id string) []domain.Offer {
	rec, ok := l.accounts[id]
	if !ok {
		return nil
	}
	out := make([]domain.Offer, 0, len(rec.offers))
	for _, o := range rec.offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// take counts the call, records it, and returns a matching injection.
func (l *Ledger) take(op, account string) *injection {
	l.counts[op]++
	l.counts[op+"|"+account]++
	l.calls = append(l.calls, Call{Op: op, Account: account})
	for i := range l.injections[op] {
		inj := &l.injections[op][i]
		if inj.account == "" && inj.call == l.counts[op] {
			return inj
		}
		if inj.account == account && inj.call == l.counts[op+"|"+account] {
			return inj
		}
	}
	return nil
}

// consumeSeq validates the snapshot's sequence against the ledger and
// advances it, the way one accepted transaction does.
func (l *Ledger) consumeSeq(source domain.Account) (*accountRec, error) {
	rec, ok := l.accounts[source.ID]
	if !ok {
		return nil, &gateway.RejectedError{Code: "tx_no_source_account"}
	}
	if rec.seq != source.Sequence {
		return nil, &gateway.RejectedError{Code: "tx_bad_seq"}
	}
	rec.seq++
	return rec, nil
}

func (l *Ledger) LoadAccount(_ context.Context, accountID string) (domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inj := l.take(OpLoad, accountID); inj != nil {
		return domain.Account{}, inj.err
	}
	rec, ok := l.accounts[accountID]
	if !ok {
		return domain.Account{}, gateway.ErrNotFound
	}

	acc := domain.Account{ID: accountID, Sequence: rec.seq}
	assets := make([]domain.Asset, 0, len(rec.balances))
	for a := range rec.balances {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].IsNative() != assets[j].IsNative() {
			return assets[i].IsNative()
		}
		return assets[i].Code < assets[j].Code
	})
	for _, a := range assets {
		acc.Balances = append(acc.Balances, domain.Balance{Asset: a, Amount: rec.balances[a]})
	}
	acc.Offers = l.offersLocked(accountID)
	return acc, nil
}

func (l *Ledger) ListOffers(_ context.Context, accountID string) ([]domain.Offer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inj := l.take(OpList, accountID); inj != nil {
		return nil, inj.err
	}
	if _, ok := l.accounts[accountID]; !ok {
		return nil, gateway.ErrNotFound
	}
	return l.offersLocked(accountID), nil
}

func (l *Ledger) SubmitTrustLine(_ context.Context, source domain.Account, asset domain.Asset) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inj := l.take(OpTrust, source.ID)
	if inj != nil && !inj.after {
		return inj.err
	}
	rec, err := l.consumeSeq(source)
	if err != nil {
		return err
	}
	rec.trust[asset] = true
	if _, ok := rec.balances[asset]; !ok {
		rec.balances[asset] = decimal.Zero
	}
	if inj != nil {
		return inj.err
	}
	return nil
}

func (l *Ledger) SubmitPayment(_ context.Context, source domain.Account, destination string, asset domain.Asset, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inj := l.take(OpPay, source.ID)
	if inj != nil && !inj.after {
		return inj.err
	}
	rec, err := l.consumeSeq(source)
	if err != nil {
		return err
	}
	dest, ok := l.accounts[destination]
	if !ok {
		return &gateway.RejectedError{Code: "op_no_destination"}
	}
	if !asset.IsNative() && !dest.trust[asset] && destination != asset.Issuer {
		return &gateway.RejectedError{Code: "op_no_trust"}
	}
	// the issuer mints its own asset, everyone else spends a balance
	if asset.Issuer != source.ID {
		if rec.balances[asset].LessThan(amount) {
			return &gateway.RejectedError{Code: "op_underfunded"}
		}
		rec.balances[asset] = rec.balances[asset].Sub(amount)
	}
	dest.balances[asset] = dest.balances[asset].Add(amount)
	if inj != nil {
		return inj.err
	}
	return nil
}

func (l *Ledger) SubmitOffer(_ context.Context, source domain.Account, selling, buying domain.Asset, amount, price decimal.Decimal, offerID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	op := OpOffer
	if amount.IsZero() {
		op = OpCancel
	}
	inj := l.take(op, source.ID)
	if inj != nil && !inj.after {
		return 0, inj.err
	}
	rec, err := l.consumeSeq(source)
	if err != nil {
		return 0, err
	}

	if amount.IsZero() {
		if _, ok := rec.offers[offerID]; !ok {
			return 0, &gateway.RejectedError{Code: "op_offer_not_found"}
		}
		delete(rec.offers, offerID)
		if inj != nil {
			return 0, inj.err
		}
		return 0, nil
	}

	id, err := l.createOffer(rec, source.ID, selling, buying, amount, price)
	if err != nil {
		return 0, err
	}
	if inj != nil {
		return id, inj.err
	}
	return id, nil
}

func (l *Ledger) SubmitBuyOffer(_ context.Context, source domain.Account, selling, buying domain.Asset, buyAmount, price decimal.Decimal) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inj := l.take(OpOffer, source.ID)
	if inj != nil && !inj.after {
		return 0, inj.err
	}
	rec, err := l.consumeSeq(source)
	if err != nil {
		return 0, err
	}

	sellAmount := buyAmount.Mul(price)
	id, err := l.createOffer(rec, source.ID, selling, buying, sellAmount, buyAmount.Div(sellAmount))
	if err != nil {
		return 0, err
	}
	if inj != nil {
		return id, inj.err
	}
	return id, nil
}

func (l *Ledger) createOffer(rec *accountRec, owner string, selling, buying domain.Asset, amount, price decimal.Decimal) (int64, error) {
	if !selling.IsNative() && !rec.trust[selling] {
		return 0, &gateway.RejectedError{Code: "op_sell_no_trust"}
	}
	if !buying.IsNative() && !rec.trust[buying] {
		return 0, &gateway.RejectedError{Code: "op_buy_no_trust"}
	}
	if rec.balances[selling].LessThan(amount) {
		return 0, &gateway.RejectedError{Code: "op_underfunded"}
	}

	l.nextOfferID++
	offer := domain.Offer{
		ID:      l.nextOfferID,
		Seller:  owner,
		Selling: selling,
		Buying:  buying,
		Amount:  amount,
		Price:   price,
	}
	rec.offers[offer.ID] = offer
	return offer.ID, nil
}

func (l *Ledger) QueryOrderBook(_ context.Context, base, counter domain.Asset) (domain.OrderBookSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inj := l.take(OpBook, ""); inj != nil {
		return domain.OrderBookSnapshot{}, inj.err
	}

	snap := domain.OrderBookSnapshot{Base: base, Counter: counter}
	one := decimal.NewFromInt(1)
	for _, rec := range l.accounts {
		for _, o := range rec.offers {
			switch {
			case o.Selling.Equal(base) && o.Buying.Equal(counter):
				snap.Asks = append(snap.Asks, domain.PriceLevel{Price: o.Price, Amount: o.Amount})
			case o.Selling.Equal(counter) && o.Buying.Equal(base):
				// bid price re-quoted as counter per base
				snap.Bids = append(snap.Bids, domain.PriceLevel{
					Price:  one.Div(o.Price),
					Amount: o.Amount.Mul(o.Price),
				})
			}
		}
	}
	sort.Slice(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price.GreaterThan(snap.Bids[j].Price) })
	sort.Slice(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price.LessThan(snap.Asks[j].Price) })
	return snap, nil
}
