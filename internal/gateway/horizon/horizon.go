// Package horizon implements the ledger gateway against a Stellar
// Horizon server. Transaction envelope construction and signing are
// confined here; the rest of the system deals only in domain values.
package horizon

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/price"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
)

const offerPageLimit = 200

var _ gateway.Gateway = (*Gateway)(nil)

// Gateway talks to one Horizon instance. Every call is bounded by the
// HTTP client timeout; a timed-out submission surfaces as a NetworkError
// with unknown outcome, which callers resolve by re-loading the account.
type Gateway struct {
	client     *horizonclient.Client
	passphrase string
	signers    map[string]*keypair.Full
}

// New creates a Gateway for the given Horizon URL and network
// passphrase, holding the signing keys for the provided account seeds.
func New(horizonURL, passphrase string, timeout time.Duration, seeds ...string) (*Gateway, error) {
	signers := make(map[string]*keypair.Full, len(seeds))
	for _, seed := range seeds {
		kp, err := keypair.ParseFull(seed)
		if err != nil {
			return nil, errors.Wrap(err, "parse account seed")
		}
		signers[kp.Address()] = kp
	}
	return &Gateway{
		client: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       &http.Client{Timeout: timeout},
		},
		passphrase: passphrase,
		signers:    signers,
	}, nil
}

func (g *Gateway) LoadAccount(ctx context.Context, accountID string) (domain.Account, error) {
	rec, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		return domain.Account{}, mapError(err)
	}
	seq, err := rec.GetSequenceNumber()
	if err != nil {
		return domain.Account{}, errors.Wrapf(err, "parse sequence number of %s", accountID)
	}

	acc := domain.Account{ID: accountID, Sequence: seq}
	for _, b := range rec.Balances {
		amount, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return domain.Account{}, errors.Wrapf(err, "parse balance of %s", accountID)
		}
		acc.Balances = append(acc.Balances, domain.Balance{Asset: fromBaseAsset(b.Asset), Amount: amount})
	}

	offers, err := g.ListOffers(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	acc.Offers = offers
	return acc, nil
}

func (g *Gateway) ListOffers(_ context.Context, accountID string) ([]domain.Offer, error) {
	page, err := g.client.Offers(horizonclient.OfferRequest{ForAccount: accountID, Limit: offerPageLimit})
	if err != nil {
		return nil, mapError(err)
	}

	offers := make([]domain.Offer, 0, len(page.Embedded.Records))
	for _, rec := range page.Embedded.Records {
		offer, err := fromOfferRecord(rec)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (g *Gateway) QueryOrderBook(_ context.Context, baseAsset, counter domain.Asset) (domain.OrderBookSnapshot, error) {
	req := horizonclient.OrderBookRequest{Limit: offerPageLimit}
	req.SellingAssetType, req.SellingAssetCode, req.SellingAssetIssuer = toRequestAsset(baseAsset)
	req.BuyingAssetType, req.BuyingAssetCode, req.BuyingAssetIssuer = toRequestAsset(counter)

	summary, err := g.client.OrderBook(req)
	if err != nil {
		return domain.OrderBookSnapshot{}, mapError(err)
	}

	snap := domain.OrderBookSnapshot{Base: baseAsset, Counter: counter}
	if snap.Bids, err = fromLevels(summary.Bids); err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	if snap.Asks, err = fromLevels(summary.Asks); err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	return snap, nil
}

func (g *Gateway) SubmitTrustLine(_ context.Context, source domain.Account, asset domain.Asset) error {
	line, err := txnbuild.CreditAsset{Code: asset.Code, Issuer: asset.Issuer}.ToChangeTrustAsset()
	if err != nil {
		return errors.Wrap(err, "build change trust line")
	}
	_, err = g.submit(source, &txnbuild.ChangeTrust{
		Line:  line,
		Limit: txnbuild.MaxTrustlineLimit,
	})
	return err
}

func (g *Gateway) SubmitPayment(_ context.Context, source domain.Account, destination string, asset domain.Asset, amount decimal.Decimal) error {
	_, err := g.submit(source, &txnbuild.Payment{
		Destination: destination,
		Amount:      amount.String(),
		Asset:       toTxAsset(asset),
	})
	return err
}

func (g *Gateway) SubmitOffer(_ context.Context, source domain.Account, selling, buying domain.Asset, amount, offerPrice decimal.Decimal, offerID int64) (int64, error) {
	p, err := price.Parse(offerPrice.String())
	if err != nil {
		return 0, errors.Wrap(err, "price outside protocol-allowed precision")
	}
	resp, err := g.submit(source, &txnbuild.ManageSellOffer{
		Selling: toTxAsset(selling),
		Buying:  toTxAsset(buying),
		Amount:  amount.String(),
		Price:   p,
		OfferID: offerID,
	})
	if err != nil {
		return 0, err
	}
	if amount.IsZero() {
		return 0, nil
	}
	return offerIDFromResult(resp.ResultXdr, false)
}

func (g *Gateway) SubmitBuyOffer(_ context.Context, source domain.Account, selling, buying domain.Asset, buyAmount, offerPrice decimal.Decimal) (int64, error) {
	p, err := price.Parse(offerPrice.String())
	if err != nil {
		return 0, errors.Wrap(err, "price outside protocol-allowed precision")
	}
	resp, err := g.submit(source, &txnbuild.ManageBuyOffer{
		Selling: toTxAsset(selling),
		Buying:  toTxAsset(buying),
		Amount:  buyAmount.String(),
		Price:   p,
		OfferID: 0,
	})
	if err != nil {
		return 0, err
	}
	return offerIDFromResult(resp.ResultXdr, true)
}

func (g *Gateway) submit(source domain.Account, ops ...txnbuild.Operation) (hProtocol.Transaction, error) {
	kp, ok := g.signers[source.ID]
	if !ok {
		return hProtocol.Transaction{}, &gateway.PreconditionError{
			Msg: "no signing key for account " + source.ID,
		}
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: source.ID, Sequence: source.Sequence},
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(300)},
	})
	if err != nil {
		return hProtocol.Transaction{}, errors.Wrap(err, "build transaction")
	}
	tx, err = tx.Sign(g.passphrase, kp)
	if err != nil {
		return hProtocol.Transaction{}, errors.Wrap(err, "sign transaction")
	}

	resp, err := g.client.SubmitTransaction(tx)
	if err != nil {
		return hProtocol.Transaction{}, mapError(err)
	}
	return resp, nil
}

// offerIDFromResult pulls the resting offer's id out of the transaction
// result. A zero id means the offer was fully consumed by matching trades
// and nothing rests in the book.
func offerIDFromResult(resultXDR string, buy bool) (int64, error) {
	var result xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(resultXDR, &result); err != nil {
		return 0, errors.Wrap(err, "decode transaction result")
	}
	opResults, ok := result.OperationResults()
	if !ok || len(opResults) == 0 {
		return 0, nil
	}
	tr, ok := opResults[0].GetTr()
	if !ok {
		return 0, nil
	}

	var success *xdr.ManageOfferSuccessResult
	if buy {
		if r, ok := tr.GetManageBuyOfferResult(); ok {
			success = r.Success
		}
	} else {
		if r, ok := tr.GetManageSellOfferResult(); ok {
			success = r.Success
		}
	}
	if success == nil {
		return 0, nil
	}
	if entry, ok := success.Offer.GetOffer(); ok {
		return int64(entry.OfferId), nil
	}
	return 0, nil
}

// mapError translates horizon failures into the gateway taxonomy:
// protocol rejections carry result codes and must not be retried
// verbatim, transport failures (including horizon-side timeouts) may be
// retried after re-checking account state.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if horizonclient.IsNotFoundError(err) {
		return gateway.ErrNotFound
	}
	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return &gateway.NetworkError{Err: err}
	}
	switch hErr.Problem.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &gateway.NetworkError{Err: hErr}
	}

	code := hErr.Problem.Title
	reason := hErr.Problem.Detail
	if rc, rcErr := hErr.ResultCodes(); rcErr == nil && rc != nil {
		code = rc.TransactionCode
		if len(rc.OperationCodes) > 0 {
			reason = strings.Join(rc.OperationCodes, ", ")
		}
	}
	return &gateway.RejectedError{Code: code, Reason: reason}
}

func toTxAsset(a domain.Asset) txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}

func toRequestAsset(a domain.Asset) (horizonclient.AssetType, string, string) {
	if a.IsNative() {
		return horizonclient.AssetTypeNative, "", ""
	}
	if len(a.Code) <= 4 {
		return horizonclient.AssetType4, a.Code, a.Issuer
	}
	return horizonclient.AssetType12, a.Code, a.Issuer
}

func fromBaseAsset(a base.Asset) domain.Asset {
	if a.Type == "native" {
		return domain.NativeAsset()
	}
	return domain.CreditAsset(a.Code, a.Issuer)
}

func fromOfferRecord(rec hProtocol.Offer) (domain.Offer, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return domain.Offer{}, errors.Wrapf(err, "parse amount of offer %d", rec.ID)
	}
	offerPrice, err := decimal.NewFromString(rec.Price)
	if err != nil {
		return domain.Offer{}, errors.Wrapf(err, "parse price of offer %d", rec.ID)
	}
	return domain.Offer{
		ID:      rec.ID,
		Seller:  rec.Seller,
		Selling: fromBaseAsset(base.Asset(rec.Selling)),
		Buying:  fromBaseAsset(base.Asset(rec.Buying)),
		Amount:  amount,
		Price:   offerPrice,
	}, nil
}

func fromLevels(levels []hProtocol.PriceLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return nil, errors.Wrap(err, "parse order book price")
		}
		amount, err := decimal.NewFromString(lvl.Amount)
		if err != nil {
			return nil, errors.Wrap(err, "parse order book amount")
		}
		out = append(out, domain.PriceLevel{Price: p, Amount: amount})
	}
	return out, nil
}
