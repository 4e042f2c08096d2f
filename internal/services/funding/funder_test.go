package funding

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
	"github.com/stelmark/bookmaker/internal/gateway/ledgertest"
)

func setupLedger(t *testing.T) (*ledgertest.Ledger, domain.Asset) {
	t.Helper()
	ledger := ledgertest.New()
	ledger.CreateAccount("GISSUER", decimal.NewFromInt(100))
	ledger.CreateAccount("GBUYER", decimal.NewFromInt(100))
	return ledger, domain.CreditAsset("USD", "GISSUER")
}

func TestFund(t *testing.T) {
	ledger, usd := setupLedger(t)
	ledger.SetBalance("GBUYER", usd, decimal.Zero)

	f := NewFunder(ledger, zap.NewNop())

	issuer, err := ledger.LoadAccount(context.Background(), "GISSUER")
	require.NoError(t, err)
	buyer, err := ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)

	require.NoError(t, f.Fund(context.Background(), issuer, buyer, usd, decimal.NewFromInt(25)))

	buyer, err = ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)
	assert.True(t, buyer.Balance(usd).Equal(decimal.NewFromInt(25)))
}

func TestFundWithoutTrustFailsFast(t *testing.T) {
	ledger, usd := setupLedger(t)

	f := NewFunder(ledger, zap.NewNop())

	issuer, err := ledger.LoadAccount(context.Background(), "GISSUER")
	require.NoError(t, err)
	buyer, err := ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)

	err = f.Fund(context.Background(), issuer, buyer, usd, decimal.NewFromInt(25))
	var pe *gateway.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, ledger.Calls(ledgertest.OpPay), "caller misuse must not reach the ledger")
}

func TestFundNonPositiveAmount(t *testing.T) {
	ledger, usd := setupLedger(t)
	ledger.SetBalance("GBUYER", usd, decimal.Zero)

	f := NewFunder(ledger, zap.NewNop())

	issuer, err := ledger.LoadAccount(context.Background(), "GISSUER")
	require.NoError(t, err)
	buyer, err := ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)

	var pe *gateway.PreconditionError
	require.ErrorAs(t, f.Fund(context.Background(), issuer, buyer, usd, decimal.Zero), &pe)
}

func TestFundUnknownOutcomeNotDoubleSubmitted(t *testing.T) {
	ledger, usd := setupLedger(t)
	ledger.SetBalance("GBUYER", usd, decimal.Zero)
	// the payment is accepted but the response times out
	ledger.InjectAfterEffect(ledgertest.OpPay, 1, &gateway.NetworkError{Err: context.DeadlineExceeded})

	f := NewFunder(ledger, zap.NewNop())

	issuer, err := ledger.LoadAccount(context.Background(), "GISSUER")
	require.NoError(t, err)
	buyer, err := ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)

	require.NoError(t, f.Fund(context.Background(), issuer, buyer, usd, decimal.NewFromInt(25)))
	assert.Equal(t, 1, ledger.Calls(ledgertest.OpPay),
		"the retry must see the advanced sequence number and not double-fund")

	buyer, err = ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)
	assert.True(t, buyer.Balance(usd).Equal(decimal.NewFromInt(25)))
}

func TestFundTransportErrorBeforeAcceptanceIsRetried(t *testing.T) {
	ledger, usd := setupLedger(t)
	ledger.SetBalance("GBUYER", usd, decimal.Zero)
	// connection drops before the ledger sees the transaction
	ledger.Inject(ledgertest.OpPay, 1, &gateway.NetworkError{Err: context.DeadlineExceeded})

	f := NewFunder(ledger, zap.NewNop())

	issuer, err := ledger.LoadAccount(context.Background(), "GISSUER")
	require.NoError(t, err)
	buyer, err := ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)

	require.NoError(t, f.Fund(context.Background(), issuer, buyer, usd, decimal.NewFromInt(25)))
	assert.Equal(t, 2, ledger.Calls(ledgertest.OpPay))

	buyer, err = ledger.LoadAccount(context.Background(), "GBUYER")
	require.NoError(t, err)
	assert.True(t, buyer.Balance(usd).Equal(decimal.NewFromInt(25)), "exactly one payment lands")
}
