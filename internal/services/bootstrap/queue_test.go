package bootstrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
	"github.com/stelmark/bookmaker/internal/gateway/ledgertest"
)

func TestQueueSerializesSameAccount(t *testing.T) {
	ledger := ledgertest.New()
	ledger.CreateAccount("GISSUER", decimal.NewFromInt(100))

	q := newAccountQueue("GISSUER", ledger)
	defer q.Close()

	var mu sync.Mutex
	var order []int
	active := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func(_ context.Context, _ domain.Account) error {
				mu.Lock()
				active++
				assert.Equal(t, 1, active, "two jobs for one account must never overlap")
				order = append(order, i)
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Len(t, order, 5)
}

func TestQueuesForDistinctAccountsDoNotBlock(t *testing.T) {
	ledger := ledgertest.New()
	ledger.CreateAccount("GBUYER", decimal.NewFromInt(100))
	ledger.CreateAccount("GSELLER", decimal.NewFromInt(100))

	qa := newAccountQueue("GBUYER", ledger)
	qb := newAccountQueue("GSELLER", ledger)
	defer qa.Close()
	defer qb.Close()

	release := make(chan struct{})
	blocked := make(chan struct{})

	go func() {
		_ = qa.Do(context.Background(), func(_ context.Context, _ domain.Account) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	// the other account's queue must make progress while qa is held
	done := make(chan struct{})
	go func() {
		_ = qb.Do(context.Background(), func(_ context.Context, _ domain.Account) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operation on a distinct account blocked on an unrelated queue")
	}
	close(release)
}

func TestQueueJobSeesFreshSequence(t *testing.T) {
	ledger := ledgertest.New()
	ledger.CreateAccount("GBUYER", decimal.NewFromInt(100))

	q := newAccountQueue("GBUYER", ledger)
	defer q.Close()

	usd := domain.CreditAsset("USD", "GISSUER")
	var first, second int64

	require.NoError(t, q.Do(context.Background(), func(ctx context.Context, acc domain.Account) error {
		first = acc.Sequence
		return ledger.SubmitTrustLine(ctx, acc, usd)
	}))
	require.NoError(t, q.Do(context.Background(), func(_ context.Context, acc domain.Account) error {
		second = acc.Sequence
		return nil
	}))

	assert.Equal(t, first+1, second, "each job must run against a re-fetched snapshot")
}

func TestQueueRetriesTransientLoad(t *testing.T) {
	ledger := ledgertest.New()
	ledger.CreateAccount("GBUYER", decimal.NewFromInt(100))
	ledger.Inject(ledgertest.OpLoad, 1, &gateway.NetworkError{Err: context.DeadlineExceeded})

	q := newAccountQueue("GBUYER", ledger)
	defer q.Close()

	require.NoError(t, q.Do(context.Background(), func(_ context.Context, acc domain.Account) error {
		assert.Equal(t, "GBUYER", acc.ID)
		return nil
	}))
	assert.Equal(t, 2, ledger.Calls(ledgertest.OpLoad), "a transient load failure is re-fetched, not served from cache")
}
