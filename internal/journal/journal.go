// Package journal persists bootstrap progress in an append-only WAL so a
// re-run of the process can tell which accounts were already funded.
// Funding is the one non-idempotent step of the bootstrap: trust lines
// and offer reconciliation can be replayed safely, a repeated payment
// double-funds.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/stelmark/bookmaker/internal/domain"
)

const (
	fundingKeyPrefix = "funding_"
	segmentLimit     = 100
	maxSegments      = 10
)

// FundingRecord marks a completed payment of asset to an account.
type FundingRecord struct {
	ID      string          `json:"id"`
	Account string          `json:"account"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
	Time    time.Time       `json:"time"`
}

// Journal is a WAL-backed record of completed funding steps.
type Journal struct {
	wal    *gowal.Wal
	mu     sync.Mutex
	funded map[string]FundingRecord
}

// Open initializes the journal in dir and replays existing records.
func Open(dir string) (*Journal, error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "seg_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init bootstrap journal")
	}

	j := &Journal{wal: wal, funded: make(map[string]FundingRecord)}
	for msg := range wal.Iterator() {
		var rec FundingRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return nil, errors.Wrapf(err, "corrupt journal record %s", msg.Key)
		}
		j.funded[fundingKey(rec.Account, rec.Asset)] = rec
	}
	return j, nil
}

// Funded reports whether a previous run already paid the asset out to the
// account.
func (j *Journal) Funded(account string, asset domain.Asset) bool {
	if j == nil {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.funded[fundingKey(account, asset.String())]
	return ok
}

// MarkFunded records a completed payment.
func (j *Journal) MarkFunded(account string, asset domain.Asset, amount decimal.Decimal) error {
	if j == nil {
		return nil
	}

	rec := FundingRecord{
		ID:      uuid.New().String(),
		Account: account,
		Asset:   asset.String(),
		Amount:  amount,
		Time:    time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal funding record")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	key := fundingKey(account, rec.Asset)
	if err := j.wal.Write(j.wal.CurrentIndex()+1, key, payload); err != nil {
		return errors.Wrap(err, "write funding record")
	}
	j.funded[key] = rec
	return nil
}

// Close flushes and closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.wal.Close()
}

func fundingKey(account, asset string) string {
	return fmt.Sprintf("%s%s_%s", fundingKeyPrefix, account, asset)
}
