package bootstrap

import (
	"context"

	"github.com/pkg/errors"

	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway"
	"github.com/stelmark/bookmaker/pkg/retrier"
)

// accountQueue serializes ledger work for a single account. The ledger
// rejects out-of-order sequence numbers, so every operation sourced from
// one account must go through that account's queue; queues for different
// accounts never block each other. The queue goroutine loads a fresh
// snapshot before each job, so a job always sees the current sequence
// number and owns it exclusively until the job returns.
type accountQueue struct {
	id    string
	gw    gateway.Gateway
	retry *retrier.Retrier
	jobs  chan queueJob
	done  chan struct{}
}

type queueJob struct {
	ctx    context.Context
	fn     func(ctx context.Context, acc domain.Account) error
	result chan error
}

func newAccountQueue(id string, gw gateway.Gateway) *accountQueue {
	q := &accountQueue{
		id:    id,
		gw:    gw,
		retry: retrier.New(retrier.WithRetryIf(gateway.IsTemporary)),
		jobs:  make(chan queueJob),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *accountQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		// a transient load failure is retried with a full re-fetch, never
		// with a cached sequence number
		acc, err := retrier.DoWithData(q.retry, job.ctx, func(ctx context.Context) (domain.Account, error) {
			return q.gw.LoadAccount(ctx, q.id)
		})
		if err != nil {
			job.result <- errors.Wrapf(err, "load account %s", q.id)
			continue
		}
		job.result <- job.fn(job.ctx, acc)
	}
}

// Do runs fn on the queue with a fresh account snapshot and waits for it.
func (q *accountQueue) Do(ctx context.Context, fn func(ctx context.Context, acc domain.Account) error) error {
	job := queueJob{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case q.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue after draining queued jobs.
func (q *accountQueue) Close() {
	close(q.jobs)
	<-q.done
}
