package poller

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/offerwatch/internal/model"
)

const (
	futurePending int32 = iota
	futureCompleting
	futureResolved
	futureFailed
)

// Future is the single-assignment result of a subscription. It transitions
// from pending to exactly one of resolved or failed.
type Future struct {
	id    uuid.UUID
	state atomic.Int32
	done  chan struct{}

	// written once by the winning transition, read after done is closed
	result model.OfferState
	err    error
}

func newFuture(id uuid.UUID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the id of the subscription behind the future.
func (f *Future) ID() uuid.UUID { return f.id }

// Done is closed once the future completes.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future completes or ctx is done. Giving up on ctx
// does not cancel the subscription.
func (f *Future) Wait(ctx context.Context) (model.OfferState, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Result returns the outcome without blocking; ok is false while pending.
func (f *Future) Result() (state model.OfferState, err error, ok bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		return 0, nil, false
	}
}

// Pending reports whether the future has not completed yet.
func (f *Future) Pending() bool {
	return f.state.Load() <= futureCompleting
}

func (f *Future) resolve(s model.OfferState) bool {
	if !f.state.CompareAndSwap(futurePending, futureCompleting) {
		return false
	}
	f.result = s
	f.state.Store(futureResolved)
	close(f.done)
	return true
}

func (f *Future) fail(err error) bool {
	if !f.state.CompareAndSwap(futurePending, futureCompleting) {
		return false
	}
	f.err = err
	f.state.Store(futureFailed)
	close(f.done)
	return true
}
