package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/offerwatch/internal/model"
)

// FetchRequest describes the slice of offers one account group needs.
type FetchRequest struct {
	Sent       bool
	Received   bool
	Historical bool      // include offers that are no longer active
	Since      time.Time // zero means a full fetch
}

// OfferSource fetches the current offers of one account.
type OfferSource interface {
	FetchOffers(ctx context.Context, req FetchRequest) (*model.OffersResponse, error)
}

// OfferSourceFunc is a function adapter for OfferSource.
type OfferSourceFunc func(ctx context.Context, req FetchRequest) (*model.OffersResponse, error)

func (f OfferSourceFunc) FetchOffers(ctx context.Context, req FetchRequest) (*model.OffersResponse, error) {
	return f(ctx, req)
}

// Request describes one subscription.
type Request struct {
	Account       OfferSource
	AccountKey    string
	OfferID       string
	OriginalState model.OfferState
	Direction     model.Direction
	Deadline      time.Time // zero waits forever
}

// Subscription is one outstanding wait registered with the Poller.
type Subscription struct {
	ID            uuid.UUID
	AccountKey    string
	OfferID       string // empty for a watch-all subscription
	OriginalState model.OfferState
	Direction     model.Direction
	Deadline      time.Time

	account OfferSource
	future  *Future

	// set once a full fetch has listed the offer
	observed atomic.Bool

	hookMu   sync.Mutex
	released bool
	timer    *time.Timer
	stopCtx  func() bool
}

func newSubscription(req Request) *Subscription {
	id := uuid.New()
	s := &Subscription{
		ID:            id,
		AccountKey:    req.AccountKey,
		OfferID:       req.OfferID,
		OriginalState: req.OriginalState,
		Direction:     req.Direction,
		Deadline:      req.Deadline,
		account:       req.Account,
		future:        newFuture(id),
	}
	if s.OfferID == "" {
		s.observed.Store(true)
	}
	return s
}

// watchesOffer reports whether the subscription targets a specific offer.
func (s *Subscription) watchesOffer() bool {
	return s.OfferID != ""
}

// arm installs the deadline timer and the cancellation hook. Hooks armed
// after release are torn down immediately.
func (s *Subscription) arm(ctx context.Context, onTimeout, onCancel func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	if s.released {
		return
	}
	if !s.Deadline.IsZero() {
		s.timer = time.AfterFunc(time.Until(s.Deadline), onTimeout)
	}
	if ctx.Done() != nil {
		s.stopCtx = context.AfterFunc(ctx, onCancel)
	}
}

// release stops the timer and the cancellation hook. Safe to call more than once.
func (s *Subscription) release() {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.released = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stopCtx != nil {
		s.stopCtx()
		s.stopCtx = nil
	}
}
