package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rickgao/offerwatch/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newManualPoller returns a poller whose loop never ticks on its own, so
// tests drive ticks with pollAll.
func newManualPoller(t *testing.T, opts ...Option) *Poller {
	t.Helper()
	return newTestPoller(t, Config{Interval: time.Hour, WatermarkSlack: time.Minute}, opts...)
}

func newTestPoller(t *testing.T, cfg Config, opts ...Option) *Poller {
	t.Helper()
	p := New(cfg, discardLogger(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return p
}

func tick(p *Poller) time.Time {
	start := time.Now()
	p.pollAll(start)
	return start
}

func offer(id string, state model.OfferState) model.Offer {
	return model.Offer{ID: id, State: state, IsOurOffer: true}
}

func sent(offers ...model.Offer) *model.OffersResponse {
	return &model.OffersResponse{Sent: offers}
}

func waitFuture(t *testing.T, f *Future) (model.OfferState, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-f.Done():
	case <-ctx.Done():
		t.Fatalf("future %s did not complete", f.ID())
	}
	return f.Wait(ctx)
}

// fakeSource serves a scripted response and records every request.
type fakeSource struct {
	mu       sync.Mutex
	resp     *model.OffersResponse
	err      error
	panicMsg string
	reqs     []FetchRequest
}

func (f *fakeSource) set(resp *model.OffersResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resp, f.err = resp, err
}

func (f *fakeSource) FetchOffers(_ context.Context, req FetchRequest) (*model.OffersResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.resp, f.err
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeSource) lastRequest() FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		return FetchRequest{}
	}
	return f.reqs[len(f.reqs)-1]
}

// stubSource is a testify mock of OfferSource.
type stubSource struct{ mock.Mock }

func (s *stubSource) FetchOffers(ctx context.Context, req FetchRequest) (*model.OffersResponse, error) {
	ret := s.Called(ctx, req)
	var r *model.OffersResponse
	if ret.Get(0) != nil {
		r = ret.Get(0).(*model.OffersResponse)
	}
	return r, ret.Error(1)
}
