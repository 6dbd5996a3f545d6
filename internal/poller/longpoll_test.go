package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/offerwatch/internal/dedup"
	"github.com/rickgao/offerwatch/internal/model"
)

// flakySet fails the first n Add calls.
type flakySet struct {
	*dedup.MemorySet
	failures atomic.Int32
}

func (f *flakySet) Add(ctx context.Context, id string) (bool, error) {
	if f.failures.Add(-1) >= 0 {
		return false, errors.New("redis: connection refused")
	}
	return f.MemorySet.Add(ctx, id)
}

func newTestLongPoller(t *testing.T) (*Poller, *LongPoller) {
	t.Helper()
	p := newManualPoller(t)
	lp := NewLongPoller(p, nil, nil, discardLogger())
	t.Cleanup(lp.Close)
	return p, lp
}

func TestLongPoller_AnnouncesEachOfferOnce(t *testing.T) {
	p, lp := newTestLongPoller(t)
	obs := lp.Observe("test", 16)

	src := &fakeSource{}
	src.set(&model.OffersResponse{
		Sent:     []model.Offer{offer("1", model.StateActive)},
		Received: []model.Offer{offer("2", model.StateActive)},
	}, nil)
	require.NoError(t, lp.AddAccount("bot", src))

	tick(p)
	events := obs.DrainTo(0)
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].Offer.ID, "sent offers come first")
	assert.Equal(t, "2", events[1].Offer.ID)
	assert.Equal(t, "bot", events[0].AccountKey)
	assert.False(t, events[0].SeenAt.IsZero())

	tick(p)
	assert.Empty(t, obs.DrainTo(0), "already announced offers are not repeated")

	src.set(&model.OffersResponse{
		Sent:     []model.Offer{offer("1", model.StateAccepted)},
		Received: []model.Offer{offer("2", model.StateActive), offer("3", model.StateActive)},
	}, nil)
	tick(p)
	events = obs.DrainTo(0)
	require.Len(t, events, 1)
	assert.Equal(t, "3", events[0].Offer.ID)
	assert.Equal(t, int64(3), lp.Stats().Announced)
}

func TestLongPoller_WatchUsesActiveFetches(t *testing.T) {
	p, lp := newTestLongPoller(t)
	src := &fakeSource{}
	src.set(&model.OffersResponse{}, nil)
	require.NoError(t, lp.AddAccount("bot", src))

	first := tick(p)
	req := src.lastRequest()
	assert.True(t, req.Sent)
	assert.True(t, req.Received)
	assert.False(t, req.Historical)
	assert.True(t, req.Since.IsZero())

	tick(p)
	assert.True(t, src.lastRequest().Since.Equal(first.Add(-time.Minute)))
}

func TestLongPoller_DoesNotTouchSubscriptions(t *testing.T) {
	p, lp := newTestLongPoller(t)
	obs := lp.Observe("test", 16)

	src := &fakeSource{}
	src.set(sent(offer("1", model.StateActive)), nil)
	require.NoError(t, lp.AddAccount("bot", src))

	fut, err := p.Subscribe(context.Background(), Request{
		Account: src, AccountKey: "bot", OfferID: "1", OriginalState: model.StateActive,
		Deadline: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	tick(p)
	assert.Equal(t, 1, src.calls(), "the watch and the subscription share one fetch")
	assert.True(t, fut.Pending())
	assert.Len(t, obs.DrainTo(0), 1)
	assert.Equal(t, 2, p.Pending())
}

func TestLongPoller_IgnoresUnwatchedAccounts(t *testing.T) {
	p, lp := newTestLongPoller(t)
	obs := lp.Observe("test", 16)

	src := &fakeSource{}
	src.set(sent(offer("1", model.StateActive), offer("2", model.StateActive)), nil)

	_, err := p.Subscribe(context.Background(), Request{
		Account: src, AccountKey: "other", OfferID: "1", OriginalState: model.StateActive,
		Deadline: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	tick(p)
	assert.Equal(t, 1, src.calls())
	assert.Empty(t, obs.DrainTo(0))
	assert.Zero(t, lp.Stats().Announced)
}

func TestLongPoller_SeenSetErrorRetriesNextTick(t *testing.T) {
	p := newManualPoller(t)
	seen := &flakySet{MemorySet: dedup.NewMemorySet()}
	seen.failures.Store(1)
	lp := NewLongPoller(p, seen, nil, discardLogger())
	t.Cleanup(lp.Close)
	obs := lp.Observe("test", 16)

	src := &fakeSource{}
	src.set(sent(offer("1", model.StateActive)), nil)
	require.NoError(t, lp.AddAccount("bot", src))

	tick(p)
	assert.Empty(t, obs.DrainTo(0))
	assert.Equal(t, int64(1), lp.Stats().SeenErrors)

	tick(p)
	assert.Len(t, obs.DrainTo(0), 1)
}

func TestLongPoller_RemoveAccount(t *testing.T) {
	p, lp := newTestLongPoller(t)

	err := lp.RemoveAccount("ghost")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	src := &fakeSource{}
	require.NoError(t, lp.AddAccount("bot", src))
	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, []string{"bot"}, lp.Accounts())

	require.NoError(t, lp.RemoveAccount("bot"))
	require.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, lp.Accounts())

	tick(p)
	assert.Zero(t, src.calls(), "removed accounts are no longer polled")

	err = lp.RemoveAccount("bot")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestLongPoller_AddAccountReplaces(t *testing.T) {
	p, lp := newTestLongPoller(t)

	old := &fakeSource{}
	replacement := &fakeSource{}
	replacement.set(&model.OffersResponse{}, nil)

	require.NoError(t, lp.AddAccount("bot", old))
	require.NoError(t, lp.AddAccount("bot", replacement))

	require.Eventually(t, func() bool { return p.Pending() == 1 }, time.Second, 5*time.Millisecond)
	tick(p)
	assert.Zero(t, old.calls())
	assert.Equal(t, 1, replacement.calls())
	assert.Equal(t, 1, lp.Stats().Accounts)
}

func TestLongPoller_AddAccountValidation(t *testing.T) {
	_, lp := newTestLongPoller(t)

	assert.ErrorIs(t, lp.AddAccount("", &fakeSource{}), ErrMissingAccountKey)
	assert.ErrorIs(t, lp.AddAccount("bot", nil), ErrMissingAccount)
}

func TestLongPoller_ObserversAreIndependent(t *testing.T) {
	p, lp := newTestLongPoller(t)
	fast := lp.Observe("fast", 16)
	slow := lp.Observe("slow", 1)

	src := &fakeSource{}
	src.set(sent(offer("1", model.StateActive), offer("2", model.StateActive)), nil)
	require.NoError(t, lp.AddAccount("bot", src))

	tick(p)
	assert.Len(t, fast.DrainTo(0), 2)

	got := slow.DrainTo(0)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].Offer.ID, "a full observer keeps the newest event")
	assert.Equal(t, int64(1), slow.Stats().Dropped)
}
