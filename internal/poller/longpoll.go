package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/offerwatch/internal/dedup"
	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/notify"
)

type accountWatch struct {
	source OfferSource
	cancel context.CancelFunc
	future *Future
}

// LongPoller keeps whole accounts under watch and announces every offer it
// has not seen before. It never touches the subscriptions of other callers.
type LongPoller struct {
	poller *Poller
	seen   dedup.Set
	events *notify.Broadcaster[model.NewOfferEvent]
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	accounts map[string]*accountWatch

	announced atomic.Int64
	seenErrs  atomic.Int64
}

// NewLongPoller attaches a LongPoller to p. A nil seen set defaults to an
// in-memory one; a nil broadcaster to one with default observer queues.
func NewLongPoller(p *Poller, seen dedup.Set, events *notify.Broadcaster[model.NewOfferEvent], logger *slog.Logger) *LongPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if seen == nil {
		seen = dedup.NewMemorySet()
	}
	if events == nil {
		events = notify.NewBroadcaster[model.NewOfferEvent](0, logger)
	}

	lp := &LongPoller{
		poller:   p,
		seen:     seen,
		events:   events,
		logger:   logger,
		now:      time.Now,
		accounts: make(map[string]*accountWatch),
	}
	p.AddFetchHook(lp)
	return lp
}

// AddAccount starts watching an account. Adding a key that is already
// watched replaces the previous registration.
func (lp *LongPoller) AddAccount(accountKey string, source OfferSource) error {
	if accountKey == "" {
		return ErrMissingAccountKey
	}
	if source == nil {
		return ErrMissingAccount
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if prev, ok := lp.accounts[accountKey]; ok {
		prev.cancel()
		delete(lp.accounts, accountKey)
		lp.logger.Info("replacing account watch", "account", accountKey)
	}

	ctx, cancel := context.WithCancel(context.Background())
	fut, err := lp.poller.Watch(ctx, source, accountKey)
	if err != nil {
		cancel()
		return fmt.Errorf("watch %s: %w", accountKey, err)
	}

	lp.accounts[accountKey] = &accountWatch{source: source, cancel: cancel, future: fut}
	lp.logger.Info("watching account for new offers", "account", accountKey)
	return nil
}

// RemoveAccount stops watching an account. Polling for it stops once no
// other subscription references the key.
func (lp *LongPoller) RemoveAccount(accountKey string) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	w, ok := lp.accounts[accountKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, accountKey)
	}
	w.cancel()
	delete(lp.accounts, accountKey)

	lp.logger.Info("stopped watching account", "account", accountKey)
	return nil
}

// Accounts returns the watched account keys in sorted order.
func (lp *LongPoller) Accounts() []string {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	keys := make([]string, 0, len(lp.accounts))
	for k := range lp.accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Events returns the broadcaster new-offer events are published on.
func (lp *LongPoller) Events() *notify.Broadcaster[model.NewOfferEvent] {
	return lp.events
}

// Observe registers a new observer of new-offer events.
func (lp *LongPoller) Observe(name string, size int) *notify.Observer[model.NewOfferEvent] {
	return lp.events.Subscribe(name, size)
}

// LongPollStats is a point-in-time view of the long poller.
type LongPollStats struct {
	Accounts   int   `json:"accounts"`
	Observers  int   `json:"observers"`
	Announced  int64 `json:"announced"`
	SeenErrors int64 `json:"seen_errors"`
}

// Stats returns long poller counters.
func (lp *LongPoller) Stats() LongPollStats {
	lp.mu.Lock()
	n := len(lp.accounts)
	lp.mu.Unlock()

	return LongPollStats{
		Accounts:   n,
		Observers:  lp.events.Len(),
		Announced:  lp.announced.Load(),
		SeenErrors: lp.seenErrs.Load(),
	}
}

// OnAccountFetched implements FetchHook. Sent offers are considered before
// received ones. Accounts fetched only for explicit subscriptions are ignored.
func (lp *LongPoller) OnAccountFetched(ctx context.Context, accountKey string, offers *model.OffersResponse) {
	lp.mu.Lock()
	_, watched := lp.accounts[accountKey]
	lp.mu.Unlock()
	if !watched {
		return
	}

	for _, offer := range offers.All() {
		added, err := lp.seen.Add(ctx, offer.ID)
		if err != nil {
			lp.seenErrs.Add(1)
			lp.logger.Warn("failed to record seen offer",
				"account", accountKey,
				"offer", offer.ID,
				"err", err,
			)
		}
		if !added {
			continue
		}

		lp.announced.Add(1)
		lp.events.Publish(model.NewOfferEvent{
			AccountKey: accountKey,
			Offer:      offer,
			SeenAt:     lp.now(),
		})
	}
}

// Close stops every account watch and closes the event stream.
func (lp *LongPoller) Close() {
	lp.mu.Lock()
	for key, w := range lp.accounts {
		w.cancel()
		delete(lp.accounts, key)
	}
	lp.mu.Unlock()

	lp.events.Close()
}
