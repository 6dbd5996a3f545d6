package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/offerwatch/internal/model"
)

// FetchHook is told about every successful account fetch, after the
// account's subscriptions have been matched against it.
type FetchHook interface {
	OnAccountFetched(ctx context.Context, accountKey string, offers *model.OffersResponse)
}

// FetchHookFunc is a function adapter for FetchHook.
type FetchHookFunc func(ctx context.Context, accountKey string, offers *model.OffersResponse)

func (f FetchHookFunc) OnAccountFetched(ctx context.Context, accountKey string, offers *model.OffersResponse) {
	f(ctx, accountKey, offers)
}

// Config holds poller configuration.
type Config struct {
	Interval       time.Duration // Delay between tick starts (default: 10s)
	Concurrency    int           // Max accounts fetched in parallel (default: 16)
	Timeout        time.Duration // Per-fetch timeout (default: 30s)
	WatermarkSlack time.Duration // Overlap subtracted from the watermark (default: 1m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       10 * time.Second,
		Concurrency:    16,
		Timeout:        30 * time.Second,
		WatermarkSlack: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.WatermarkSlack < 0 {
		c.WatermarkSlack = 0
	}
	return c
}

// Option configures a Poller.
type Option func(*Poller)

// WithFetchHook registers a hook at construction time.
func WithFetchHook(h FetchHook) Option {
	return func(p *Poller) {
		p.hooks = append(p.hooks, h)
	}
}

// Stats is a point-in-time view of the poller.
type Stats struct {
	Running     bool          `json:"running"`
	Pending     int           `json:"pending"`
	Interval    time.Duration `json:"interval"`
	Watermark   time.Time     `json:"watermark"`
	Ticks       int64         `json:"ticks"`
	Fetches     int64         `json:"fetches"`
	FetchErrors int64         `json:"fetch_errors"`
	Resolved    int64         `json:"resolved"`
	NotFound    int64         `json:"not_found"`
	TimedOut    int64         `json:"timed_out"`
	Canceled    int64         `json:"canceled"`
}

// Poller multiplexes offer subscriptions onto one bulk fetch per account
// per tick. The loop starts with the first subscription and goes dormant
// whenever nothing is pending.
type Poller struct {
	cfg      Config
	interval atomic.Int64
	wake     chan struct{}
	reg      *registry
	logger   *slog.Logger

	hooksMu sync.RWMutex
	hooks   []FetchHook

	// unix nanos of the start of the last fully successful tick, 0 if none
	watermark atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ticks       atomic.Int64
	fetches     atomic.Int64
	fetchErrors atomic.Int64
	resolved    atomic.Int64
	notFound    atomic.Int64
	timedOut    atomic.Int64
	canceled    atomic.Int64
}

// New creates a new Poller. No goroutine runs until the first Subscribe.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	p := &Poller{
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
		reg:    newRegistry(),
		logger: logger,
	}
	p.interval.Store(int64(cfg.Interval))
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddFetchHook registers h for subsequent ticks.
func (p *Poller) AddFetchHook(h FetchHook) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.hooks = append(p.hooks, h)
}

// SetInterval changes the polling interval. A sleeping loop picks the new
// value up immediately, measured from the start of its last tick.
func (p *Poller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, d)
	}
	p.interval.Store(int64(d))
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Interval returns the current polling interval.
func (p *Poller) Interval() time.Duration {
	return time.Duration(p.interval.Load())
}

// Subscribe waits for offer req.OfferID to leave req.OriginalState.
//
// The returned future resolves with the new state, or fails with
// ErrOfferNotFound, ErrTimeout (req.Deadline passed), ErrCanceled (ctx done)
// or ErrClosed (Stop called). Validation errors are returned synchronously.
func (p *Poller) Subscribe(ctx context.Context, req Request) (*Future, error) {
	if req.Account == nil {
		return nil, ErrMissingAccount
	}
	if req.AccountKey == "" {
		return nil, ErrMissingAccountKey
	}
	if req.OfferID == "" {
		return nil, ErrMissingOfferID
	}
	return p.subscribe(ctx, req)
}

// Watch keeps account polled until ctx is canceled. The returned future only
// completes with ErrCanceled or ErrClosed.
func (p *Poller) Watch(ctx context.Context, account OfferSource, accountKey string) (*Future, error) {
	if account == nil {
		return nil, ErrMissingAccount
	}
	if accountKey == "" {
		return nil, ErrMissingAccountKey
	}
	return p.subscribe(ctx, Request{
		Account:    account,
		AccountKey: accountKey,
		Direction:  model.DirectionAny,
	})
}

func (p *Poller) subscribe(ctx context.Context, req Request) (*Future, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s := newSubscription(req)
	if err := p.reg.add(s, p.launch); err != nil {
		return nil, err
	}

	if s.Deadline.IsZero() && ctx.Done() == nil {
		p.logger.Warn("subscription can never expire",
			"account", s.AccountKey,
			"offer", s.OfferID,
		)
	}

	s.arm(ctx,
		func() {
			p.complete(s, 0, fmt.Errorf("offer %s on %s: %w", s.OfferID, s.AccountKey, ErrTimeout), &p.timedOut)
		},
		func() {
			err := fmt.Errorf("offer %s on %s: %w: %w", s.OfferID, s.AccountKey, ErrCanceled, context.Cause(ctx))
			p.complete(s, 0, err, &p.canceled)
		},
	)

	p.logger.Debug("subscription added",
		"id", s.ID,
		"account", s.AccountKey,
		"offer", s.OfferID,
		"state", s.OriginalState,
	)
	return s.future, nil
}

// complete removes s from the registry and, if this call won the removal,
// counts the outcome and settles the future. Returns false if another path
// got there first.
func (p *Poller) complete(s *Subscription, state model.OfferState, err error, counter *atomic.Int64) bool {
	if !p.reg.remove(s) {
		return false
	}
	counter.Add(1)
	s.release()
	if err != nil {
		s.future.fail(err)
	} else {
		s.future.resolve(state)
	}
	return true
}

// Pending returns the number of subscriptions waiting.
func (p *Poller) Pending() int {
	return p.reg.len()
}

// PendingByAccount returns the number of waiting subscriptions per account key.
func (p *Poller) PendingByAccount() map[string]int {
	groups := p.reg.snapshotByAccount()
	out := make(map[string]int, len(groups))
	for key, members := range groups {
		out[key] = len(members)
	}
	return out
}

// Stats returns a snapshot of poller counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Running:     p.reg.isRunning(),
		Pending:     p.reg.len(),
		Interval:    p.Interval(),
		Watermark:   p.Watermark(),
		Ticks:       p.ticks.Load(),
		Fetches:     p.fetches.Load(),
		FetchErrors: p.fetchErrors.Load(),
		Resolved:    p.resolved.Load(),
		NotFound:    p.notFound.Load(),
		TimedOut:    p.timedOut.Load(),
		Canceled:    p.canceled.Load(),
	}
}

// Watermark returns the start of the last tick in which every account fetch
// succeeded, or the zero time.
func (p *Poller) Watermark() time.Time {
	ns := p.watermark.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stop shuts the loop down and fails every pending subscription with ErrClosed.
func (p *Poller) Stop(ctx context.Context) error {
	drained := p.reg.close()
	p.cancel()

	for _, s := range drained {
		s.release()
		s.future.fail(fmt.Errorf("offer %s on %s: %w", s.OfferID, s.AccountKey, ErrClosed))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("offer poller stopped", "failed_pending", len(drained))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launch starts a loop goroutine. Called with the registry lock held.
func (p *Poller) launch(gen uint64) {
	p.wg.Add(1)
	go p.run(gen)
}

// run is the polling loop for one generation.
func (p *Poller) run(gen uint64) {
	defer p.wg.Done()

	p.logger.Debug("offer poller started", "generation", gen, "interval", p.Interval())

	last := time.Now()
	for {
		if !p.sleepUntil(last) {
			return
		}
		if p.reg.stopIfEmpty(gen) {
			p.logger.Debug("offer poller dormant", "generation", gen)
			return
		}
		last = time.Now()
		p.pollAll(last)
	}
}

// sleepUntil waits until last + interval. Returns false when the poller stops.
func (p *Poller) sleepUntil(last time.Time) bool {
	for {
		d := time.Until(last.Add(p.Interval()))
		if d <= 0 {
			return p.ctx.Err() == nil
		}

		timer := time.NewTimer(d)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return false
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
			return true
		}
	}
}

// pollAll runs one tick: every account group is fetched and matched
// concurrently. The watermark only moves if no group failed.
func (p *Poller) pollAll(tickStart time.Time) {
	groups := p.reg.snapshotByAccount()
	if len(groups) == 0 {
		return
	}
	p.ticks.Add(1)

	since := p.fetchWindow()

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	var fetched, failed, resolved atomic.Int64
	for key, members := range groups {
		g.Go(func() error {
			n, err := p.pollAccount(key, members, since)
			if err != nil {
				p.logger.Warn("failed to poll account",
					"account", key,
					"subscriptions", len(members),
					"err", err,
				)
				failed.Add(1)
				p.fetchErrors.Add(1)
				return nil
			}
			fetched.Add(1)
			resolved.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	if failed.Load() == 0 && p.ctx.Err() == nil {
		p.watermark.Store(tickStart.UnixNano())
	}

	p.logger.Debug("poll cycle complete",
		"accounts", len(groups),
		"fetched", fetched.Load(),
		"failed", failed.Load(),
		"resolved", resolved.Load(),
		"incremental", !since.IsZero(),
		"duration", time.Since(tickStart),
	)
}

// fetchWindow returns the lower bound for incremental fetches, or zero
// before the first fully successful tick.
func (p *Poller) fetchWindow() time.Time {
	wm := p.Watermark()
	if wm.IsZero() {
		return wm
	}
	return wm.Add(-p.cfg.WatermarkSlack)
}

// pollAccount fetches one account and settles its subscriptions. It returns
// the number of subscriptions completed.
func (p *Poller) pollAccount(key string, members []*Subscription, since time.Time) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("account poll panicked", "account", key, "panic", r)
			err = fmt.Errorf("panic polling %s: %v", key, r)
		}
	}()

	if p.ctx.Err() != nil {
		return 0, p.ctx.Err()
	}

	req := buildRequest(members, since)
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	p.fetches.Add(1)
	offers, err := members[0].account.FetchOffers(ctx, req)
	if err != nil {
		return 0, err
	}
	if offers == nil {
		offers = &model.OffersResponse{}
	}

	incremental := !req.Since.IsZero()
	for _, s := range members {
		if !s.watchesOffer() {
			continue
		}

		offer, ok := offers.Find(s.OfferID, s.Direction)
		switch {
		case !ok && incremental:
			// Either unchanged since the watermark or gone. The next tick
			// fetches the group in full to tell the two apart.
			s.observed.Store(false)
		case !ok:
			if p.complete(s, 0, fmt.Errorf("offer %s on %s: %w", s.OfferID, key, ErrOfferNotFound), &p.notFound) {
				n++
			}
		case offer.State != s.OriginalState:
			if p.complete(s, offer.State, nil, &p.resolved) {
				n++
				p.logger.Debug("offer state changed",
					"account", key,
					"offer", s.OfferID,
					"from", s.OriginalState,
					"to", offer.State,
				)
			}
		default:
			s.observed.Store(true)
		}
	}

	p.runHooks(key, offers)
	return n, nil
}

func (p *Poller) runHooks(key string, offers *model.OffersResponse) {
	p.hooksMu.RLock()
	hooks := p.hooks
	p.hooksMu.RUnlock()
	if len(hooks) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()
	for _, h := range hooks {
		h.OnAccountFetched(ctx, key, offers)
	}
}

// buildRequest covers every member of a group with one fetch. It is
// incremental only when every member has already been seen by a full fetch,
// otherwise a missing offer could not be told apart from an unchanged one.
func buildRequest(members []*Subscription, since time.Time) FetchRequest {
	var req FetchRequest
	allObserved := true
	for _, s := range members {
		if s.Direction.WantsSent() {
			req.Sent = true
		}
		if s.Direction.WantsReceived() {
			req.Received = true
		}
		if s.watchesOffer() {
			req.Historical = true
		}
		if !s.observed.Load() {
			allObserved = false
		}
	}
	if allObserved {
		req.Since = since
	}
	return req
}
