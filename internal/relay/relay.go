package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/notify"
)

// Publisher is the subset of redis.Cmdable used by Relay.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Stats are cumulative relay counters.
type Stats struct {
	Published int64 `json:"published"`
	Receivers int64 `json:"receivers"` // sum of subscriber counts reported by Redis
	Errors    int64 `json:"errors"`
}

// Relay forwards events from a broadcaster to a Redis channel.
type Relay struct {
	pub     Publisher
	channel string
	events  *notify.Broadcaster[model.NewOfferEvent]
	timeout time.Duration
	logger  *slog.Logger

	obs *notify.Observer[model.NewOfferEvent]
	wg  sync.WaitGroup

	published atomic.Int64
	receivers atomic.Int64
	errors    atomic.Int64
}

// New creates a Relay. timeout bounds each PUBLISH call.
func New(pub Publisher, channel string, events *notify.Broadcaster[model.NewOfferEvent], timeout time.Duration, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Relay{
		pub:     pub,
		channel: channel,
		events:  events,
		timeout: timeout,
		logger:  logger,
	}
}

// Start subscribes to the broadcaster and begins publishing.
func (r *Relay) Start(ctx context.Context) error {
	r.obs = r.events.Subscribe("relay", 0)
	r.wg.Add(1)
	go r.run(ctx)
	r.logger.Info("redis relay started", "channel", r.channel)
	return nil
}

// Stop unsubscribes and waits for the publish loop to exit.
func (r *Relay) Stop(ctx context.Context) error {
	if r.obs == nil {
		return nil
	}
	r.events.Unsubscribe(r.obs)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("redis relay stopped", "published", r.published.Load())
	case <-ctx.Done():
		r.logger.Warn("redis relay stop timed out")
	}
	return nil
}

// Stats returns current counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Receivers: r.receivers.Load(),
		Errors:    r.errors.Load(),
	}
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		ev, ok := r.obs.Receive()
		if !ok {
			return
		}
		r.publish(ctx, ev)
	}
}

func (r *Relay) publish(ctx context.Context, ev model.NewOfferEvent) {
	payload, err := EncodeEvent(ev)
	if err != nil {
		r.errors.Add(1)
		r.logger.Error("encode event", "offer", ev.Offer.ID, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	n, err := r.pub.Publish(pubCtx, r.channel, payload).Result()
	if err != nil {
		r.errors.Add(1)
		r.logger.Warn("redis publish failed", "channel", r.channel, "offer", ev.Offer.ID, "error", err)
		return
	}
	r.published.Add(1)
	r.receivers.Add(n)
}

// Listen subscribes to channel and decodes events until ctx is done.
// The returned channel is closed when the subscription ends.
func Listen(ctx context.Context, client *redis.Client, channel string, logger *slog.Logger) (<-chan model.NewOfferEvent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	out := make(chan model.NewOfferEvent, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					logger.Warn("invalid relay payload", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
