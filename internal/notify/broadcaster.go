package notify

import (
	"log/slog"
	"sort"
	"sync"
)

// DefaultQueueSize is used when an observer asks for a non-positive size.
const DefaultQueueSize = 1024

// Observer is one registered consumer of a Broadcaster.
type Observer[T any] struct {
	name  string
	queue *Queue[T]
}

// Name returns the name the observer registered with.
func (o *Observer[T]) Name() string { return o.name }

// Receive blocks for the next value. Returns false once unsubscribed and drained.
func (o *Observer[T]) Receive() (T, bool) { return o.queue.Receive() }

// TryReceive returns the next value without blocking.
func (o *Observer[T]) TryReceive() (T, bool) { return o.queue.TryReceive() }

// DrainTo removes up to max queued values (all when max <= 0).
func (o *Observer[T]) DrainTo(max int) []T { return o.queue.DrainTo(max) }

// Stats returns the observer's queue statistics.
func (o *Observer[T]) Stats() QueueStats { return o.queue.Stats() }

// Broadcaster fans values out to every registered observer. Publish never
// blocks; a slow observer loses its oldest values instead.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	observers   map[*Observer[T]]struct{}
	defaultSize int
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. defaultSize applies to observers
// subscribing with a non-positive size.
func NewBroadcaster[T any](defaultSize int, logger *slog.Logger) *Broadcaster[T] {
	if defaultSize <= 0 {
		defaultSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		observers:   make(map[*Observer[T]]struct{}),
		defaultSize: defaultSize,
		logger:      logger,
	}
}

// Subscribe registers a new observer with its own queue of the given size.
// Subscribing to a closed broadcaster returns an observer that is already closed.
func (b *Broadcaster[T]) Subscribe(name string, size int) *Observer[T] {
	if size <= 0 {
		size = b.defaultSize
	}
	o := &Observer[T]{name: name, queue: NewQueue[T](size)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		o.queue.Close()
		return o
	}
	b.observers[o] = struct{}{}

	b.logger.Debug("observer subscribed", "observer", name, "size", size)
	return o
}

// Unsubscribe removes o and closes its queue. Values already queued remain
// readable.
func (b *Broadcaster[T]) Unsubscribe(o *Observer[T]) {
	b.mu.Lock()
	_, ok := b.observers[o]
	delete(b.observers, o)
	b.mu.Unlock()

	if ok {
		o.queue.Close()
		b.logger.Debug("observer unsubscribed", "observer", o.name)
	}
}

// Publish delivers v to every observer and returns how many accepted it.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for o := range b.observers {
		if o.queue.Send(v) {
			n++
		}
	}
	return n
}

// Len returns the number of registered observers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// Stats returns per-observer queue statistics keyed by observer name.
// Observers sharing a name are reported under the first one in name order.
func (b *Broadcaster[T]) Stats() map[string]QueueStats {
	b.mu.RLock()
	obs := make([]*Observer[T], 0, len(b.observers))
	for o := range b.observers {
		obs = append(obs, o)
	}
	b.mu.RUnlock()

	sort.Slice(obs, func(i, j int) bool { return obs[i].name < obs[j].name })

	stats := make(map[string]QueueStats, len(obs))
	for _, o := range obs {
		if _, dup := stats[o.name]; dup {
			continue
		}
		stats[o.name] = o.queue.Stats()
	}
	return stats
}

// Close unsubscribes every observer. Later Subscribe calls get closed observers.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	obs := b.observers
	b.observers = make(map[*Observer[T]]struct{})
	b.closed = true
	b.mu.Unlock()

	for o := range obs {
		o.queue.Close()
	}
}
