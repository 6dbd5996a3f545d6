package poller

import (
	"sync"

	"github.com/google/uuid"
)

// registry holds pending subscriptions and the loop's run state. Its mutex
// is the linearization point: whichever path removes a subscription first
// owns its completion.
type registry struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*Subscription
	running bool
	gen     uint64
	closed  bool
}

func newRegistry() *registry {
	return &registry{subs: make(map[uuid.UUID]*Subscription)}
}

// add inserts s. If the loop is dormant it is marked running under the same
// lock and launch is called with the new generation.
func (r *registry) add(s *Subscription, launch func(gen uint64)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.subs[s.ID] = s

	if !r.running {
		r.running = true
		r.gen++
		launch(r.gen)
	}
	return nil
}

func (r *registry) remove(s *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[s.ID]; !ok {
		return false
	}
	delete(r.subs, s.ID)
	return true
}

// removeIf removes and returns every subscription matching pred.
func (r *registry) removeIf(pred func(*Subscription) bool) []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Subscription
	for id, s := range r.subs {
		if pred(s) {
			delete(r.subs, id)
			removed = append(removed, s)
		}
	}
	return removed
}

// snapshotByAccount copies the current subscriptions grouped by account key.
func (r *registry) snapshotByAccount() map[string][]*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make(map[string][]*Subscription)
	for _, s := range r.subs {
		groups[s.AccountKey] = append(groups[s.AccountKey], s)
	}
	return groups
}

// stopIfEmpty reports whether the loop with generation gen should exit:
// either it no longer owns the run state or there is nothing left to poll.
func (r *registry) stopIfEmpty(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.gen != gen {
		return true
	}
	if len(r.subs) == 0 {
		r.running = false
		return true
	}
	return false
}

// close rejects further adds, retires the running loop and returns every
// pending subscription.
func (r *registry) close() []*Subscription {
	r.mu.Lock()
	r.closed = true
	r.running = false
	r.gen++
	r.mu.Unlock()

	// add is rejected from here on, so this takes everything.
	return r.removeIf(func(*Subscription) bool { return true })
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *registry) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
