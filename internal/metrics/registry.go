package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/offerwatch/internal/version"
)

// Source returns a component's current stats. It must be safe to call
// concurrently and should return a value, not a pointer to live state.
type Source func() any

// Snapshot is the combined view of every registered source.
type Snapshot struct {
	Instance   string         `json:"instance"`
	Build      version.Info   `json:"build"`
	StartedAt  time.Time      `json:"started_at"`
	Uptime     string         `json:"uptime"`
	Components map[string]any `json:"components"`
}

// Registry holds named stats sources.
type Registry struct {
	instance string
	start    time.Time
	now      func() time.Time

	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty registry for one coordinator instance.
func NewRegistry(instance string) *Registry {
	return &Registry{
		instance: instance,
		start:    time.Now(),
		now:      time.Now,
		sources:  make(map[string]Source),
	}
}

// Register adds or replaces a source.
func (r *Registry) Register(name string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = src
}

// Unregister removes a source.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, name)
}

// Snapshot collects every source.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	sources := make(map[string]Source, len(r.sources))
	for name, src := range r.sources {
		sources[name] = src
	}
	r.mu.RUnlock()

	components := make(map[string]any, len(sources))
	for name, src := range sources {
		components[name] = src()
	}

	return Snapshot{
		Instance:   r.instance,
		Build:      version.Get(),
		StartedAt:  r.start,
		Uptime:     r.now().Sub(r.start).Truncate(time.Second).String(),
		Components: components,
	}
}

// ServeHTTP writes the snapshot as JSON.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
