package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one provider endpoint.
type Health struct {
	Name         string
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string

	// Successes and Failures count outcomes since registration. Unlike
	// Counts they are never reset by the breaker.
	Successes uint64
	Failures  uint64
}

// Up reports a closed circuit.
func (h Health) Up() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// Recovering reports a half-open circuit letting probe calls through.
func (h Health) Recovering() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// Down reports an open circuit. Calls fail fast and callers use their
// fallback.
func (h Health) Down() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks provider endpoints and their recent outcomes. One registry
// is built per process and handed to each client explicitly.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint
}

type endpoint struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
	successes     uint64
	failures      uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*endpoint)}
}

// Register adds an endpoint client. Registering a name again replaces the
// client and clears its history.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = &endpoint{client: client}
}

// RecordSuccess notes a successful call. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[name]; ok {
		now := time.Now()
		ep.lastSuccessAt = &now
		ep.successes++
	}
}

// RecordFailure notes a failed call, including calls refused before they
// reached the network. Unknown names are ignored.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[name]; ok {
		now := time.Now()
		ep.lastFailureAt = &now
		ep.failures++
		if err != nil {
			ep.lastError = err.Error()
		}
	}
}

// Health returns the named endpoint's state.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return Health{}, false
	}
	return ep.health(name), true
}

// Snapshot returns every endpoint's state ordered by name.
func (r *Registry) Snapshot() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Health, 0, len(names))
	for _, name := range names {
		out = append(out, r.endpoints[name].health(name))
	}
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

func (ep *endpoint) health(name string) Health {
	return Health{
		Name:          name,
		CircuitState:  ep.client.BreakerState(),
		Counts:        ep.client.BreakerCounts(),
		LastSuccessAt: ep.lastSuccessAt,
		LastFailureAt: ep.lastFailureAt,
		LastError:     ep.lastError,
		Successes:     ep.successes,
		Failures:      ep.failures,
	}
}
