package notify

import (
	"sort"
	"sync"

	"github.com/roach88/thingdir/internal/metrics"
	"github.com/roach88/thingdir/internal/sparql"
)

// Subscription is a registered continuous query.
type Subscription struct {
	ID     int64
	Query  *sparql.Query
	Format sparql.Format
}

// Registry holds continuous queries by id. Ids increase strictly and are
// never reused, even after Revoke.
type Registry struct {
	mu   sync.RWMutex
	last int64
	subs map[int64]Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[int64]Subscription)}
}

// Register stores q and returns its subscription.
func (r *Registry) Register(q *sparql.Query, format sparql.Format) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	sub := Subscription{ID: r.last, Query: q, Format: format}
	r.subs[sub.ID] = sub
	metrics.SetSubscriptions(len(r.subs))
	return sub
}

// Revoke removes a subscription. It reports whether it existed.
func (r *Registry) Revoke(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	metrics.SetSubscriptions(len(r.subs))
	return true
}

// Get returns a subscription by id.
func (r *Registry) Get(id int64) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	return sub, ok
}

// List returns every subscription ordered by id.
func (r *Registry) List() []Subscription {
	r.mu.RLock()
	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
