package table

import (
	"context"
	"net/netip"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// NeighborEntry is what the cache knows about one on-link neighbour.
type NeighborEntry struct {
	Addr      netip.Addr
	FirstSeen time.Time
}

// Neighbors is the bounded neighbour cache. Entries expire when nothing
// refreshes them; a full cache refuses admission rather than evicting a
// live neighbour.
type Neighbors struct {
	cache *ttlcache.Cache[netip.Addr, *NeighborEntry]
	max   int
}

// NewNeighbors creates a cache holding at most max neighbours, each kept
// alive for ttl after its last refresh.
func NewNeighbors(max int, ttl time.Duration) *Neighbors {
	n := &Neighbors{
		cache: ttlcache.New[netip.Addr, *NeighborEntry](
			ttlcache.WithTTL[netip.Addr, *NeighborEntry](ttl),
		),
		max: max,
	}
	go n.cache.Start()
	return n
}

// Admit ensures addr has a slot, refreshing the entry when it already has
// one. A false return means the cache is full.
func (n *Neighbors) Admit(addr netip.Addr) bool {
	if item := n.cache.Get(addr); item != nil {
		return true
	}
	if n.cache.Len() >= n.max {
		return false
	}
	n.cache.Set(addr, &NeighborEntry{Addr: addr, FirstSeen: time.Now()}, ttlcache.DefaultTTL)
	return true
}

// Known reports whether addr currently has a cache entry, without
// refreshing it.
func (n *Neighbors) Known(addr netip.Addr) bool {
	return n.cache.Has(addr)
}

// OnEvict registers a callback fired when an entry expires or is deleted,
// letting the control plane detach the parents that pointed at it.
func (n *Neighbors) OnEvict(fn func(addr netip.Addr)) {
	n.cache.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[netip.Addr, *NeighborEntry]) {
		fn(item.Key())
	})
}

// Stop shuts down the expiry loop.
func (n *Neighbors) Stop() {
	n.cache.Stop()
}
