// Package table holds the node-local tables shared between the control
// plane and the forwarding path: the storing-mode routing table, the
// neighbour cache and the root's source-route graph. All of them are
// fixed-capacity; a full table is an admission failure, not growth.
package table

import (
	"net/netip"

	"github.com/gaissmai/bart"

	"github.com/lowpan/rpl/state"
)

// Routes is the storing-mode downward routing table, a prefix trie of
// route entries carrying their DAO state blocks.
type Routes struct {
	table bart.Table[*state.Route]
	count int
	max   int
}

// NewRoutes creates a table holding at most max entries.
func NewRoutes(max int) *Routes {
	if max <= 0 {
		max = state.MaxRoutes
	}
	return &Routes{max: max}
}

// Lookup returns the entry for the exact prefix, or nil.
func (t *Routes) Lookup(prefix netip.Prefix) *state.Route {
	r, ok := t.table.Get(prefix)
	if !ok {
		return nil
	}
	return r
}

// Add installs a route for prefix via nextHop, or refreshes the next hop
// of an existing entry. A nil return means the table is full.
func (t *Routes) Add(prefix netip.Prefix, nextHop netip.Addr) *state.Route {
	if r, ok := t.table.Get(prefix); ok {
		r.NextHop = nextHop
		return r
	}
	if t.count >= t.max {
		return nil
	}
	r := &state.Route{Prefix: prefix, NextHop: nextHop}
	t.table.Insert(prefix, r)
	t.count++
	return r
}

// Remove drops the entry.
func (t *Routes) Remove(r *state.Route) {
	if _, ok := t.table.Get(r.Prefix); ok {
		t.table.Delete(r.Prefix)
		t.count--
	}
}

// Each visits every entry until fn returns false.
func (t *Routes) Each(fn func(*state.Route) bool) {
	for _, r := range t.table.All() {
		if !fn(r) {
			return
		}
	}
}

// NextHopFor returns the forwarding next hop for a destination address via
// longest-prefix match.
func (t *Routes) NextHopFor(dst netip.Addr) (netip.Addr, bool) {
	r, ok := t.table.Lookup(dst)
	if !ok {
		return netip.Addr{}, false
	}
	return r.NextHop, true
}

// Len returns the number of installed routes.
func (t *Routes) Len() int {
	return t.count
}

// Tick ages every route by elapsed seconds and removes the expired ones,
// returning them for the caller to log or clean up after.
func (t *Routes) Tick(elapsed uint32) []*state.Route {
	var expired []*state.Route
	for _, r := range t.table.All() {
		if r.Lifetime == 0xffffffff {
			continue // infinite
		}
		if r.Lifetime <= elapsed {
			expired = append(expired, r)
			continue
		}
		r.Lifetime -= elapsed
	}
	for _, r := range expired {
		t.Remove(r)
	}
	return expired
}
