package table

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowpan/rpl/state"
)

var (
	p1 = netip.MustParsePrefix("fd00::99/128")
	p2 = netip.MustParsePrefix("fd00:1::/64")
	h1 = netip.MustParseAddr("fe80::1")
	h2 = netip.MustParseAddr("fe80::2")
)

func TestRoutesAddLookupRemove(t *testing.T) {
	rt := NewRoutes(4)

	r := rt.Add(p1, h1)
	require.NotNil(t, r)
	assert.Equal(t, 1, rt.Len())
	assert.Same(t, r, rt.Lookup(p1))
	assert.Nil(t, rt.Lookup(p2))

	rt.Remove(r)
	assert.Nil(t, rt.Lookup(p1))
	assert.Equal(t, 0, rt.Len())
}

func TestRoutesAddRefreshesNextHop(t *testing.T) {
	rt := NewRoutes(4)

	r := rt.Add(p1, h1)
	r.DaoPathSequence = 7

	again := rt.Add(p1, h2)
	assert.Same(t, r, again)
	assert.Equal(t, h2, r.NextHop)
	// the DAO state block survives a next-hop change
	assert.Equal(t, uint8(7), r.DaoPathSequence)
	assert.Equal(t, 1, rt.Len())
}

func TestRoutesCapacityBound(t *testing.T) {
	rt := NewRoutes(1)

	require.NotNil(t, rt.Add(p1, h1))
	assert.Nil(t, rt.Add(p2, h2))
	// refreshing the existing entry still works at capacity
	assert.NotNil(t, rt.Add(p1, h2))
}

func TestRoutesLongestPrefixMatch(t *testing.T) {
	rt := NewRoutes(4)
	rt.Add(p2, h1)
	rt.Add(netip.MustParsePrefix("fd00:1::42/128"), h2)

	nh, ok := rt.NextHopFor(netip.MustParseAddr("fd00:1::42"))
	require.True(t, ok)
	assert.Equal(t, h2, nh)

	nh, ok = rt.NextHopFor(netip.MustParseAddr("fd00:1::43"))
	require.True(t, ok)
	assert.Equal(t, h1, nh)

	_, ok = rt.NextHopFor(netip.MustParseAddr("fd00:2::1"))
	assert.False(t, ok)
}

func TestRoutesEachStopsEarly(t *testing.T) {
	rt := NewRoutes(4)
	rt.Add(p1, h1)
	rt.Add(p2, h2)

	seen := 0
	rt.Each(func(*state.Route) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}

func TestRoutesTickExpiresLifetimes(t *testing.T) {
	rt := NewRoutes(4)

	short := rt.Add(p1, h1)
	short.Lifetime = 2
	long := rt.Add(p2, h2)
	long.Lifetime = 100
	forever := rt.Add(netip.MustParsePrefix("fd00:2::/64"), h1)
	forever.Lifetime = 0xffffffff

	expired := rt.Tick(1)
	assert.Empty(t, expired)
	assert.Equal(t, uint32(1), short.Lifetime)

	expired = rt.Tick(1)
	require.Len(t, expired, 1)
	assert.Same(t, short, expired[0])
	assert.Nil(t, rt.Lookup(p1))
	assert.Equal(t, uint32(98), long.Lifetime)
	// infinite lifetimes never age
	assert.Equal(t, uint32(0xffffffff), forever.Lifetime)
}
