package table

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestNeighborsAdmitUpToCapacity(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := NewNeighbors(2, time.Minute)
	defer n.Stop()

	a := netip.MustParseAddr("fe80::1")
	b := netip.MustParseAddr("fe80::2")
	c := netip.MustParseAddr("fe80::3")

	assert.True(t, n.Admit(a))
	assert.True(t, n.Admit(b))
	// the cache is full: admission fails instead of evicting a live entry
	assert.False(t, n.Admit(c))
	// known neighbours are always re-admitted
	assert.True(t, n.Admit(a))
	assert.True(t, n.Known(b))
	assert.False(t, n.Known(c))
}

func TestNeighborsExpiryFreesSlots(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := NewNeighbors(1, 20*time.Millisecond)
	defer n.Stop()

	a := netip.MustParseAddr("fe80::1")
	b := netip.MustParseAddr("fe80::2")

	evicted := make(chan netip.Addr, 1)
	n.OnEvict(func(addr netip.Addr) { evicted <- addr })

	assert.True(t, n.Admit(a))
	assert.False(t, n.Admit(b))

	select {
	case addr := <-evicted:
		assert.Equal(t, a, addr)
	case <-time.After(time.Second):
		t.Fatal("expiry never fired")
	}
	assert.True(t, n.Admit(b))
}

func TestSourceRoutesUpdateAndExpire(t *testing.T) {
	sr := NewSourceRoutes(4)

	dag := netip.MustParseAddr("fd00::1")
	target := netip.MustParsePrefix("fd00::99/128")
	parent := netip.MustParseAddr("fd00::77")
	other := netip.MustParseAddr("fd00::78")

	assert.True(t, sr.UpdateNode(dag, target, parent, 60))
	got, ok := sr.Parent(dag, target)
	assert.True(t, ok)
	assert.Equal(t, parent, got)

	// a stale no-path from a different parent leaves the link alone
	sr.ExpireParent(dag, target, other)
	_, ok = sr.Parent(dag, target)
	assert.True(t, ok)

	sr.ExpireParent(dag, target, parent)
	_, ok = sr.Parent(dag, target)
	assert.False(t, ok)
	assert.Equal(t, 0, sr.Len())
}

func TestSourceRoutesCapacityAndTick(t *testing.T) {
	sr := NewSourceRoutes(1)

	dag := netip.MustParseAddr("fd00::1")
	t1 := netip.MustParsePrefix("fd00::99/128")
	t2 := netip.MustParsePrefix("fd00::9a/128")
	parent := netip.MustParseAddr("fd00::77")

	assert.True(t, sr.UpdateNode(dag, t1, parent, 2))
	assert.False(t, sr.UpdateNode(dag, t2, parent, 2))
	// refreshing the known target is not an admission
	assert.True(t, sr.UpdateNode(dag, t1, parent, 2))

	sr.Tick(2)
	assert.Equal(t, 0, sr.Len())
	assert.True(t, sr.UpdateNode(dag, t2, parent, 60))
}
