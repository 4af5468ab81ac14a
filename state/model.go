package state

import (
	"net/netip"

	"github.com/lowpan/rpl/wire"
)

// Rank is the dimensionless path cost of a node, RFC 6550 section 3.5.
// A DAG rank is the integer part of rank/MinHopRankIncrease; loop checks
// compare DAG ranks, never raw ranks.
type Rank uint16

// Mode of operation, RFC 6550 section 6.3.1.
type Mode uint8

const (
	MopNoDownward Mode = iota
	MopNonStoring
	MopStoring
	MopStoringMulticast
)

// Storing reports whether downward routes are kept in the local table.
func (m Mode) Storing() bool {
	return m == MopStoring || m == MopStoringMulticast
}

// TxStatus is the MAC-layer outcome of a transmission, fed to the
// objective function by the link-statistics module.
type TxStatus uint8

const (
	TxOK TxStatus = iota
	TxCollision
	TxNoAck
	TxErr
)

// ObjectiveFunction is the capability set an OF exposes, RFC 6550
// section 14. Implementations additionally satisfying LinkFeedback or
// DaoAckFeedback receive transmission and DAO-ACK outcomes.
type ObjectiveFunction interface {
	OCP() uint16
	Reset(dag *Dag)
	BestParent(p1, p2 *Parent) *Parent
	BestDag(d1, d2 *Dag) *Dag
	// CalculateRank computes the rank when advertising through p, using
	// base instead of p's advertised rank when base is non-zero.
	CalculateRank(p *Parent, base Rank) Rank
	UpdateMetricContainer(inst *Instance)
}

// LinkFeedback receives per-packet transmission outcomes.
type LinkFeedback interface {
	LinkCallback(p *Parent, status TxStatus, numtx uint16)
}

// DaoAckFeedback receives the status of an awaited DAO-ACK, including the
// internal timeout status when retransmissions are exhausted.
type DaoAckFeedback interface {
	DaoAckCallback(p *Parent, status uint8)
}

// Instance is one RPL instance this node participates in. All sequence
// counters are scoped to the instance; their wire semantics do not change.
type Instance struct {
	ID  uint8
	MOP Mode
	OF  ObjectiveFunction
	MC  wire.MetricContainer

	MinHopRankInc uint16
	MaxRankInc    uint16
	DIOIntMin     uint8
	DIOIntDoubl   uint8
	DIORedundancy uint8

	DefaultLifetime uint8
	LifetimeUnit    uint16

	DTSNOut uint8

	CurrentDag *Dag

	HasDownwardRoute bool

	// DAO retransmission state for this node's own registration.
	MyDaoSeqno         uint8
	MyDaoTransmissions uint8

	// Outgoing lollipop counters.
	DaoSequence  uint8
	DcoSequence  uint8
	PathSequence uint8

	Conf *Config
}

// DagRank converts a rank to its DAG rank, RFC 6550 section 3.5.1.
func (i *Instance) DagRank(r Rank) uint16 {
	return uint16(r) / i.MinHopRankInc
}

// RootRank is the rank advertised by the DODAG root.
func (i *Instance) RootRank() Rank {
	return Rank(i.MinHopRankInc)
}

// Lifetime expands an encoded lifetime to seconds. The all-ones encoding
// means infinite.
func (i *Instance) Lifetime(lifetime uint8) uint32 {
	if lifetime == InfiniteLifetime {
		return 0xffffffff
	}
	return uint32(i.LifetimeUnit) * uint32(lifetime)
}

// Dag is one DODAG within an instance. At most one DAG per instance is
// joined at any time.
type Dag struct {
	Instance *Instance
	ID       netip.Addr // DODAGID, a global address of the root

	Version    uint8 // lollipop
	Rank       Rank
	Grounded   bool
	Preference uint8
	Joined     bool

	PrefixInfo wire.PrefixInfo

	// Parents are keyed by the neighbour's link-local address. They are
	// non-owning views into the neighbour cache; eviction there detaches
	// them here.
	Parents map[netip.Addr]*Parent

	PreferredParent *Parent
}

// IsRoot reports whether this node is the root of the DAG.
func (d *Dag) IsRoot() bool {
	return d.Rank == d.Instance.RootRank()
}

// FindParent returns the parent entry for a neighbour address, or nil.
func (d *Dag) FindParent(addr netip.Addr) *Parent {
	return d.Parents[addr]
}

// RemoveParent detaches a parent, clearing the preferred-parent pointer if
// it was the one removed.
func (d *Dag) RemoveParent(p *Parent) {
	delete(d.Parents, p.Addr)
	if d.PreferredParent == p {
		d.PreferredParent = nil
	}
}

// Parent flags.
const (
	ParentFlagUpdated uint8 = 1 << 0
)

// Parent is a candidate parent within one DAG.
type Parent struct {
	Dag  *Dag
	Addr netip.Addr

	// Rank and DTSN advertised in the last DIO from this neighbour.
	Rank Rank
	DTSN uint8

	// LinkMetric is the smoothed ETX toward this neighbour, in units of
	// 1/EtxDivisor. MRHOF maintains it from transmission feedback; OF0
	// reads the link-statistics value pushed here.
	LinkMetric uint16

	// Metric container copied from the last DIO, when one was present.
	MC wire.MetricContainer

	Flags uint8
}

// Route is one storing-mode downward route. The entry lives in the routing
// table; the DAO state block here is owned by the control plane.
type Route struct {
	Prefix  netip.Prefix
	NextHop netip.Addr

	// Lifetime in seconds, ticked down by the runtime.
	Lifetime uint32

	DaoSeqnoIn      uint8
	DaoSeqnoOut     uint8
	DaoPathSequence uint8

	DaoPending     bool
	NoPathReceived bool
}
