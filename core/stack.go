package core

import (
	"net/netip"
	"time"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// Event identifies a notable handler outcome, logged through the Stack.
type Event int

// trace events

const (
	RouteInstalled Event = iota
	RouteRemoved
	NoPathReceived
	DaoForwarded
	DcoEmitted
	DaoAckMatched
	DioEmitted
)

// warn events

const (
	LoopDetected Event = iota + 1000
	ParentPoisoned
	MalformedMessage
	UnknownInstance
	AdmissionFailed
	DaoTimedOut
	StaleDco
)

func (e Event) String() string {
	switch e {
	case RouteInstalled:
		return "route-installed"
	case RouteRemoved:
		return "route-removed"
	case NoPathReceived:
		return "no-path-received"
	case DaoForwarded:
		return "dao-forwarded"
	case DcoEmitted:
		return "dco-emitted"
	case DaoAckMatched:
		return "dao-ack-matched"
	case DioEmitted:
		return "dio-emitted"
	case LoopDetected:
		return "loop-detected"
	case ParentPoisoned:
		return "parent-poisoned"
	case MalformedMessage:
		return "malformed-message"
	case UnknownInstance:
		return "unknown-instance"
	case AdmissionFailed:
		return "admission-failed"
	case DaoTimedOut:
		return "dao-timed-out"
	case StaleDco:
		return "stale-dco"
	}
	return "event"
}

// AdmitReason tells the neighbour cache why an entry is being requested.
type AdmitReason uint8

const (
	AdmitDIS AdmitReason = iota
	AdmitDAO
	AdmitDIO
)

// RouteTable is the storing-mode downward routing table. Entries carry the
// control plane's DAO state block.
type RouteTable interface {
	// Lookup returns the route for the exact prefix, or nil.
	Lookup(prefix netip.Prefix) *state.Route
	// Add installs or refreshes the route for prefix via nextHop. A nil
	// return means the table is full.
	Add(prefix netip.Prefix, nextHop netip.Addr) *state.Route
	Remove(r *state.Route)
	// Each visits every route until fn returns false.
	Each(fn func(*state.Route) bool)
}

// SourceRouteTable is the non-storing source-route graph kept at the root.
type SourceRouteTable interface {
	// UpdateNode records that target is reached through parent. A false
	// return means the graph is full.
	UpdateNode(dagID netip.Addr, target netip.Prefix, parent netip.Addr, lifetime uint32) bool
	// ExpireParent drops the (target, parent) link.
	ExpireParent(dagID netip.Addr, target netip.Prefix, parent netip.Addr)
}

// Stack is everything the message handlers need from the surrounding node:
// the ICMPv6 send path, the neighbour cache, the routing tables, the
// trickle timer and the repair hook. The runtime implements it against the
// real transport; tests implement it with a recording harness.
type Stack interface {
	// Send transmits one RPL control message to dst. The payload is owned
	// by the callee after the call.
	Send(dst netip.Addr, code wire.Code, payload []byte)

	// ResetDIOTimer restarts the trickle timer of the instance.
	ResetDIOTimer(inst *state.Instance)

	// AdmitNeighbor ensures the sender of the current message has a slot
	// in the neighbour cache. A false return means the cache is full;
	// admission failure is a first-class outcome.
	AdmitNeighbor(addr netip.Addr, reason AdmitReason) bool

	Routes() RouteTable
	SourceRoutes() SourceRouteTable

	// ProcessDIO hands a parsed DIO to the join/switch policy.
	ProcessDIO(s *state.State, from netip.Addr, dio *wire.DIO)

	// GlobalAddr returns this node's global unicast address, if any. A
	// node without one suppresses DAO emission.
	GlobalAddr() (netip.Addr, bool)

	// LocalRepair detaches from the current DAG and re-enters parent
	// discovery. The core only decides when.
	LocalRepair(s *state.State, inst *state.Instance)

	// ScheduleDaoRetransmit arms the retransmission timer toward the
	// parent the pending DAO was sent to; StopDaoRetransmit cancels it.
	ScheduleDaoRetransmit(p *state.Parent, delay time.Duration)
	StopDaoRetransmit(inst *state.Instance)

	// Rand returns uniform 16-bit randomness for retransmission jitter.
	Rand() uint16

	Log(event Event, msg string, args ...any)
}
