package core

import (
	"net/netip"
	"slices"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// HandleDAO dispatches a Destination Advertisement Object to the handler
// matching the instance's mode of operation. DAOs for unknown instances
// are dropped silently.
func HandleDAO(s *state.State, r Stack, from netip.Addr, payload []byte) {
	if len(payload) < 1 {
		s.Stats.MalformedMsgs++
		return
	}
	inst := s.Instance(payload[0])
	if inst == nil {
		r.Log(UnknownInstance, "ignoring DAO", "instance", payload[0])
		return
	}

	if inst.MOP.Storing() {
		daoInputStoring(s, r, inst, from, payload)
	} else if inst.MOP == state.MopNonStoring {
		daoInputNonstoring(s, r, inst, from, payload)
	}
}

// prepareForDaoFwd assigns a fresh outgoing sequence number to a route
// whose DAO is about to be forwarded upward, and marks it pending until
// the matching ACK travels back down.
func prepareForDaoFwd(inst *state.Instance, sequence uint8, rep *state.Route) uint8 {
	LollipopIncrement(&inst.DaoSequence)
	rep.DaoSeqnoIn = sequence
	rep.DaoSeqnoOut = inst.DaoSequence
	rep.DaoPending = true
	return inst.DaoSequence
}

func daoInputStoring(s *state.State, r Stack, inst *state.Instance, from netip.Addr, payload []byte) {
	dao, err := wire.ParseDAO(payload)
	if err != nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "dropping DAO", "from", from, "err", err)
		return
	}
	dag := inst.CurrentDag
	if dag == nil {
		return
	}
	s.Stats.DaoRecvd++

	isRoot := dag.IsRoot()

	if dao.HasDODAGID && dao.DODAGID != dag.ID {
		r.Log(UnknownInstance, "ignoring DAO for a DAG different from ours", "dodag", dao.DODAGID)
		return
	}

	unicastLearned := !from.IsMulticast()

	if unicastLearned {
		// A unicast DAO from a node above us in the DODAG is a forwarding
		// loop: we would route downward through a node that routes through
		// us. Poison the offending parent and do not forward.
		parent := dag.FindParent(from)
		if parent != nil && inst.DagRank(parent.Rank) < inst.DagRank(dag.Rank) {
			r.Log(LoopDetected, "unicast DAO from a node with a lower rank",
				"parent", inst.DagRank(parent.Rank), "self", inst.DagRank(dag.Rank))
			poisonParent(r, parent)
			return
		}
		if parent != nil && parent == dag.PreferredParent {
			r.Log(LoopDetected, "unicast DAO from our preferred parent", "from", from)
			poisonParent(r, parent)
			return
		}
	}

	if dao.Target == nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "DAO without a target", "from", from)
		return
	}
	prefix := dao.Target.AsPrefix()

	lifetime := inst.DefaultLifetime
	var pathSequence uint8
	if dao.Transit != nil {
		lifetime = dao.Transit.PathLifetime
		pathSequence = dao.Transit.PathSequence
	}

	if prefix.Addr().IsMulticast() {
		// Multicast group management (MOP 3) is not handled; a multicast
		// target never installs a unicast route.
		if dao.Ack {
			DaoAckOutput(s, r, inst, from, dao.Sequence, wire.StatusAccept)
		}
		return
	}

	rep := r.Routes().Lookup(prefix)

	if lifetime == state.ZeroLifetime {
		// No-Path DAO: the target is withdrawing its registration. The
		// route lingers briefly so in-flight traffic can drain, and the
		// withdrawal travels on toward the root.
		s.Stats.DaoRecvd--
		s.Stats.NpdaoRecvd++
		r.Log(NoPathReceived, "no-path DAO", "prefix", prefix, "from", from)
		if rep != nil && !rep.NoPathReceived && rep.NextHop == from {
			rep.NoPathReceived = true
			rep.Lifetime = state.NoPathRemovalDelay

			if pp := dag.PreferredParent; pp != nil {
				outSeq := prepareForDaoFwd(inst, dao.Sequence, rep)
				fwd := slices.Clone(payload)
				wire.SetSequence(fwd, outSeq)
				r.Send(pp.Addr, wire.CodeDAO, fwd)
				s.Stats.NpdaoFwded++
			}
		}
		// Acknowledge whether or not a route was removed.
		if dao.Ack {
			DaoAckOutput(s, r, inst, from, dao.Sequence, wire.StatusAccept)
		}
		return
	}

	if !r.AdmitNeighbor(from, AdmitDAO) {
		r.Log(AdmissionFailed, "no neighbour slot for DAO sender", "from", from)
		if dao.Ack {
			DaoAckOutput(s, r, inst, from, dao.Sequence, admissionFailureStatus(isRoot))
		}
		return
	}

	// An existing route through someone else means the target moved; the
	// stale sub-DAG under the previous next hop is cleaned up with a DCO
	// once the new route is in.
	var prevNextHop netip.Addr
	if inst.Conf.WithDco && rep != nil {
		prevNextHop = rep.NextHop
	}

	rep = r.Routes().Add(prefix, from)
	if rep == nil {
		s.Stats.MemOverflows++
		r.Log(AdmissionFailed, "no route slot after DAO", "prefix", prefix)
		if dao.Ack {
			DaoAckOutput(s, r, inst, from, dao.Sequence, admissionFailureStatus(isRoot))
		}
		return
	}

	rep.Lifetime = inst.Lifetime(lifetime)
	rep.DaoPathSequence = pathSequence
	rep.NoPathReceived = false
	r.Log(RouteInstalled, "DAO route", "prefix", prefix, "nexthop", from, "lifetime", rep.Lifetime)

	if !unicastLearned {
		return
	}

	// The route is in place; decide whether we can acknowledge right away.
	// A route already installed with the same incoming sequence takes no
	// extra room, and the root has nobody left to ask.
	shouldAck := dao.Ack && ((!rep.DaoPending && rep.DaoSeqnoIn == dao.Sequence) || isRoot)

	if pp := dag.PreferredParent; pp != nil {
		var outSeq uint8
		if rep.DaoPending && rep.DaoSeqnoIn == dao.Sequence {
			// A retransmission from below: reuse the outgoing sequence so
			// the ACK still matches upstream.
			outSeq = rep.DaoSeqnoOut
		} else {
			outSeq = prepareForDaoFwd(inst, dao.Sequence, rep)
		}
		fwd := slices.Clone(payload)
		wire.SetSequence(fwd, outSeq)
		r.Send(pp.Addr, wire.CodeDAO, fwd)
		s.Stats.DaoForwarded++
		r.Log(DaoForwarded, "to parent", "parent", pp.Addr, "inSeq", dao.Sequence, "outSeq", outSeq)
	}

	if shouldAck {
		DaoAckOutput(s, r, inst, from, dao.Sequence, wire.StatusAccept)
	}

	if prevNextHop.IsValid() && prevNextHop != from {
		r.Log(DcoEmitted, "next hop changed", "prefix", prefix, "old", prevNextHop, "new", from)
		DcoOutput(s, r, inst, prefix, prevNextHop, pathSequence)
	}
}

func admissionFailureStatus(isRoot bool) uint8 {
	if isRoot {
		return wire.StatusUnableToAddAtRoot
	}
	return wire.StatusUnableToAccept
}

func daoInputNonstoring(s *state.State, r Stack, inst *state.Instance, from netip.Addr, payload []byte) {
	dao, err := wire.ParseDAO(payload)
	if err != nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "dropping DAO", "from", from, "err", err)
		return
	}
	dag := inst.CurrentDag
	if dag == nil {
		return
	}
	s.Stats.DaoRecvd++

	if dao.HasDODAGID && dao.DODAGID != dag.ID {
		r.Log(UnknownInstance, "ignoring DAO for a DAG different from ours", "dodag", dao.DODAGID)
		return
	}

	// In non-storing mode the transit option's parent address is the
	// target's position in the source-route graph; without it the DAO
	// cannot be recorded.
	if dao.Target == nil || dao.Transit == nil || !dao.Transit.Parent.IsValid() {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "non-storing DAO without target or parent", "from", from)
		return
	}
	prefix := dao.Target.AsPrefix()
	parent := dao.Transit.Parent
	lifetime := dao.Transit.PathLifetime

	if lifetime == state.ZeroLifetime {
		s.Stats.DaoRecvd--
		s.Stats.NpdaoRecvd++
		r.SourceRoutes().ExpireParent(dag.ID, prefix, parent)
	} else {
		if !r.SourceRoutes().UpdateNode(dag.ID, prefix, parent, inst.Lifetime(lifetime)) {
			s.Stats.MemOverflows++
			r.Log(AdmissionFailed, "source-route graph full", "target", prefix)
			return
		}
	}

	if dao.Ack {
		DaoAckOutput(s, r, inst, from, dao.Sequence, wire.StatusAccept)
	}
}

// DaoOutput advertises this node's own global address to the parent. It is
// the first transmission of a new sequence number; retransmissions reuse
// the recorded sequence through the retransmission timer.
func DaoOutput(s *state.State, r Stack, parent *state.Parent, lifetime uint8) {
	prefix, ok := globalTarget(r)
	if !ok {
		r.Log(AdmissionFailed, "no global address set, suppressing DAO")
		return
	}
	if parent == nil || parent.Dag == nil || parent.Dag.Instance == nil {
		return
	}
	inst := parent.Dag.Instance

	LollipopIncrement(&inst.DaoSequence)

	if inst.Conf.WithDaoAck {
		if lifetime != state.ZeroLifetime {
			// First transmission: arm the retransmission timer and keep
			// the sequence so the ACK (and any retry) can match it.
			inst.MyDaoSeqno = inst.DaoSequence
			inst.MyDaoTransmissions = 1
			r.ScheduleDaoRetransmit(parent, inst.Conf.DaoRetransmissionTimeout)
		}
	} else {
		// Without acknowledgements, registering is the best we know.
		inst.HasDownwardRoute = lifetime != state.ZeroLifetime
	}

	DaoOutputTarget(s, r, parent, prefix, lifetime)
}

// DaoOutputTarget advertises an arbitrary target prefix through parent
// using the current sequence number.
func DaoOutputTarget(s *state.State, r Stack, parent *state.Parent, prefix netip.Prefix, lifetime uint8) {
	daoOutputTargetSeq(s, r, parent, prefix, lifetime, parent.Dag.Instance.DaoSequence)
}

func daoOutputTargetSeq(s *state.State, r Stack, parent *state.Parent, prefix netip.Prefix, lifetime, seqNo uint8) {
	if parent == nil || parent.Dag == nil || parent.Dag.Instance == nil {
		return
	}
	dag := parent.Dag
	inst := dag.Instance

	dao := wire.DAO{
		InstanceID: inst.ID,
		Ack:        inst.Conf.WithDaoAck && lifetime != state.ZeroLifetime,
		HasDODAGID: true,
		Sequence:   seqNo,
		DODAGID:    dag.ID,
		Target: &wire.Target{
			PrefixLength: uint8(prefix.Bits()),
			Prefix:       prefix.Addr(),
		},
		Transit: &wire.Transit{
			PathLifetime: lifetime,
		},
	}
	if inst.Conf.WithDco {
		dao.Transit.PathSequence = inst.PathSequence
	}

	dest := parent.Addr
	if inst.MOP == state.MopNonStoring {
		// The root holds the source-route graph: the DAO travels straight
		// to it and names the parent by its global address, built from the
		// DODAG prefix and the parent's interface identifier.
		dao.Transit.Parent = globalFromIID(dag.ID, parent.Addr)
		dest = dag.ID
	}

	r.Send(dest, wire.CodeDAO, dao.Marshal())
	if lifetime == state.ZeroLifetime {
		s.Stats.NpdaoSent++
	} else {
		s.Stats.DaoSent++
	}
}

// globalTarget is the /128 of this node's global address, the target of
// its own registrations.
func globalTarget(r Stack) (netip.Prefix, bool) {
	addr, ok := r.GlobalAddr()
	if !ok {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(addr, 128), true
}

// globalFromIID combines the DODAG prefix with the interface identifier of
// a link-local address.
func globalFromIID(dodagID, lladdr netip.Addr) netip.Addr {
	var a [16]byte
	id := dodagID.As16()
	ll := lladdr.As16()
	copy(a[:8], id[:8])
	copy(a[8:], ll[8:])
	return netip.AddrFrom16(a)
}
