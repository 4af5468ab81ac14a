package core

import (
	"net/netip"
	"slices"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// HandleDCO processes a Destination Cleanup Object
// (draft-ietf-roll-efficient-npdao). A DCO travels down the stale path: if
// the carried path sequence is fresher than the stored one, the cleanup is
// forwarded to the stored next hop and the local route removed. Stale
// cleanups are ignored, not errors.
func HandleDCO(s *state.State, r Stack, from netip.Addr, payload []byte) {
	if len(payload) < 1 {
		s.Stats.MalformedMsgs++
		return
	}
	inst := s.Instance(payload[0])
	if inst == nil {
		r.Log(UnknownInstance, "ignoring DCO", "instance", payload[0])
		return
	}
	if !inst.Conf.WithDco || !inst.MOP.Storing() {
		return
	}
	s.Stats.DcoRecvd++

	dco, err := wire.ParseDCO(payload)
	if err != nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "dropping DCO", "from", from, "err", err)
		return
	}
	dag := inst.CurrentDag
	if dag == nil {
		return
	}
	if dco.HasDODAGID && dco.DODAGID != dag.ID {
		r.Log(UnknownInstance, "ignoring DCO for a DAG different from ours", "dodag", dco.DODAGID)
		return
	}
	if dco.Target == nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "DCO without a target", "from", from)
		return
	}
	prefix := dco.Target.AsPrefix()

	rep := r.Routes().Lookup(prefix)
	if rep != nil && dco.Transit.PathLifetime == 0 {
		if rep.NextHop.IsValid() && LollipopGreaterThan(dco.Transit.PathSequence, rep.DaoPathSequence) {
			fwd := slices.Clone(payload)
			r.Send(rep.NextHop, wire.CodeDCO, fwd)
			s.Stats.DcoForwarded++
			r.Routes().Remove(rep)
			r.Log(RouteRemoved, "cleaned up by DCO", "prefix", prefix, "nexthop", rep.NextHop)
		} else {
			// We already hold the newest path sequence; nothing to clean.
			s.Stats.DcoIgnored++
			r.Log(StaleDco, "path sequence not newer", "prefix", prefix,
				"got", dco.Transit.PathSequence, "have", rep.DaoPathSequence)
		}

		if dco.Ack {
			DcoAckOutput(s, r, inst, from, dco.Sequence, wire.StatusAccept)
		}
		return
	}

	if my, ok := r.GlobalAddr(); ok && prefix.Addr() == my {
		// A cleanup for our own address needs no answer; we are the target.
		s.Stats.DcoIgnored++
		return
	}

	// No route for the target: tell the sender so it stops retransmitting.
	if dco.Ack {
		DcoAckOutput(s, r, inst, from, dco.Sequence, wire.StatusNoRouteForTarget)
	}
}

// DcoOutput emits a Destination Cleanup Object toward the stale next hop,
// carrying the target prefix and the path sequence that outdates it.
func DcoOutput(s *state.State, r Stack, inst *state.Instance, target netip.Prefix, nextHop netip.Addr, pathSequence uint8) {
	if !inst.Conf.WithDco || !inst.MOP.Storing() {
		return
	}

	dco := wire.DCO{
		InstanceID: inst.ID,
		Ack:        inst.Conf.WithDcoAck,
		HasDODAGID: true,
		Sequence:   inst.DcoSequence,
		Target: &wire.Target{
			PrefixLength: uint8(target.Bits()),
			Prefix:       target.Addr(),
		},
		Transit: &wire.Transit{
			PathSequence: pathSequence,
			PathLifetime: state.ZeroLifetime,
		},
	}
	if inst.CurrentDag != nil {
		dco.DODAGID = inst.CurrentDag.ID
	}
	LollipopIncrement(&inst.DcoSequence)

	r.Send(nextHop, wire.CodeDCO, dco.Marshal())
	s.Stats.DcoSent++
}

// HandleDCOAck settles a previously emitted DCO. Cleanup is best-effort:
// the acknowledgement is recorded and nothing is retransmitted here.
func HandleDCOAck(s *state.State, r Stack, from netip.Addr, payload []byte) {
	ack, err := wire.ParseAck(payload)
	if err != nil {
		s.Stats.MalformedMsgs++
		return
	}
	if s.Instance(ack.InstanceID) == nil {
		return
	}
	r.Log(DcoEmitted, "DCO acknowledged", "from", from, "seq", ack.Sequence, "status", ack.Status)
}

// DcoAckOutput sends a DCO-ACK (status < 128) or DCO-NACK.
func DcoAckOutput(s *state.State, r Stack, inst *state.Instance, dest netip.Addr, sequence, status uint8) {
	ack := wire.Ack{
		InstanceID: inst.ID,
		Sequence:   sequence,
		Status:     status,
	}
	r.Send(dest, wire.CodeDCOACK, ack.Marshal())
}
