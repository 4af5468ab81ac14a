package core

import (
	"net/netip"
	"slices"
	"time"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// HandleDAOAck processes a DAO acknowledgement. An ACK matching this
// node's own pending DAO settles the downward-route state; in storing mode
// a non-matching ACK belongs to a forwarded DAO and is translated back
// into the downstream hop's sequence space.
func HandleDAOAck(s *state.State, r Stack, from netip.Addr, payload []byte) {
	ack, err := wire.ParseAck(payload)
	if err != nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "dropping DAO-ACK", "from", from, "err", err)
		return
	}

	inst := s.Instance(ack.InstanceID)
	if inst == nil {
		return
	}
	if !inst.Conf.WithDaoAck {
		return
	}

	var parent *state.Parent
	if inst.MOP.Storing() {
		if inst.CurrentDag == nil {
			return
		}
		parent = inst.CurrentDag.FindParent(from)
		if parent == nil {
			// Not one of our parents; drop and ignore.
			return
		}
	}

	if ack.Sequence == inst.MyDaoSeqno {
		inst.HasDownwardRoute = ack.Accepted()
		r.Log(DaoAckMatched, "own DAO settled", "seq", ack.Sequence, "status", ack.Status)

		// The awaited ACK arrived; the retransmission timer has done its job.
		r.StopDaoRetransmit(inst)

		if inst.MOP.Storing() {
			if cb, ok := inst.OF.(state.DaoAckFeedback); ok {
				cb.DaoAckCallback(parent, ack.Status)
			}
		}

		if inst.Conf.RepairOnDaoNack && ack.Status >= wire.StatusUnableToAccept {
			// Our registration did not get in; the only way back to a
			// working downward path is to rebuild from here.
			localRepair(s, r, inst)
		}
		return
	}

	if inst.MOP.Storing() {
		// The ACK answers a DAO we forwarded for somebody below us. Match
		// it by the outgoing sequence, restore the sequence the downstream
		// node used, and pass it along the stored route.
		rep := findRouteByDaoAck(r.Routes(), ack.Sequence)
		if rep == nil {
			r.Log(UnknownInstance, "no pending route for DAO-ACK", "seq", ack.Sequence)
			return
		}
		rep.DaoPending = false

		fwd := slices.Clone(payload)
		wire.SetAckSequence(fwd, rep.DaoSeqnoIn)
		r.Send(rep.NextHop, wire.CodeDAOACK, fwd)

		if ack.Status >= wire.StatusUnableToAccept {
			// The node below never made it into the tables above us.
			r.Routes().Remove(rep)
			r.Log(RouteRemoved, "DAO rejected upstream", "prefix", rep.Prefix)
		}
	}
}

func findRouteByDaoAck(routes RouteTable, seq uint8) *state.Route {
	var found *state.Route
	routes.Each(func(rep *state.Route) bool {
		if rep.DaoPending && rep.DaoSeqnoOut == seq {
			found = rep
			return false
		}
		return true
	})
	return found
}

// DaoAckOutput sends a DAO-ACK (status < 128) or DAO-NACK.
func DaoAckOutput(s *state.State, r Stack, inst *state.Instance, dest netip.Addr, sequence, status uint8) {
	ack := wire.Ack{
		InstanceID: inst.ID,
		Sequence:   sequence,
		Status:     status,
	}
	r.Send(dest, wire.CodeDAOACK, ack.Marshal())
}

// HandleDaoRetransmission fires when the retransmission timer expires with
// no matching ACK seen. It retransmits with the same sequence number under
// a randomised backoff until the retry budget is exhausted, then escalates
// to local repair.
func HandleDaoRetransmission(s *state.State, r Stack, parent *state.Parent) {
	if parent == nil || parent.Dag == nil || parent.Dag.Instance == nil {
		return
	}
	inst := parent.Dag.Instance

	if inst.MyDaoTransmissions >= inst.Conf.DaoMaxRetransmissions {
		if inst.LifetimeUnit == 0xffff && inst.DefaultLifetime == state.InfiniteLifetime {
			// Roots predating DAO-ACK support advertise the legacy
			// infinite-lifetime pair and will never acknowledge. Give up
			// quietly and let the normal repair machinery catch real
			// problems.
			return
		}
		r.Log(DaoTimedOut, "giving up after retransmissions", "seq", inst.MyDaoSeqno,
			"transmissions", inst.MyDaoTransmissions)
		if inst.MOP.Storing() {
			if cb, ok := inst.OF.(state.DaoAckFeedback); ok {
				cb.DaoAckCallback(parent, wire.StatusTimeout)
			}
		}
		localRepair(s, r, inst)
		return
	}

	prefix, ok := globalTarget(r)
	if !ok {
		return
	}

	half := inst.Conf.DaoRetransmissionTimeout / 2
	jitter := time.Duration(uint64(r.Rand()) * uint64(half) / 65536)
	r.ScheduleDaoRetransmit(parent, half+jitter)

	inst.MyDaoTransmissions++
	daoOutputTargetSeq(s, r, parent, prefix, inst.DefaultLifetime, inst.MyDaoSeqno)
}
