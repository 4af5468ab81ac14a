package core

import (
	"net/netip"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// HandleDIS processes a DODAG Information Solicitation. A multicast DIS
// resets every instance's trickle timer so the solicitor hears a DIO soon;
// a unicast DIS is answered directly, provided the sender fits in the
// neighbour cache.
func HandleDIS(s *state.State, r Stack, from netip.Addr, payload []byte, multicast bool) {
	if _, err := wire.ParseDIS(payload); err != nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "dropping DIS", "from", from, "err", err)
		return
	}

	s.EachInstance(func(inst *state.Instance) {
		if multicast {
			// A leaf never multicasts DIOs, so there is no timer to reset.
			if !inst.Conf.LeafOnly {
				r.ResetDIOTimer(inst)
			}
			return
		}
		if !r.AdmitNeighbor(from, AdmitDIS) {
			r.Log(AdmissionFailed, "no neighbour slot for DIS sender", "from", from)
			return
		}
		DioOutput(s, r, inst, from)
	})
}

// DisOutput solicits DODAG information. Without an explicit destination the
// solicitation goes to the link-local all-RPL-nodes group.
func DisOutput(s *state.State, r Stack, addr netip.Addr) {
	if !addr.IsValid() {
		addr = wire.AllRPLNodes
	}
	var d wire.DIS
	r.Send(addr, wire.CodeDIS, d.Marshal())
}
