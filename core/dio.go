package core

import (
	"net/netip"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// HandleDIO parses a DODAG Information Object and hands it to the join and
// switch policy. A DIO that arrives without a DAG Configuration option is
// interpreted with the RFC 6550 defaults filled in.
func HandleDIO(s *state.State, r Stack, from netip.Addr, payload []byte) {
	dio, err := wire.ParseDIO(payload)
	if err != nil {
		s.Stats.MalformedMsgs++
		r.Log(MalformedMessage, "dropping DIO", "from", from, "err", err)
		return
	}
	s.Stats.DioRecvd++

	if dio.Config == nil {
		dio.Config = DefaultDAGConfig(s.Conf)
	}

	r.ProcessDIO(s, from, dio)
}

// DefaultDAGConfig is the configuration assumed for a DIO carrying no DAG
// Configuration option, RFC 6550 section 6.3.1.
func DefaultDAGConfig(conf *state.Config) *wire.DAGConfig {
	return &wire.DAGConfig{
		IntervalDoublings:  state.DefaultDIOIntervalDoubl,
		IntervalMin:        state.DefaultDIOIntervalMin,
		Redundancy:         state.DefaultDIORedundancy,
		MaxRankIncrease:    state.DefaultMaxRankIncrease,
		MinHopRankIncrease: state.DefaultMinHopRankIncrease,
		OCP:                conf.OCP,
		DefaultLifetime:    state.DefaultLifetime,
		LifetimeUnit:       state.DefaultLifetimeUnit,
	}
}

// DioOutput emits a DIO built from the instance's current DAG. With an
// invalid ucAddr the DIO goes to the all-RPL-nodes group. A leaf never
// multicasts and answers unicast probes with an infinite rank, taking
// itself out of parent consideration.
func DioOutput(s *state.State, r Stack, inst *state.Instance, ucAddr netip.Addr) {
	dag := inst.CurrentDag
	if dag == nil {
		return
	}
	unicast := ucAddr.IsValid()

	if inst.Conf.LeafOnly && !unicast {
		return
	}

	dio := wire.DIO{
		InstanceID: inst.ID,
		Version:    dag.Version,
		Rank:       uint16(dag.Rank),
		Grounded:   dag.Grounded,
		MOP:        uint8(inst.MOP),
		Preference: dag.Preference,
		DTSN:       inst.DTSNOut,
		DODAGID:    dag.ID,
	}
	if inst.Conf.LeafOnly {
		dio.Rank = uint16(state.InfiniteRank)
	}

	if inst.Conf.DioRefreshDaoRoutes && dag.IsRoot() && !unicast {
		// Request fresh DAOs along with the multicast DIO. Unicast DIOs
		// must not bump the DTSN: probes and DIS replies would otherwise
		// trigger a wave of DAO traffic.
		LollipopIncrement(&inst.DTSNOut)
	}

	if !inst.Conf.LeafOnly {
		inst.OF.UpdateMetricContainer(inst)
		if inst.MC.Type != wire.MCNone {
			mc := inst.MC
			dio.MC = &mc
		}
	}

	// The DAG Configuration option rides on every DIO.
	dio.Config = &wire.DAGConfig{
		IntervalDoublings:  inst.DIOIntDoubl,
		IntervalMin:        inst.DIOIntMin,
		Redundancy:         inst.DIORedundancy,
		MaxRankIncrease:    inst.MaxRankInc,
		MinHopRankIncrease: inst.MinHopRankInc,
		OCP:                inst.OF.OCP(),
		DefaultLifetime:    inst.DefaultLifetime,
		LifetimeUnit:       inst.LifetimeUnit,
	}

	if dag.PrefixInfo.Length > 0 {
		pi := dag.PrefixInfo
		dio.PrefixInfo = &pi
	}

	if unicast {
		r.Send(ucAddr, wire.CodeDIO, dio.Marshal())
		s.Stats.DioSentUni++
	} else {
		r.Send(wire.AllRPLNodes, wire.CodeDIO, dio.Marshal())
		s.Stats.DioSentMulti++
	}
	r.Log(DioEmitted, "sent DIO", "instance", inst.ID, "rank", dio.Rank, "unicast", unicast)
}
