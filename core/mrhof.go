package core

// The Minimum Rank with Hysteresis Objective Function, RFC 6719.
//
// MRHOF minimises the ETX path metric while damping parent changes: the
// preferred parent is only abandoned when a candidate beats it by at least
// the switch threshold.

import (
	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// MRHOF implements the Minimum Rank with Hysteresis OF (OCP 1).
type MRHOF struct {
	// Metric selects the container advertised in DIOs. With MetricNone the
	// path cost rides on the rank alone.
	Metric state.MetricPolicy
}

func (m *MRHOF) OCP() uint16 { return 1 }

func (m *MRHOF) Reset(dag *state.Dag) {}

// LinkCallback folds one transmission outcome into the smoothed link ETX.
// Collisions and transmit errors do not touch the average: they say nothing
// about the link itself.
func (m *MRHOF) LinkCallback(p *state.Parent, status state.TxStatus, numtx uint16) {
	if status != state.TxOK && status != state.TxNoAck {
		return
	}
	packetEtx := uint32(numtx) * state.EtxDivisor
	if status == state.TxNoAck {
		packetEtx = state.MaxLinkMetric * state.EtxDivisor
	}
	p.LinkMetric = uint16((uint32(p.LinkMetric)*state.EtxAlpha +
		packetEtx*(state.EtxScale-state.EtxAlpha)) / state.EtxScale)
}

func (m *MRHOF) CalculateRank(p *state.Parent, base state.Rank) state.Rank {
	var rankIncrease uint32
	if p == nil {
		if base == 0 {
			return state.InfiniteRank
		}
		rankIncrease = state.InitLinkMetric * state.EtxDivisor
	} else {
		rankIncrease = uint32(p.LinkMetric)
		if base == 0 {
			base = p.Rank
		}
	}
	if uint32(state.InfiniteRank)-uint32(base) < rankIncrease {
		// Reached the maximum rank.
		return state.InfiniteRank
	}
	return base + state.Rank(rankIncrease)
}

// PathMetric is the advertised cost through p plus the link to p, capped at
// the top of the 16-bit metric space. An absent parent costs the maximum
// path cost.
func (m *MRHOF) PathMetric(p *state.Parent) uint16 {
	if p == nil {
		return state.MaxPathCost * state.EtxDivisor
	}
	var base uint32
	switch m.Metric {
	case state.MetricEtx:
		base = uint32(p.MC.ETX)
	case state.MetricEnergy:
		base = uint32(p.MC.EnergyEst)
	default:
		base = uint32(p.Rank)
	}
	return uint16(min(base+uint32(p.LinkMetric), 0xffff))
}

// ParentAcceptable rejects parents whose link or whole path is beyond the
// metric bounds, before they are ever considered as preferred.
func (m *MRHOF) ParentAcceptable(p *state.Parent) bool {
	return p.LinkMetric <= state.MaxLinkMetric*state.EtxDivisor &&
		m.PathMetric(p) <= state.MaxPathCost*state.EtxDivisor
}

// BestParent picks the lower path metric, keeping the currently preferred
// parent while the two candidates stay within the switch threshold.
func (m *MRHOF) BestParent(p1, p2 *state.Parent) *state.Parent {
	dag := p1.Dag

	minDiff := uint32(state.EtxDivisor / state.ParentSwitchThresholdDiv)

	m1 := uint32(m.PathMetric(p1))
	m2 := uint32(m.PathMetric(p2))

	// Maintain stability of the preferred parent in case of similar metrics.
	if p1 == dag.PreferredParent || p2 == dag.PreferredParent {
		if m1 < m2+minDiff && m1+minDiff > m2 {
			return dag.PreferredParent
		}
	}

	if m1 < m2 {
		return p1
	}
	return p2
}

func (m *MRHOF) BestDag(d1, d2 *state.Dag) *state.Dag {
	if d1.Grounded != d2.Grounded {
		if d1.Grounded {
			return d1
		}
		return d2
	}
	if d1.Preference != d2.Preference {
		if d1.Preference > d2.Preference {
			return d1
		}
		return d2
	}
	if d1.Rank < d2.Rank {
		return d1
	}
	return d2
}

// UpdateMetricContainer refreshes the aggregated container advertised in
// outgoing DIOs: zero at the root, the preferred parent's path metric
// otherwise. With MetricNone only the type field is set.
func (m *MRHOF) UpdateMetricContainer(inst *state.Instance) {
	if m.Metric == state.MetricNone || m.Metric == "" {
		inst.MC.Type = wire.MCNone
		return
	}

	inst.MC.Flags = wire.MCFlagP
	inst.MC.Aggr = wire.MCAggrAdditive
	inst.MC.Prec = 0

	dag := inst.CurrentDag
	if dag == nil || !dag.Joined {
		return
	}

	var pathMetric uint16
	if dag.IsRoot() {
		pathMetric = 0
	} else {
		pathMetric = m.PathMetric(dag.PreferredParent)
	}

	switch m.Metric {
	case state.MetricEtx:
		inst.MC.Type = wire.MCETX
		inst.MC.Length = 2
		inst.MC.ETX = pathMetric
	case state.MetricEnergy:
		inst.MC.Type = wire.MCEnergy
		inst.MC.Length = 2
		energyType := uint8(wire.MCEnergyTypeBattery)
		if dag.IsRoot() {
			energyType = wire.MCEnergyTypeMains
		}
		inst.MC.EnergyFlags = energyType << wire.MCEnergyTypeShift
		inst.MC.EnergyEst = uint8(min(pathMetric, 0xff))
	}
}
