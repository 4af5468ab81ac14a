package core

// Objective Function Zero, RFC 6552.
//
// OF0 operates without a metric container; the only metric it consumes is
// the ETX kept in the link statistics. The step of rank is derived from it:
//
//   rank_increase = (RANK_FACTOR * STEP_OF_RANK + RANK_STRETCH) * min_hop_rank_increase
//
// STEP_OF_RANK is an implementation-specific scalar in [1;9]. RFC 6552
// suggests a fixed 3 but recommends deriving it from a dynamic link metric
// such as ETX.

import (
	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// OF0 implements Objective Function Zero (OCP 0).
type OF0 struct {
	// Step selects between the fixed step of rank and the ETX-derived one.
	Step state.StepOfRankPolicy

	// LinkStats, when set, receives synthetic transmission reports used to
	// punish a parent whose DAO was rejected or never acknowledged.
	LinkStats func(p *state.Parent, status state.TxStatus, numtx uint16)
}

func (o *OF0) OCP() uint16 { return 0 }

func (o *OF0) Reset(dag *state.Dag) {}

func parentLinkMetric(p *state.Parent) uint16 {
	if p == nil {
		return 0xffff
	}
	return p.LinkMetric
}

func (o *OF0) stepOfRank(p *state.Parent) int {
	if o.Step == state.StepFixed {
		return 3
	}
	// Mapping suggested by P. Thubert in the 6TiSCH WG. Anything that maps
	// ETX to a step between 1 and 9 works.
	return int(3*uint32(parentLinkMetric(p))/state.EtxDivisor) - 2
}

func (o *OF0) rankIncrease(p *state.Parent) uint32 {
	if p == nil || p.Dag == nil || p.Dag.Instance == nil {
		return uint32(state.InfiniteRank)
	}
	step := o.stepOfRank(p)
	if step < 0 {
		step = 0
	}
	return uint32(state.RankFactor*step+state.RankStretch) * uint32(p.Dag.Instance.MinHopRankInc)
}

// ParentAcceptable reports whether the parent's step of rank lands inside
// the [MinStepOfRank, MaxStepOfRank] policy window.
func (o *OF0) ParentAcceptable(p *state.Parent) bool {
	step := o.stepOfRank(p)
	return step >= state.MinStepOfRank && step <= state.MaxStepOfRank
}

func (o *OF0) CalculateRank(p *state.Parent, base state.Rank) state.Rank {
	var increase uint32
	if p == nil {
		if base == 0 {
			return state.InfiniteRank
		}
		increase = uint32(state.DefaultMinHopRankIncrease)
	} else {
		increase = o.rankIncrease(p)
		if base == 0 {
			base = p.Rank
		}
	}
	if uint32(state.InfiniteRank)-uint32(base) < increase {
		return state.InfiniteRank
	}
	return base + state.Rank(increase)
}

// BestParent compares two parents by combining DAG rank and ETX, keeping
// the currently preferred parent while the difference stays below
// MIN_DIFFERENCE. Both parents must be in the same DAG.
func (o *OF0) BestParent(p1, p2 *state.Parent) *state.Parent {
	dag := p1.Dag
	inst := dag.Instance

	r1 := uint32(inst.DagRank(p1.Rank))*uint32(inst.MinHopRankInc) + uint32(p1.LinkMetric)
	r2 := uint32(inst.DagRank(p2.Rank))*uint32(inst.MinHopRankInc) + uint32(p2.LinkMetric)

	minDifference := uint32(inst.MinHopRankInc) + uint32(inst.MinHopRankInc)/2

	if r1 < r2+minDifference && r1+minDifference > r2 {
		return dag.PreferredParent
	}
	if r1 < r2 {
		return p1
	}
	return p2
}

func (o *OF0) BestDag(d1, d2 *state.Dag) *state.Dag {
	if d1.Grounded {
		if !d2.Grounded {
			return d1
		}
	} else if d2.Grounded {
		return d2
	}

	if d1.Preference < d2.Preference {
		return d2
	}
	if d1.Preference > d2.Preference {
		return d1
	}

	if d2.Rank < d1.Rank {
		return d2
	}
	return d1
}

// UpdateMetricContainer only records that OF0 advertises no container.
func (o *OF0) UpdateMetricContainer(inst *state.Instance) {
	inst.MC.Type = wire.MCNone
}

// DaoAckCallback punishes the link on a rejected or lost DAO as if ten
// packets had been spent on it, nudging the parent selection away. The
// root-table-full status is excluded: the fault is not this link's.
func (o *OF0) DaoAckCallback(p *state.Parent, status uint8) {
	if status == wire.StatusUnableToAddAtRoot {
		return
	}
	if o.LinkStats == nil {
		return
	}
	if status >= wire.StatusUnableToAccept {
		o.LinkStats(p, state.TxOK, 10)
	}
}
