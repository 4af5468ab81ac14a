package core

// DIO processing: the join, switch and parent-selection policy sitting
// between the DIO handler and the objective function.

import (
	"net/netip"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

// parentAcceptor is satisfied by objective functions that gate parents on
// a policy bound before selection ever considers them.
type parentAcceptor interface {
	ParentAcceptable(p *state.Parent) bool
}

func parentAcceptable(of state.ObjectiveFunction, p *state.Parent) bool {
	if a, ok := of.(parentAcceptor); ok {
		return a.ParentAcceptable(p)
	}
	return true
}

// ProcessDIO decides whether the DIO makes its sender a candidate parent,
// creates instance and DAG state on the first acceptable DIO, and re-runs
// parent selection.
func ProcessDIO(s *state.State, r Stack, from netip.Addr, dio *wire.DIO) {
	if dio.Config == nil {
		dio.Config = DefaultDAGConfig(s.Conf)
	}
	inst := s.Instance(dio.InstanceID)

	if dio.Rank == uint16(state.InfiniteRank) {
		// The sender poisoned itself; it must not stay in consideration.
		if inst != nil && inst.CurrentDag != nil {
			if p := inst.CurrentDag.FindParent(from); p != nil {
				poisonParent(r, p)
				SelectParents(s, r, inst)
			}
		}
		return
	}

	if inst == nil {
		inst = joinInstance(s, dio)
		r.ResetDIOTimer(inst)
	}
	dag := inst.CurrentDag
	if dag == nil {
		return
	}

	if dag.ID != dio.DODAGID {
		// A different DODAG in the same instance: adopt it only when the
		// objective function prefers it over the one we are in.
		cand := inst.NewDag(dio.DODAGID)
		applyDagInfo(cand, dio)
		cand.Rank = state.Rank(dio.Rank) // stand-in until we compute our own
		if inst.OF.BestDag(dag, cand) != cand {
			return
		}
		inst.OF.Reset(dag)
		dag.Joined = false
		inst.CurrentDag = cand
		dag = cand
		r.ResetDIOTimer(inst)
	}

	if LollipopGreaterThan(dio.Version, dag.Version) {
		dag.Version = dio.Version
	}
	applyDagInfo(dag, dio)
	applyDAGConfig(inst, dio.Config)

	if !r.AdmitNeighbor(from, AdmitDIO) {
		r.Log(AdmissionFailed, "no neighbour slot for DIO sender", "from", from)
		return
	}
	p := dag.AddParent(from, state.Rank(dio.Rank))
	if p == nil {
		r.Log(AdmissionFailed, "parent set full", "from", from)
		return
	}
	dtsnBumped := LollipopGreaterThan(dio.DTSN, p.DTSN)
	p.DTSN = dio.DTSN
	if dio.MC != nil {
		p.MC = *dio.MC
	}
	p.Flags |= state.ParentFlagUpdated

	SelectParents(s, r, inst)

	if dtsnBumped && dag.PreferredParent == p && !dag.IsRoot() && inst.MOP != state.MopNoDownward {
		// The parent bumped its DTSN to solicit refreshed downward routes.
		DaoOutput(s, r, p, inst.DefaultLifetime)
	}
}

// SelectParents re-evaluates the preferred parent and this node's rank. A
// change of preferred parent resets the trickle timer and registers the
// node's address through the new parent.
func SelectParents(s *state.State, r Stack, inst *state.Instance) {
	dag := inst.CurrentDag
	if dag == nil || dag.IsRoot() {
		return
	}

	var best *state.Parent
	for _, p := range dag.Parents {
		if p.Rank == state.InfiniteRank {
			continue
		}
		if !parentAcceptable(inst.OF, p) {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		if b := inst.OF.BestParent(best, p); b != nil {
			best = b
		}
	}

	old := dag.PreferredParent
	if best == nil {
		dag.PreferredParent = nil
		dag.Rank = state.InfiniteRank
		dag.Joined = false
		return
	}

	dag.PreferredParent = best
	dag.Rank = inst.OF.CalculateRank(best, 0)
	dag.Joined = dag.Rank != state.InfiniteRank

	// No upward loops: anyone at or below our own DAG rank cannot serve as
	// a parent.
	for _, p := range dag.Parents {
		if p != best && p.Rank != state.InfiniteRank &&
			inst.DagRank(p.Rank) >= inst.DagRank(dag.Rank) {
			poisonParent(r, p)
		}
	}

	if old != best {
		r.Log(RouteInstalled, "preferred parent", "parent", best.Addr, "rank", dag.Rank)
		r.ResetDIOTimer(inst)
		if inst.MOP != state.MopNoDownward {
			DaoOutput(s, r, best, inst.DefaultLifetime)
		}
	}
}

func joinInstance(s *state.State, dio *wire.DIO) *state.Instance {
	of := ObjectiveFunctionFor(dio.Config.OCP, s.Conf)
	inst := state.NewInstance(dio.InstanceID, of, s.Conf)
	inst.MOP = state.Mode(dio.MOP)
	applyDAGConfig(inst, dio.Config)

	dag := inst.NewDag(dio.DODAGID)
	applyDagInfo(dag, dio)
	inst.CurrentDag = dag

	s.Instances[inst.ID] = inst
	return inst
}

func applyDAGConfig(inst *state.Instance, c *wire.DAGConfig) {
	if c == nil {
		return
	}
	inst.DIOIntDoubl = c.IntervalDoublings
	inst.DIOIntMin = c.IntervalMin
	inst.DIORedundancy = c.Redundancy
	inst.MaxRankInc = c.MaxRankIncrease
	inst.MinHopRankInc = c.MinHopRankIncrease
	inst.DefaultLifetime = c.DefaultLifetime
	inst.LifetimeUnit = c.LifetimeUnit
}

func applyDagInfo(dag *state.Dag, dio *wire.DIO) {
	dag.Grounded = dio.Grounded
	dag.Preference = dio.Preference
	if dag.Version == state.LollipopInit {
		dag.Version = dio.Version
	}
	if dio.PrefixInfo != nil {
		dag.PrefixInfo = *dio.PrefixInfo
	}
}

// StartRoot initialises this node as the root of its configured DODAG.
func StartRoot(s *state.State, r Stack) *state.Instance {
	conf := s.Conf
	of := ObjectiveFunctionFor(conf.OCP, conf)
	inst := state.NewInstance(conf.InstanceID, of, conf)
	mode, _ := conf.ParsedMode()
	inst.MOP = mode

	dag := inst.NewDag(conf.DodagID)
	dag.Rank = inst.RootRank()
	dag.Grounded = true
	dag.Joined = true
	if conf.Prefix.IsValid() {
		dag.PrefixInfo = wire.PrefixInfo{
			Length:   uint8(conf.Prefix.Bits()),
			Lifetime: 0xffffffff,
			Prefix:   conf.Prefix.Addr(),
		}
	}
	inst.CurrentDag = dag

	s.Instances[inst.ID] = inst
	of.UpdateMetricContainer(inst)
	r.ResetDIOTimer(inst)
	return inst
}

// LinkCallback reports one transmission outcome toward a neighbour,
// feeding the objective function's link metric and re-running parent
// selection when it moved.
func LinkCallback(s *state.State, r Stack, addr netip.Addr, status state.TxStatus, numtx uint16) {
	s.EachInstance(func(inst *state.Instance) {
		dag := inst.CurrentDag
		if dag == nil {
			return
		}
		p := dag.FindParent(addr)
		if p == nil {
			return
		}
		if fb, ok := inst.OF.(state.LinkFeedback); ok {
			fb.LinkCallback(p, status, numtx)
			SelectParents(s, r, inst)
		}
	})
}
