package core

import "github.com/lowpan/rpl/state"

// poisonParent takes a parent out of the topology: an infinite rank removes
// it from preferred-parent consideration, and the UPDATED flag makes the
// next selection pass notice.
func poisonParent(r Stack, p *state.Parent) {
	p.Rank = state.InfiniteRank
	p.Flags |= state.ParentFlagUpdated
	r.Log(ParentPoisoned, "rank set to infinite", "parent", p.Addr)
	if p.Dag != nil && p.Dag.PreferredParent == p {
		p.Dag.PreferredParent = nil
	}
}

// localRepair detaches from the DODAG below this node: the OF starts over
// and the surrounding stack re-enters parent discovery. No global version
// bump is involved.
func localRepair(s *state.State, r Stack, inst *state.Instance) {
	if dag := inst.CurrentDag; dag != nil {
		inst.OF.Reset(dag)
	}
	inst.HasDownwardRoute = false
	r.LocalRepair(s, inst)
}
