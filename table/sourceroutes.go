package table

import (
	"net/netip"

	"github.com/lowpan/rpl/state"
)

type nsNode struct {
	parent   netip.Addr
	lifetime uint32
}

// SourceRoutes is the non-storing source-route graph kept at the root: for
// every advertised target, the parent it is reached through. Joining the
// per-target links root-ward yields the source route.
type SourceRoutes struct {
	nodes map[netip.Addr]map[netip.Prefix]*nsNode // keyed by DODAG, then target
	count int
	max   int
}

// NewSourceRoutes creates a graph holding at most max target nodes.
func NewSourceRoutes(max int) *SourceRoutes {
	if max <= 0 {
		max = state.MaxRoutes
	}
	return &SourceRoutes{
		nodes: make(map[netip.Addr]map[netip.Prefix]*nsNode),
		max:   max,
	}
}

// UpdateNode records that target is reached through parent. A false return
// means the graph is full.
func (s *SourceRoutes) UpdateNode(dagID netip.Addr, target netip.Prefix, parent netip.Addr, lifetime uint32) bool {
	dag := s.nodes[dagID]
	if dag == nil {
		dag = make(map[netip.Prefix]*nsNode)
		s.nodes[dagID] = dag
	}
	if n, ok := dag[target]; ok {
		n.parent = parent
		n.lifetime = lifetime
		return true
	}
	if s.count >= s.max {
		return false
	}
	dag[target] = &nsNode{parent: parent, lifetime: lifetime}
	s.count++
	return true
}

// ExpireParent drops the (target, parent) link. A no-path from a different
// parent is stale and leaves the graph untouched.
func (s *SourceRoutes) ExpireParent(dagID netip.Addr, target netip.Prefix, parent netip.Addr) {
	dag := s.nodes[dagID]
	if dag == nil {
		return
	}
	if n, ok := dag[target]; ok && n.parent == parent {
		delete(dag, target)
		s.count--
	}
}

// Parent returns the recorded parent of target, if any.
func (s *SourceRoutes) Parent(dagID netip.Addr, target netip.Prefix) (netip.Addr, bool) {
	if dag := s.nodes[dagID]; dag != nil {
		if n, ok := dag[target]; ok {
			return n.parent, true
		}
	}
	return netip.Addr{}, false
}

// Len returns the number of recorded targets across all DAGs.
func (s *SourceRoutes) Len() int {
	return s.count
}

// Tick ages every link by elapsed seconds, dropping the expired ones.
func (s *SourceRoutes) Tick(elapsed uint32) {
	for _, dag := range s.nodes {
		for target, n := range dag {
			if n.lifetime == 0xffffffff {
				continue
			}
			if n.lifetime <= elapsed {
				delete(dag, target)
				s.count--
				continue
			}
			n.lifetime -= elapsed
		}
	}
}
