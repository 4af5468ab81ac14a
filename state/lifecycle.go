package state

import "net/netip"

// NewInstance creates an instance carrying the RFC defaults until the first
// DAG Configuration option overrides them.
func NewInstance(id uint8, of ObjectiveFunction, conf *Config) *Instance {
	return &Instance{
		ID:              id,
		OF:              of,
		MinHopRankInc:   DefaultMinHopRankIncrease,
		MaxRankInc:      DefaultMaxRankIncrease,
		DIOIntMin:       DefaultDIOIntervalMin,
		DIOIntDoubl:     DefaultDIOIntervalDoubl,
		DIORedundancy:   DefaultDIORedundancy,
		DefaultLifetime: DefaultLifetime,
		LifetimeUnit:    DefaultLifetimeUnit,
		DTSNOut:         LollipopInit,
		DaoSequence:     LollipopInit,
		DcoSequence:     LollipopInit,
		PathSequence:    LollipopInit,
		Conf:            conf,
	}
}

// NewDag attaches a fresh DAG to the instance.
func (i *Instance) NewDag(id netip.Addr) *Dag {
	return &Dag{
		Instance: i,
		ID:       id,
		Version:  LollipopInit,
		Rank:     InfiniteRank,
		Parents:  make(map[netip.Addr]*Parent),
	}
}

// AddParent admits a neighbour as a candidate parent, up to the parent-set
// capacity. The link metric starts at the configured initial value until
// transmission feedback refines it.
func (d *Dag) AddParent(addr netip.Addr, rank Rank) *Parent {
	if p, ok := d.Parents[addr]; ok {
		p.Rank = rank
		return p
	}
	if len(d.Parents) >= MaxParents {
		return nil
	}
	p := &Parent{
		Dag:        d,
		Addr:       addr,
		Rank:       rank,
		LinkMetric: InitLinkMetric * EtxDivisor,
	}
	d.Parents[addr] = p
	return p
}
