package core

import (
	"math/rand/v2"
	"net/netip"
	"sync"
	"time"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/table"
	"github.com/lowpan/rpl/transport"
	"github.com/lowpan/rpl/wire"
)

// Node binds the message handlers to the real transport and tables. It is
// the production implementation of the Stack interface; every handler and
// timer callback is dispatched onto the protocol goroutine, so the state
// is only ever touched there.
type Node struct {
	env  *state.Env
	conn *transport.Conn

	routes    *table.Routes
	srcRoutes *table.SourceRoutes
	neighbors *table.Neighbors

	mu        sync.Mutex
	daoTimers map[uint8]*time.Timer
	dioTimers map[uint8]*time.Timer
}

// NewNode wires a node around an open transport.
func NewNode(env *state.Env, conn *transport.Conn) *Node {
	n := &Node{
		env:       env,
		conn:      conn,
		routes:    table.NewRoutes(state.MaxRoutes),
		srcRoutes: table.NewSourceRoutes(state.MaxRoutes),
		neighbors: table.NewNeighbors(state.MaxNeighbors, time.Hour),
		daoTimers: make(map[uint8]*time.Timer),
		dioTimers: make(map[uint8]*time.Timer),
	}
	n.neighbors.OnEvict(n.onNeighborEvicted)
	return n
}

// RegisterHandlers binds the six RPL ICMPv6 codes to their handlers. Each
// message runs to completion on the protocol goroutine.
func (n *Node) RegisterHandlers() {
	n.conn.Register(wire.CodeDIS, func(m transport.Message) {
		n.env.Dispatch(func(s *state.State) error {
			HandleDIS(s, n, m.From, m.Payload, m.Multicast)
			return nil
		})
	})
	bind := func(code wire.Code, fn func(*state.State, Stack, netip.Addr, []byte)) {
		n.conn.Register(code, func(m transport.Message) {
			n.env.Dispatch(func(s *state.State) error {
				fn(s, n, m.From, m.Payload)
				return nil
			})
		})
	}
	bind(wire.CodeDIO, HandleDIO)
	bind(wire.CodeDAO, HandleDAO)
	bind(wire.CodeDAOACK, HandleDAOAck)
	bind(wire.CodeDCO, HandleDCO)
	bind(wire.CodeDCOACK, HandleDCOAck)
}

// Run starts the receive loop and the periodic route-lifetime tick, then
// either roots the configured DODAG or solicits one.
func (n *Node) Run(s *state.State) {
	n.RegisterHandlers()

	go func() {
		if err := n.conn.Serve(n.env.Context); err != nil {
			n.env.Cancel(err)
		}
	}()

	n.env.RepeatTask(func(s *state.State) error {
		n.tickLifetimes(s)
		return nil
	}, state.RouteLifetimeTick)

	if n.env.Conf.Root {
		StartRoot(s, n)
	} else {
		DisOutput(s, n, netip.Addr{})
	}
}

func (n *Node) tickLifetimes(s *state.State) {
	elapsed := uint32(state.RouteLifetimeTick / time.Second)
	for _, rep := range n.routes.Tick(elapsed) {
		n.Log(RouteRemoved, "lifetime expired", "prefix", rep.Prefix)
	}
	n.srcRoutes.Tick(elapsed)
}

func (n *Node) onNeighborEvicted(addr netip.Addr) {
	n.env.Dispatch(func(s *state.State) error {
		s.EachInstance(func(inst *state.Instance) {
			dag := inst.CurrentDag
			if dag == nil {
				return
			}
			if p := dag.FindParent(addr); p != nil {
				dag.RemoveParent(p)
				SelectParents(s, n, inst)
			}
		})
		return nil
	})
}

// Send transmits one RPL control message.
func (n *Node) Send(dst netip.Addr, code wire.Code, payload []byte) {
	if err := n.conn.Send(dst, code, payload); err != nil {
		n.env.Log.Warn("send failed", "code", code, "dst", dst, "err", err)
	}
}

// ResetDIOTimer restarts DIO emission for the instance at the minimum
// interval. The full trickle suppression logic lives with the timer, not
// here; the control plane only asks for a restart.
func (n *Node) ResetDIOTimer(inst *state.Instance) {
	delay := time.Duration(1<<inst.DIOIntMin) * time.Millisecond
	id := inst.ID

	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.dioTimers[id]; ok {
		t.Stop()
	}
	n.dioTimers[id] = time.AfterFunc(delay/2+jitter(delay/2), func() {
		n.env.Dispatch(func(s *state.State) error {
			if inst := s.Instance(id); inst != nil {
				DioOutput(s, n, inst, netip.Addr{})
			}
			return nil
		})
	})
}

func (n *Node) AdmitNeighbor(addr netip.Addr, reason AdmitReason) bool {
	return n.neighbors.Admit(addr)
}

func (n *Node) Routes() RouteTable { return n.routes }

func (n *Node) SourceRoutes() SourceRouteTable { return n.srcRoutes }

func (n *Node) ProcessDIO(s *state.State, from netip.Addr, dio *wire.DIO) {
	ProcessDIO(s, n, from, dio)
}

func (n *Node) GlobalAddr() (netip.Addr, bool) {
	a := n.env.Conf.GlobalAddr
	return a, a.IsValid()
}

// LocalRepair detaches from the DODAG: parents are dropped, the node
// poisons its sub-DAG with an infinite-rank DIO and starts soliciting
// again.
func (n *Node) LocalRepair(s *state.State, inst *state.Instance) {
	dag := inst.CurrentDag
	if dag == nil {
		return
	}
	n.env.Log.Info("local repair", "instance", inst.ID)
	dag.Rank = state.InfiniteRank
	dag.Joined = false
	dag.PreferredParent = nil
	clear(dag.Parents)

	// Poison the sub-DAG below us, then start soliciting again.
	DioOutput(s, n, inst, netip.Addr{})
	DisOutput(s, n, netip.Addr{})
}

func (n *Node) ScheduleDaoRetransmit(p *state.Parent, delay time.Duration) {
	inst := p.Dag.Instance
	id := inst.ID

	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.daoTimers[id]; ok {
		t.Stop()
	}
	n.daoTimers[id] = time.AfterFunc(delay, func() {
		n.env.Dispatch(func(s *state.State) error {
			HandleDaoRetransmission(s, n, p)
			return nil
		})
	})
}

func (n *Node) StopDaoRetransmit(inst *state.Instance) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.daoTimers[inst.ID]; ok {
		t.Stop()
		delete(n.daoTimers, inst.ID)
	}
}

func (n *Node) Rand() uint16 {
	return uint16(rand.Uint32())
}

func (n *Node) Log(event Event, msg string, args ...any) {
	all := append([]any{"event", event.String()}, args...)
	if event >= 1000 {
		n.env.Log.Warn(msg, all...)
	} else {
		n.env.Log.Debug(msg, all...)
	}
}

// Close stops the timers and the neighbour cache.
func (n *Node) Close() {
	n.mu.Lock()
	for _, t := range n.daoTimers {
		t.Stop()
	}
	for _, t := range n.dioTimers {
		t.Stop()
	}
	n.mu.Unlock()
	n.neighbors.Stop()
	n.conn.Close()
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
