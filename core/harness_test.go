package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/wire"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// MockRoutes is an in-memory RouteTable with a capacity bound.
type MockRoutes struct {
	routes map[netip.Prefix]*state.Route
	max    int
}

func NewMockRoutes(max int) *MockRoutes {
	return &MockRoutes{routes: make(map[netip.Prefix]*state.Route), max: max}
}

func (m *MockRoutes) Lookup(prefix netip.Prefix) *state.Route {
	return m.routes[prefix]
}

func (m *MockRoutes) Add(prefix netip.Prefix, nextHop netip.Addr) *state.Route {
	if r, ok := m.routes[prefix]; ok {
		r.NextHop = nextHop
		return r
	}
	if len(m.routes) >= m.max {
		return nil
	}
	r := &state.Route{Prefix: prefix, NextHop: nextHop}
	m.routes[prefix] = r
	return r
}

func (m *MockRoutes) Remove(r *state.Route) {
	delete(m.routes, r.Prefix)
}

func (m *MockRoutes) Each(fn func(*state.Route) bool) {
	for _, r := range m.routes {
		if !fn(r) {
			return
		}
	}
}

// MockSourceRoutes records source-route graph operations.
type MockSourceRoutes struct {
	nodes map[netip.Prefix]netip.Addr
	full  bool
}

func NewMockSourceRoutes() *MockSourceRoutes {
	return &MockSourceRoutes{nodes: make(map[netip.Prefix]netip.Addr)}
}

func (m *MockSourceRoutes) UpdateNode(dagID netip.Addr, target netip.Prefix, parent netip.Addr, lifetime uint32) bool {
	if m.full {
		return false
	}
	m.nodes[target] = parent
	return true
}

func (m *MockSourceRoutes) ExpireParent(dagID netip.Addr, target netip.Prefix, parent netip.Addr) {
	if m.nodes[target] == parent {
		delete(m.nodes, target)
	}
}

// Harness implements Stack by recording every emission and callout.
type Harness struct {
	actions []HarnessEvent

	routes *MockRoutes
	src    *MockSourceRoutes

	admit  bool
	global netip.Addr
	randv  uint16
}

func NewHarness() *Harness {
	return &Harness{
		routes: NewMockRoutes(state.MaxRoutes),
		src:    NewMockSourceRoutes(),
		admit:  true,
	}
}

func (h *Harness) Send(dst netip.Addr, code wire.Code, payload []byte) {
	h.actions = append(h.actions, MakeEvent("SEND", dst, code, slices.Clone(payload)))
}

func (h *Harness) ResetDIOTimer(inst *state.Instance) {
	h.actions = append(h.actions, MakeEvent("RESET_DIO_TIMER", inst.ID))
}

func (h *Harness) AdmitNeighbor(addr netip.Addr, reason AdmitReason) bool {
	if !h.admit {
		h.actions = append(h.actions, MakeEvent("ADMIT_REFUSED", addr))
	}
	return h.admit
}

func (h *Harness) Routes() RouteTable { return h.routes }

func (h *Harness) SourceRoutes() SourceRouteTable { return h.src }

func (h *Harness) ProcessDIO(s *state.State, from netip.Addr, dio *wire.DIO) {
	h.actions = append(h.actions, MakeEvent("PROCESS_DIO", from, dio.InstanceID, dio.Rank))
}

func (h *Harness) GlobalAddr() (netip.Addr, bool) {
	return h.global, h.global.IsValid()
}

func (h *Harness) LocalRepair(s *state.State, inst *state.Instance) {
	h.actions = append(h.actions, MakeEvent("LOCAL_REPAIR", inst.ID))
}

func (h *Harness) ScheduleDaoRetransmit(p *state.Parent, delay time.Duration) {
	h.actions = append(h.actions, MakeEvent("SCHEDULE_DAO_RETRANSMIT", p.Addr, delay))
}

func (h *Harness) StopDaoRetransmit(inst *state.Instance) {
	h.actions = append(h.actions, MakeEvent("STOP_DAO_RETRANSMIT", inst.ID))
}

func (h *Harness) Rand() uint16 { return h.randv }

func (h *Harness) Log(event Event, msg string, args ...any) {}

type HarnessEvents []HarnessEvent

func (e HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range e {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	return strings.Join(out, "\n")
}

// GetActions drains the recorded actions.
func (h *Harness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = nil
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message != msg {
			continue
		}
		if len(event.Args) < len(args) {
			continue
		}
		match := true
		for i, arg := range args {
			if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.Prefix{}, netip.Addr{})) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in\n", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in\n", e)
	}
}

// Sends returns the payloads of every SEND with the given code.
func (e HarnessEvents) Sends(code wire.Code) [][]byte {
	var out [][]byte
	for _, ev := range e {
		if ev.Message == "SEND" && ev.Args[1] == code {
			out = append(out, ev.Args[2].([]byte))
		}
	}
	return out
}

var (
	testDodagID = netip.MustParseAddr("fd00::1")
	llParent    = netip.MustParseAddr("fe80::1")
	llChild     = netip.MustParseAddr("fe80::2")
	llOther     = netip.MustParseAddr("fe80::3")
	testGlobal  = netip.MustParseAddr("fd00::42")
)

func testConfig() *state.Config {
	conf := &state.Config{
		InstanceID: 30,
		Mode:       "storing",
		WithDaoAck: true,
		WithDco:    true,
	}
	conf.ApplyDefaults()
	return conf
}

// newTestState builds a joined storing-mode node two hops below the root,
// with one preferred parent.
func newTestState(conf *state.Config) (*state.State, *state.Instance, *Harness) {
	h := NewHarness()
	h.global = testGlobal

	of := ObjectiveFunctionFor(conf.OCP, conf)
	inst := state.NewInstance(conf.InstanceID, of, conf)
	mode, _ := conf.ParsedMode()
	inst.MOP = mode

	dag := inst.NewDag(testDodagID)
	dag.Joined = true
	dag.Grounded = true
	inst.CurrentDag = dag

	p := dag.AddParent(llParent, state.Rank(2*inst.MinHopRankInc))
	dag.PreferredParent = p
	dag.Rank = state.Rank(3 * inst.MinHopRankInc)

	s := &state.State{
		Env:       &state.Env{Conf: conf},
		Instances: map[uint8]*state.Instance{inst.ID: inst},
	}
	return s, inst, h
}

// makeDAO builds an encoded DAO for the test instance.
func makeDAO(inst *state.Instance, seq uint8, target netip.Prefix, lifetime, pathSeq uint8, ack bool) []byte {
	dao := wire.DAO{
		InstanceID: inst.ID,
		Ack:        ack,
		Sequence:   seq,
		Target: &wire.Target{
			PrefixLength: uint8(target.Bits()),
			Prefix:       target.Addr(),
		},
		Transit: &wire.Transit{
			PathSequence: pathSeq,
			PathLifetime: lifetime,
		},
	}
	return dao.Marshal()
}
