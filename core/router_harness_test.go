package core

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"slices"
	"testing"

	"github.com/encodeous/sospf/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Event   RouterEvent
	Message string
	Args    []any
}

type packet struct {
	from netip.Addr
	to   netip.Addr
	lsas []state.LSA
}

// RouterHarness implements Router for one router of a VirtualNet
type RouterHarness struct {
	net    *VirtualNet
	rs     *state.RouterState
	events []HarnessEvent
}

func (h *RouterHarness) SendLsaUpdate(to state.RouterDesc, lsas []state.LSA) {
	cloned := make([]state.LSA, 0, len(lsas))
	for _, lsa := range lsas {
		cloned = append(cloned, lsa.Clone())
	}
	h.net.queue = append(h.net.queue, packet{from: h.rs.Id.Addr, to: to.Addr, lsas: cloned})
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	h.events = append(h.events, HarnessEvent{event, desc, args})
}

func (h *RouterHarness) Count(event RouterEvent) int {
	n := 0
	for _, e := range h.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// VirtualNet delivers link state updates between routers in memory, in whatever order the test chooses
type VirtualNet struct {
	t         *testing.T
	routers   map[netip.Addr]*RouterHarness
	queue     []packet
	delivered int
	rand      *rand.Rand
}

func NewVirtualNet(t *testing.T) *VirtualNet {
	return &VirtualNet{
		t:       t,
		routers: make(map[netip.Addr]*RouterHarness),
	}
}

// Shuffled makes the network deliver queued packets in a random order
func (n *VirtualNet) Shuffled(seed uint64) *VirtualNet {
	n.rand = rand.New(rand.NewPCG(seed, seed^0x5eed))
	return n
}

func simAddr(i int) netip.Addr {
	return netip.AddrFrom4([4]byte{10, 0, 0, byte(i)})
}

func (n *VirtualNet) Add(addrs ...netip.Addr) {
	for _, addr := range addrs {
		id := state.RouterDesc{
			Addr:        addr,
			ProcessAddr: "127.0.0.1",
			ProcessPort: uint16(50000 + int(addr.As4()[3])),
		}
		n.routers[addr] = &RouterHarness{net: n, rs: state.NewRouterState(id)}
	}
}

func (n *VirtualNet) R(addr netip.Addr) *RouterHarness {
	r, ok := n.routers[addr]
	require.True(n.t, ok, "router %s does not exist", addr)
	return r
}

func (n *VirtualNet) Attach(a, b netip.Addr, weight int64) {
	ra, rb := n.R(a), n.R(b)
	_, err := AttachLink(ra.rs, ra, rb.rs.Id, weight)
	require.NoError(n.t, err)
}

// Handshake runs the three message HELLO exchange with a as the initiator, as the transport would
func (n *VirtualNet) Handshake(a, b netip.Addr) {
	ra, rb := n.R(a), n.R(b)
	_, link := ra.rs.GetLink(b)
	require.NotNil(n.t, link)
	require.NoError(n.t, HelloSent(ra.rs, ra, rb.rs.Id, link.Weight))
	_, _, err := HelloReceived(rb.rs, rb, ra.rs.Id, link.Weight)
	require.NoError(n.t, err)
	HandshakeComplete(ra.rs, ra, b)
	HandshakeComplete(rb.rs, rb, a)
}

// Connect attaches a to b with the given weight and runs the handshake
func (n *VirtualNet) Connect(a, b netip.Addr, weight int64) {
	n.Attach(a, b, weight)
	n.Handshake(a, b)
}

// Disconnect does what SospfRouter.Disconnect does, with the teardown delivered immediately
func (n *VirtualNet) Disconnect(a netip.Addr, port int) {
	ra := n.R(a)
	link, _, err := DisconnectPort(ra.rs, ra, port)
	require.NoError(n.t, err)
	if rb, ok := n.routers[link.Remote.Addr]; ok {
		HandleTeardown(rb.rs, rb, a)
	}
	FloodLsa(ra.rs, ra, ra.rs.Lsdb.Self())
}

// Run delivers packets until the network is quiet and returns the number delivered. It fails the test if flooding does not stop.
func (n *VirtualNet) Run() int {
	start := n.delivered
	for len(n.queue) > 0 {
		i := 0
		if n.rand != nil {
			i = n.rand.IntN(len(n.queue))
		}
		p := n.queue[i]
		n.queue = slices.Delete(n.queue, i, i+1)
		if r, ok := n.routers[p.to]; ok {
			HandleLinkStateUpdate(r.rs, r, p.from, p.lsas)
		}
		n.delivered++
		require.Less(n.t, n.delivered-start, 100000, "flooding did not terminate")
	}
	return n.delivered - start
}

// Pending returns the queued packets sent by from
func (n *VirtualNet) Pending(from netip.Addr) []packet {
	out := make([]packet, 0)
	for _, p := range n.queue {
		if p.from == from {
			out = append(out, p)
		}
	}
	return out
}

// RequireConverged checks that every router holds the same database
func (n *VirtualNet) RequireConverged() {
	var ref []state.LSA
	var refAddr netip.Addr
	for addr, r := range n.routers {
		entries := r.rs.Lsdb.Entries()
		if ref == nil {
			ref, refAddr = entries, addr
			continue
		}
		if diff := cmp.Diff(ref, entries, cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
			n.t.Fatalf("database of %s differs from %s (-%s +%s):\n%s", addr, refAddr, refAddr, addr, diff)
		}
	}
}

func (n *VirtualNet) String() string {
	s := ""
	for addr, r := range n.routers {
		s += fmt.Sprintf("%s:\n%s", addr, r.rs.Lsdb.String())
	}
	return s
}
