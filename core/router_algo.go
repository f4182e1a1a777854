package core

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/encodeous/sospf/state"
)

type RouterEvent int

// trace events

const (
	NeighbourInit RouterEvent = iota
	NeighbourTwoWay
	NeighbourRemoved
	LsaOriginated
	LsaAccepted
	LsaStale
	SelfReoriginated
	DatabaseSent
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	UnknownNeighbour
	NeighbourRefused
)

func (e RouterEvent) String() string {
	switch e {
	case NeighbourInit:
		return "NeighbourInit"
	case NeighbourTwoWay:
		return "NeighbourTwoWay"
	case NeighbourRemoved:
		return "NeighbourRemoved"
	case LsaOriginated:
		return "LsaOriginated"
	case LsaAccepted:
		return "LsaAccepted"
	case LsaStale:
		return "LsaStale"
	case SelfReoriginated:
		return "SelfReoriginated"
	case DatabaseSent:
		return "DatabaseSent"
	case InconsistentState:
		return "InconsistentState"
	case UnknownNeighbour:
		return "UnknownNeighbour"
	case NeighbourRefused:
		return "NeighbourRefused"
	default:
		return fmt.Sprintf("RouterEvent(%d)", int(e))
	}
}

var (
	ErrAttachSelf     = errors.New("cannot attach to self")
	ErrLinkExists     = errors.New("link already exists")
	ErrPortsFull      = errors.New("ports full")
	ErrNegativeWeight = errors.New("weight must not be negative")
	ErrInvalidPort    = errors.New("invalid port index")
	ErrNotStarted     = errors.New("must start first")
	ErrAlreadyStarted = errors.New("already started")
	ErrNoNeighbours   = errors.New("no neighbors")
)

// DatabaseChunk is the number of LSAs sent per update message during database synchronization
var DatabaseChunk = 64

// Router is an interface that defines the side effects of the protocol
type Router interface {
	// SendLsaUpdate sends one link state update message to the given neighbour. It must not block.
	SendLsaUpdate(to state.RouterDesc, lsas []state.LSA)
	Log(event RouterEvent, desc string, args ...any)
}

// AttachLink adds a link to the first free port without starting a handshake, returning the port index
func AttachLink(rs *state.RouterState, r Router, remote state.RouterDesc, weight int64) (int, error) {
	if remote.Addr == rs.Id.Addr {
		return -1, ErrAttachSelf
	}
	if weight < 0 {
		return -1, ErrNegativeWeight
	}
	if weight > state.MaxWeight {
		return -1, fmt.Errorf("weight %d exceeds %d", weight, state.MaxWeight)
	}
	if idx, _ := rs.GetLink(remote.Addr); idx != -1 {
		return -1, ErrLinkExists
	}
	port := rs.FreePort()
	if port == -1 {
		return -1, ErrPortsFull
	}
	rs.Ports[port] = &state.Link{
		Local:  rs.Id,
		Remote: remote,
		Weight: uint32(weight),
		Status: state.Unknown,
	}
	return port, nil
}

// HelloSent records that we sent a HELLO to remote, the initiator side of the handshake
func HelloSent(rs *state.RouterState, r Router, remote state.RouterDesc, weight uint32) error {
	_, link := rs.GetLink(remote.Addr)
	if link == nil {
		// the link was removed while the hello was in flight, re-create it
		if _, err := AttachLink(rs, r, remote, int64(weight)); err != nil {
			return err
		}
		_, link = rs.GetLink(remote.Addr)
	}
	if link.Status == state.Unknown {
		link.Status = state.Init
		r.Log(NeighbourInit, "set state to INIT", "neighbour", remote.Addr)
	}
	return nil
}

// HelloReceived handles the first HELLO of an exchange on the responder side, creating the link if the sender is new.
// created reports whether the link was created by this HELLO.
func HelloReceived(rs *state.RouterState, r Router, remote state.RouterDesc, weight uint32) (link *state.Link, created bool, err error) {
	r.Log(NeighbourInit, "received HELLO", "from", remote.Addr)
	_, link = rs.GetLink(remote.Addr)
	if link == nil {
		if _, err := AttachLink(rs, r, remote, int64(weight)); err != nil {
			r.Log(NeighbourRefused, "refusing neighbour", "neighbour", remote.Addr, "err", err)
			return nil, false, err
		}
		_, link = rs.GetLink(remote.Addr)
		created = true
	} else if link.Remote.ProcessAddr == "" {
		link.Remote.ProcessAddr = remote.ProcessAddr
		link.Remote.ProcessPort = remote.ProcessPort
	}
	if link.Status == state.Unknown {
		link.Status = state.Init
		r.Log(NeighbourInit, "set state to INIT", "neighbour", remote.Addr)
	}
	return link, created, nil
}

// AbandonHello removes a link created by HelloReceived whose handshake never completed.
// Links that reached TWO_WAY in the meantime are kept.
func AbandonHello(rs *state.RouterState, r Router, remote netip.Addr) bool {
	port, link := rs.GetLink(remote)
	if link == nil || link.Status == state.TwoWay {
		return false
	}
	rs.RemovePort(port)
	r.Log(NeighbourRemoved, "abandoned handshake", "neighbour", remote, "port", port)
	return true
}

// HandshakeComplete moves the link to TWO_WAY. On the transition, the self LSA is regenerated and flooded,
// and the new neighbour receives our whole database.
func HandshakeComplete(rs *state.RouterState, r Router, remote netip.Addr) bool {
	_, link := rs.GetLink(remote)
	if link == nil {
		r.Log(InconsistentState, "handshake completed for a link that no longer exists", "neighbour", remote)
		return false
	}
	if link.Status == state.TwoWay {
		return false
	}
	link.Status = state.TwoWay
	rs.Lsdb.Forget(remote)
	r.Log(NeighbourTwoWay, "set state to TWO_WAY", "neighbour", remote)

	lsa := rs.Lsdb.RegenerateSelf(rs.TwoWayLinks())
	r.Log(LsaOriginated, "regenerated self LSA", "lsa", lsa)
	FloodLsa(rs, r, lsa)
	SendDatabase(rs, r, link.Remote)
	return true
}

// FloodLsa sends lsa to every neighbour that is TWO_WAY at the time of the call
func FloodLsa(rs *state.RouterState, r Router, lsa state.LSA) {
	for _, link := range rs.TwoWayLinks() {
		r.SendLsaUpdate(link.Remote, []state.LSA{lsa})
	}
}

// SendDatabase sends every LSA we hold to a single neighbour
func SendDatabase(rs *state.RouterState, r Router, to state.RouterDesc) {
	entries := rs.Lsdb.Entries()
	for chunk := range slices.Chunk(entries, DatabaseChunk) {
		r.SendLsaUpdate(to, chunk)
	}
	r.Log(DatabaseSent, "sent database", "to", to.Addr, "lsas", len(entries))
}

// HandleLinkStateUpdate applies received LSAs. Newly accepted LSAs are flooded further, stale ones are dropped.
func HandleLinkStateUpdate(rs *state.RouterState, r Router, from netip.Addr, lsas []state.LSA) {
	for _, lsa := range lsas {
		if lsa.Origin == rs.Id.Addr {
			self := rs.Lsdb.Self()
			if lsa.Seqno > self.Seqno {
				// someone remembers a newer copy of us, likely from before a restart
				fresh := rs.Lsdb.BumpSelf(lsa.Seqno, rs.TwoWayLinks())
				r.Log(SelfReoriginated, "re-originated self LSA above a newer copy", "from", from, "seen", lsa.Seqno, "lsa", fresh)
				FloodLsa(rs, r, fresh)
			}
			continue
		}
		if !rs.Lsdb.Accept(lsa) {
			r.Log(LsaStale, "dropped stale LSA", "from", from, "origin", lsa.Origin, "seqno", lsa.Seqno)
			continue
		}
		r.Log(LsaAccepted, "accepted LSA", "from", from, "lsa", lsa)
		FloodLsa(rs, r, lsa)
	}
}

// removeNeighbour drops the link, the neighbour's LSA and regenerates the self LSA
func removeNeighbour(rs *state.RouterState, r Router, port int) (*state.Link, state.LSA) {
	link := rs.RemovePort(port)
	rs.Lsdb.Remove(link.Remote.Addr)
	r.Log(NeighbourRemoved, "removed neighbour", "neighbour", link.Remote.Addr, "port", port)
	lsa := rs.Lsdb.RegenerateSelf(rs.TwoWayLinks())
	r.Log(LsaOriginated, "regenerated self LSA", "lsa", lsa)
	return link, lsa
}

// DisconnectPort removes the link at port. The caller is responsible for notifying the neighbour and then flooding.
func DisconnectPort(rs *state.RouterState, r Router, port int) (*state.Link, state.LSA, error) {
	if port < 0 || port >= state.MaxPorts || rs.Ports[port] == nil {
		return nil, state.LSA{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	link, lsa := removeNeighbour(rs, r, port)
	return link, lsa, nil
}

// HandleTeardown removes the link to a neighbour that disconnected from us
func HandleTeardown(rs *state.RouterState, r Router, from netip.Addr) bool {
	port, _ := rs.GetLink(from)
	if port == -1 {
		r.Log(UnknownNeighbour, "teardown from unknown neighbour", "from", from)
		return false
	}
	_, lsa := removeNeighbour(rs, r, port)
	FloodLsa(rs, r, lsa)
	return true
}

// Neighbours returns the simulated addresses of all TWO_WAY neighbours
func Neighbours(rs *state.RouterState) ([]netip.Addr, error) {
	if rs.LinkCount() == 0 {
		return nil, ErrNoNeighbours
	}
	out := make([]netip.Addr, 0)
	for _, l := range rs.TwoWayLinks() {
		out = append(out, l.Remote.Addr)
	}
	return out, nil
}
