package core

import (
	"fmt"
	"net"
	"net/netip"
	"reflect"

	"github.com/encodeous/sospf/protocol"
	"github.com/encodeous/sospf/state"
)

func Get[T state.Module](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}

func lsaToWire(lsa state.LSA) protocol.Lsa {
	out := protocol.Lsa{
		Origin: lsa.Origin.String(),
		Seqno:  lsa.Seqno,
		Links:  make([]protocol.LinkDesc, 0, len(lsa.Links)),
	}
	for _, ld := range lsa.Links {
		out.Links = append(out.Links, protocol.LinkDesc{
			LinkId:  ld.LinkId.String(),
			PortNum: ld.PortNum,
			Weight:  ld.Weight,
		})
	}
	return out
}

func lsaFromWire(w protocol.Lsa) (state.LSA, error) {
	origin, err := netip.ParseAddr(w.Origin)
	if err != nil {
		return state.LSA{}, fmt.Errorf("invalid LSA origin %q: %w", w.Origin, err)
	}
	lsa := state.LSA{
		Origin: origin,
		Seqno:  w.Seqno,
		Links:  make([]state.LinkDescription, 0, len(w.Links)),
	}
	for _, ld := range w.Links {
		id, err := netip.ParseAddr(ld.LinkId)
		if err != nil {
			return state.LSA{}, fmt.Errorf("invalid link id %q in LSA from %s: %w", ld.LinkId, origin, err)
		}
		lsa.Links = append(lsa.Links, state.LinkDescription{
			LinkId:  id,
			PortNum: ld.PortNum,
			Weight:  ld.Weight,
		})
	}
	return lsa, nil
}

func lsasToWire(lsas []state.LSA) []protocol.Lsa {
	out := make([]protocol.Lsa, 0, len(lsas))
	for _, lsa := range lsas {
		out = append(out, lsaToWire(lsa))
	}
	return out
}

// senderDesc describes the sender of msg. If the sender did not advertise a usable process address,
// the address the connection came from is used instead.
func senderDesc(msg *protocol.Message, remote net.Addr) (state.RouterDesc, error) {
	addr, err := state.AddrValidator(msg.SrcAddr)
	if err != nil {
		return state.RouterDesc{}, err
	}
	desc := state.RouterDesc{
		Addr:        addr,
		ProcessAddr: msg.SrcProcessAddr,
		ProcessPort: msg.SrcProcessPort,
	}
	if pa, err := netip.ParseAddr(desc.ProcessAddr); desc.ProcessAddr == "" || (err == nil && pa.IsUnspecified()) {
		if tcp, ok := remote.(*net.TCPAddr); ok {
			desc.ProcessAddr = tcp.IP.String()
		}
	}
	return desc, nil
}
