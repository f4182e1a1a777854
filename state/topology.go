package state

import (
	"net/netip"
	"slices"
)

// Topology is a read-only view of the LSDB used for path computation
type Topology struct {
	Nodes []netip.Addr
	Edges map[netip.Addr][]LinkDescription
}

func (t Topology) HasNode(addr netip.Addr) bool {
	_, found := slices.BinarySearchFunc(t.Nodes, addr, netip.Addr.Compare)
	return found
}
