package core

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/encodeous/sospf/state"
	"github.com/gaissmai/bart"
)

type RouteTableEntry struct {
	Dst  netip.Addr
	Nh   netip.Addr
	Port int
	Cost uint64
}

func (e RouteTableEntry) String() string {
	if e.Nh == e.Dst && e.Port == -1 {
		return fmt.Sprintf("%s local", e.Dst)
	}
	return fmt.Sprintf("%s via %s port %d cost %d", e.Dst, e.Nh, e.Port, e.Cost)
}

// ForwardTable maps each reachable simulated address to the neighbour packets towards it would leave through
type ForwardTable struct {
	table   bart.Table[RouteTableEntry]
	entries []RouteTableEntry
	version uint64
}

func hostPrefix(addr netip.Addr) netip.Prefix {
	return netip.PrefixFrom(addr, addr.BitLen())
}

// BuildForwardTable computes the forward table from the shortest path tree rooted at this router
func BuildForwardTable(rs *state.RouterState) *ForwardTable {
	ft := &ForwardTable{version: rs.Lsdb.Version()}
	for _, te := range ShortestPathTree(rs.Lsdb.Snapshot(), rs.Id.Addr) {
		port, _ := rs.GetLink(te.FirstHop)
		entry := RouteTableEntry{
			Dst:  te.Dst,
			Nh:   te.FirstHop,
			Port: port,
			Cost: te.Cost,
		}
		ft.table.Insert(hostPrefix(te.Dst), entry)
		ft.entries = append(ft.entries, entry)
	}
	return ft
}

func (ft *ForwardTable) Lookup(addr netip.Addr) (RouteTableEntry, bool) {
	return ft.table.Lookup(addr)
}

func (ft *ForwardTable) Entries() []RouteTableEntry {
	return ft.entries
}

func (ft *ForwardTable) String() string {
	sb := strings.Builder{}
	for _, e := range ft.entries {
		sb.WriteString(e.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
