package state

import (
	"net/netip"
)

// RouterState is the protocol state of one router: its port table and link-state database.
type RouterState struct {
	Id    RouterDesc
	Ports [MaxPorts]*Link
	Lsdb  *LinkStateDatabase
	// ProtocolStarted is set by the first start command, later start commands are no-ops.
	ProtocolStarted bool
}

func NewRouterState(id RouterDesc) *RouterState {
	return &RouterState{
		Id:   id,
		Lsdb: NewLinkStateDatabase(id),
	}
}

// GetLink returns the port index and link to the given simulated address, or -1 and nil
func (rs *RouterState) GetLink(addr netip.Addr) (int, *Link) {
	for i, l := range rs.Ports {
		if l != nil && l.Remote.Addr == addr {
			return i, l
		}
	}
	return -1, nil
}

func (rs *RouterState) FreePort() int {
	for i, l := range rs.Ports {
		if l == nil {
			return i
		}
	}
	return -1
}

// Links returns the attached links in port order
func (rs *RouterState) Links() []*Link {
	out := make([]*Link, 0, MaxPorts)
	for _, l := range rs.Ports {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (rs *RouterState) TwoWayLinks() []*Link {
	out := make([]*Link, 0, MaxPorts)
	for _, l := range rs.Ports {
		if l != nil && l.Status == TwoWay {
			out = append(out, l)
		}
	}
	return out
}

func (rs *RouterState) LinkCount() int {
	return len(rs.Links())
}

func (rs *RouterState) RemovePort(port int) *Link {
	if port < 0 || port >= MaxPorts {
		return nil
	}
	l := rs.Ports[port]
	rs.Ports[port] = nil
	return l
}
