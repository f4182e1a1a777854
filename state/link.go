package state

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

type NeighbourStatus int

const (
	Unknown NeighbourStatus = iota
	Init
	TwoWay
)

func (ns NeighbourStatus) String() string {
	switch ns {
	case Unknown:
		return "UNKNOWN"
	case Init:
		return "INIT"
	case TwoWay:
		return "TWO_WAY"
	default:
		return fmt.Sprintf("NeighbourStatus(%d)", int(ns))
	}
}

// RouterDesc identifies a router. Addr is the simulated address, and is the key used everywhere in the topology.
// ProcessAddr and ProcessPort are only used to open sockets.
type RouterDesc struct {
	Addr        netip.Addr
	ProcessAddr string
	ProcessPort uint16
}

func (d RouterDesc) Endpoint() string {
	return net.JoinHostPort(d.ProcessAddr, strconv.Itoa(int(d.ProcessPort)))
}

func (d RouterDesc) String() string {
	return fmt.Sprintf("%s (%s)", d.Addr, d.Endpoint())
}

type Link struct {
	Local  RouterDesc
	Remote RouterDesc
	Weight uint32
	Status NeighbourStatus
}

func (l *Link) Describe() LinkDescription {
	return LinkDescription{
		LinkId:  l.Remote.Addr,
		PortNum: int32(l.Remote.ProcessPort),
		Weight:  l.Weight,
	}
}

func (l *Link) String() string {
	return fmt.Sprintf("%s weight %d %s", l.Remote, l.Weight, l.Status)
}
